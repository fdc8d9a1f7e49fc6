package contracts

import (
	"time"

	"github.com/google/uuid"
)

// ActionType identifies a committed state-changing action
type ActionType string

const (
	ActionBreakeven    ActionType = "BREAKEVEN"
	ActionPartialClose ActionType = "PARTIAL_CLOSE"
	ActionTrail        ActionType = "TRAIL"
	ActionTighten      ActionType = "TIGHTEN" // structure-based, cooldown-limited
	ActionCriticalExit ActionType = "CRITICAL_EXIT"
	ActionHybridWiden  ActionType = "HYBRID_WIDEN" // one-shot, pre-breakeven only
)

// Tightening reports whether the action is tightening-class
// (쿨다운 윈도우 대상)
func (a ActionType) Tightening() bool {
	return a == ActionTighten
}

// ActionEvent is the structured record of one committed action.
// One event per committed action, fire-and-forget to the notifier.
type ActionEvent struct {
	ID       string     `json:"id"`
	Ticket   int64      `json:"ticket"`
	Symbol   string     `json:"symbol"`
	Action   ActionType `json:"action"`
	OldValue float64    `json:"old_value"` // stop before / volume before
	NewValue float64    `json:"new_value"` // stop after / volume closed
	Price    float64    `json:"price"`     // market price at commit
	Factors  []string   `json:"factors,omitempty"`
	Reason   string     `json:"reason,omitempty"`
	At       time.Time  `json:"at"`
}

// NewActionEvent builds an event with a fresh id and timestamp
func NewActionEvent(ticket int64, symbol string, action ActionType, oldVal, newVal, price float64) *ActionEvent {
	return &ActionEvent{
		ID:       uuid.New().String(),
		Ticket:   ticket,
		Symbol:   symbol,
		Action:   action,
		OldValue: oldVal,
		NewValue: newVal,
		Price:    price,
		At:       time.Now(),
	}
}
