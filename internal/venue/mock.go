package venue

import (
	"context"
	"sync"

	"github.com/wonny/guardian/internal/contracts"
)

// MockVenue implements Venue for testing
// ⭐ 실제 운영에서는 BridgeClient 사용
type MockVenue struct {
	mu sync.Mutex

	positions map[int64]*contracts.Position
	quotes    map[string]contracts.Quote

	// Scripted failures per op name ("modify_stop", "close_partial", ...).
	// Each call pops one error off the queue; empty queue = success.
	failures map[string][]error

	// Call recording
	ModifyCalls  []ModifyCall
	PartialCalls []PartialCall
	FullCloses   []int64
}

// ModifyCall records a ModifyStop invocation
type ModifyCall struct {
	Ticket  int64
	NewStop float64
}

// PartialCall records a ClosePartial invocation
type PartialCall struct {
	Ticket int64
	Volume float64
}

// NewMockVenue creates an empty mock venue
func NewMockVenue() *MockVenue {
	return &MockVenue{
		positions: make(map[int64]*contracts.Position),
		quotes:    make(map[string]contracts.Quote),
		failures:  make(map[string][]error),
	}
}

// SetPosition adds or replaces a live position
func (m *MockVenue) SetPosition(p contracts.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.positions[p.Ticket] = &cp
}

// RemovePosition drops a position (simulates venue-side close)
func (m *MockVenue) RemovePosition(ticket int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, ticket)
}

// SetPrice updates the current price of a position
func (m *MockVenue) SetPrice(ticket int64, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.positions[ticket]; ok {
		p.CurrentPrice = price
	}
}

// SetQuote sets the quote for a symbol
func (m *MockVenue) SetQuote(q contracts.Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[q.Symbol] = q
}

// FailNext queues an error for the next call of the given op
func (m *MockVenue) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], err)
}

// popFailure pops one scripted error for an op, nil if none queued
func (m *MockVenue) popFailure(op string) error {
	queue := m.failures[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	m.failures[op] = queue[1:]
	return err
}

// ListOpenPositions returns the current snapshot
func (m *MockVenue) ListOpenPositions(ctx context.Context) ([]contracts.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.popFailure("list_positions"); err != nil {
		return nil, err
	}

	result := make([]contracts.Position, 0, len(m.positions))
	for _, p := range m.positions {
		result = append(result, *p)
	}
	return result, nil
}

// GetQuote returns the scripted quote, zero-spread fallback from position price
func (m *MockVenue) GetQuote(ctx context.Context, symbol string) (contracts.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.popFailure("quote"); err != nil {
		return contracts.Quote{}, err
	}

	if q, ok := m.quotes[symbol]; ok {
		return q, nil
	}
	for _, p := range m.positions {
		if p.Symbol == symbol {
			return contracts.Quote{Symbol: symbol, Bid: p.CurrentPrice, Ask: p.CurrentPrice}, nil
		}
	}
	return contracts.Quote{Symbol: symbol}, nil
}

// ModifyStop records the call and applies it to the mock position
func (m *MockVenue) ModifyStop(ctx context.Context, ticket int64, newStop float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.popFailure("modify_stop"); err != nil {
		return err
	}

	p, ok := m.positions[ticket]
	if !ok {
		return NewError(ReasonUnknown, "modify_stop", ticket, "position not found")
	}

	m.ModifyCalls = append(m.ModifyCalls, ModifyCall{Ticket: ticket, NewStop: newStop})
	p.StopLoss = newStop
	return nil
}

// ClosePartial records the call and shrinks the mock position
func (m *MockVenue) ClosePartial(ctx context.Context, ticket int64, volume float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.popFailure("close_partial"); err != nil {
		return err
	}

	p, ok := m.positions[ticket]
	if !ok {
		return NewError(ReasonUnknown, "close_partial", ticket, "position not found")
	}
	if volume <= 0 || volume > p.Volume {
		return NewError(ReasonInvalidVolume, "close_partial", ticket, "volume out of range")
	}

	m.PartialCalls = append(m.PartialCalls, PartialCall{Ticket: ticket, Volume: volume})
	p.Volume -= volume
	if p.Volume <= 1e-9 {
		delete(m.positions, ticket)
	}
	return nil
}

// CloseFull records the call and removes the mock position
func (m *MockVenue) CloseFull(ctx context.Context, ticket int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.popFailure("close_full"); err != nil {
		return err
	}

	if _, ok := m.positions[ticket]; !ok {
		return NewError(ReasonUnknown, "close_full", ticket, "position not found")
	}

	m.FullCloses = append(m.FullCloses, ticket)
	delete(m.positions, ticket)
	return nil
}
