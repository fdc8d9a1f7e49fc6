// Package exitengine - 포지션 보호 엔진
// 진입 이후의 모든 보호 결정 (본전 이동, 부분 익절, 트레일링, 긴급 청산)을
// 단일 평가 루프에서 수행. 사람 개입 없이 동작하는 것이 목적.
package exitengine

import (
	"sync"

	"github.com/wonny/guardian/internal/contracts"
)

// RuleStore holds the in-memory exit rules, keyed by ticket.
// ⭐ SSOT: 활성 보호 규칙은 여기서만
//
// 쓰기는 평가 루프 단일 주체만 수행. 읽기는 상태 API가 동시 접근하므로
// RWMutex로 보호. 경계를 넘는 규칙은 전부 복사본: Get/All은 분리된
// 사본을 내주고, Create/Update/Reload는 사본을 저장함 — 루프가 자기
// 사본을 고치는 동안 API 리더가 같은 구조체를 읽는 일이 없도록.
type RuleStore struct {
	mu    sync.RWMutex
	rules map[int64]*contracts.ExitRule
}

// NewRuleStore creates an empty rule store
func NewRuleStore() *RuleStore {
	return &RuleStore{
		rules: make(map[int64]*contracts.ExitRule),
	}
}

// Create adds a new rule. Fails if a rule already exists for the ticket —
// 멱등 호출자는 Get을 먼저 확인할 것.
func (s *RuleStore) Create(rule *contracts.ExitRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.Ticket]; exists {
		return contracts.ErrDuplicateRule
	}
	s.rules[rule.Ticket] = rule.Clone()
	return nil
}

// Get returns a detached copy of the rule for a ticket, or nil.
// 호출자가 사본을 고쳐도 Update 전에는 스토어에 반영되지 않음.
func (s *RuleStore) Get(ticket int64) *contracts.ExitRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[ticket]
	if !ok {
		return nil
	}
	return r.Clone()
}

// All returns a snapshot slice of detached rule copies.
// 사이클은 이 스냅샷을 순회함 (순회 중 맵 변경 방지).
func (s *RuleStore) All() []*contracts.ExitRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*contracts.ExitRule, 0, len(s.rules))
	for _, r := range s.rules {
		result = append(result, r.Clone())
	}
	return result
}

// Update commits a mutated copy back for its ticket
func (s *RuleStore) Update(rule *contracts.ExitRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.Ticket]; !exists {
		return contracts.ErrRuleNotFound
	}
	s.rules[rule.Ticket] = rule.Clone()
	return nil
}

// Remove deletes the rule for a ticket (no-op if absent)
func (s *RuleStore) Remove(ticket int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rules, ticket)
}

// Count returns the number of active rules
func (s *RuleStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// Reload replaces the store contents with persisted rules (startup only)
func (s *RuleStore) Reload(rules []*contracts.ExitRule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules = make(map[int64]*contracts.ExitRule, len(rules))
	for _, r := range rules {
		s.rules[r.Ticket] = r.Clone()
	}
}

// Reconcile drops rules whose ticket is no longer live and returns the
// removed tickets. 재시작 직후와 매 사이클 포지션 스냅샷 기준으로 호출됨.
func (s *RuleStore) Reconcile(liveTickets map[int64]bool) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orphaned []int64
	for ticket := range s.rules {
		if !liveTickets[ticket] {
			orphaned = append(orphaned, ticket)
			delete(s.rules, ticket)
		}
	}
	return orphaned
}
