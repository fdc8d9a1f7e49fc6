package contracts

import "errors"

// Sentinel errors callers branch on
var (
	// ErrMalformedRule rejects a rule at creation time (config error class)
	ErrMalformedRule = errors.New("malformed exit rule")

	// ErrDuplicateRule is returned when a rule already exists for a ticket
	ErrDuplicateRule = errors.New("exit rule already exists for ticket")

	// ErrRuleNotFound is returned for lookups of unknown tickets
	ErrRuleNotFound = errors.New("exit rule not found")

	// ErrInsufficientHistory means ATR cannot be computed yet
	// 트레일링은 best-effort: 이 에러는 해당 사이클 스킵으로만 처리
	ErrInsufficientHistory = errors.New("insufficient history for ATR")
)
