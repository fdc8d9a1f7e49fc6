// Package handlers - 상태/리포팅 API 핸들러
// 읽기 전용 조회 + 명시적 규칙 취소만 노출. 보호 상태 변경은 엔진 루프의
// 몫이고 API는 절대 직접 커밋하지 않음.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wonny/guardian/internal/contracts"
	"github.com/wonny/guardian/internal/exitengine"
	"github.com/wonny/guardian/pkg/database"
	"github.com/wonny/guardian/pkg/logger"
)

// GuardianHandler handles engine status and rule endpoints
// ⭐ SSOT: 보호 엔진 API 핸들러는 이 구조체에서만
type GuardianHandler struct {
	engine *exitengine.Engine
	db     *database.DB
	logger *logger.Logger
}

// NewGuardianHandler creates a new guardian handler
func NewGuardianHandler(engine *exitengine.Engine, db *database.DB, log *logger.Logger) *GuardianHandler {
	return &GuardianHandler{
		engine: engine,
		db:     db,
		logger: log,
	}
}

// GetStatus returns the engine status snapshot
// GET /api/engine/status
func (h *GuardianHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Status())
}

// ListRules returns all active exit rules
// GET /api/rules
func (h *GuardianHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules := h.engine.Rules()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(rules),
		"rules": rules,
	})
}

// GetRule returns one rule by ticket
// GET /api/rules/{ticket}
func (h *GuardianHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	ticket, err := strconv.ParseInt(mux.Vars(r)["ticket"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid ticket")
		return
	}

	rule := h.engine.Rule(ticket)
	if rule == nil {
		respondError(w, http.StatusNotFound, "Rule not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"rule":  rule,
		"state": rule.State(),
	})
}

// CancelRule explicitly stops protecting a ticket (the position stays open)
// DELETE /api/rules/{ticket}
func (h *GuardianHandler) CancelRule(w http.ResponseWriter, r *http.Request) {
	ticket, err := strconv.ParseInt(mux.Vars(r)["ticket"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid ticket")
		return
	}

	if err := h.engine.CancelRule(r.Context(), ticket); err != nil {
		if errors.Is(err, contracts.ErrRuleNotFound) {
			respondError(w, http.StatusNotFound, "Rule not found")
			return
		}
		h.logger.WithError(err).WithField("ticket", ticket).Error("Failed to cancel rule")
		respondError(w, http.StatusInternalServerError, "Failed to cancel rule")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ticket":    ticket,
		"cancelled": true,
	})
}

// GetRecentActions returns the latest committed actions
// GET /api/actions/recent?limit=20
func (h *GuardianHandler) GetRecentActions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"actions": h.engine.RecentEvents(limit),
	})
}

// GetDBHealth returns the database health snapshot
// GET /api/db/health
func (h *GuardianHandler) GetDBHealth(w http.ResponseWriter, r *http.Request) {
	health, _ := h.db.HealthCheck(r.Context())

	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, health)
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
