package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/deen-kids/deen-progress-engine/internal/application/command"
	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
	"github.com/deen-kids/deen-progress-engine/internal/domain/goal"
	"github.com/deen-kids/deen-progress-engine/internal/domain/ledger"
	"github.com/deen-kids/deen-progress-engine/internal/domain/reward"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
	"github.com/deen-kids/deen-progress-engine/pkg/logger"
)

// parentPINHeader carries the clear-form parent PIN on parent-only routes.
const parentPINHeader = "X-Parent-PIN"

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":    "Deen Progress Engine API",
		"version": "v1",
		"endpoints": map[string]string{
			"health":      "/health",
			"families":    "/api/v1/families",
			"snapshot":    "/api/v1/children/{id}/snapshot",
			"leaderboard": "/api/v1/families/{id}/leaderboard",
		},
	}
	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": s.Uptime().String(),
	})
}

// handleReady handles the readiness probe endpoint.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// FAMILY HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRegisterFamily(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		ParentPIN string `json:"parent_pin"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	f, err := s.deps.RegisterFamily.Handle(r.Context(), command.RegisterFamilyCommand{
		Name:      req.Name,
		ParentPIN: req.ParentPIN,
	})
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"family_id":  f.ID,
		"name":       f.Name,
		"created_at": f.CreatedAt,
	})
}

func (s *Server) handleRegisterChild(w http.ResponseWriter, r *http.Request) {
	familyID := r.PathValue("id")
	if !s.authorizeParent(w, r, familyID) {
		return
	}

	var req struct {
		DisplayName string `json:"display_name"`
		Timezone    string `json:"timezone"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	ch, err := s.deps.RegisterChild.Handle(r.Context(), command.RegisterChildCommand{
		FamilyID:    familyID,
		DisplayName: req.DisplayName,
		Timezone:    req.Timezone,
	})
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ch)
}

func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := s.deps.GetLeaderboard.Handle(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *Server) handleGetRewardCatalog(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.deps.GetRewardCatalog.Handle(r.Context(), r.PathValue("id"), r.URL.Query().Get("child_id"))
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, catalog)
}

func (s *Server) handleCreateReward(w http.ResponseWriter, r *http.Request) {
	familyID := r.PathValue("id")
	if !s.authorizeParent(w, r, familyID) {
		return
	}

	var req struct {
		Title          string `json:"title"`
		PointsRequired int    `json:"points_required"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	rw, err := s.deps.CreateReward.Handle(r.Context(), command.CreateRewardCommand{
		FamilyID:       familyID,
		Title:          req.Title,
		PointsRequired: req.PointsRequired,
	})
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rw)
}

// ══════════════════════════════════════════════════════════════════════════════
// CHILD HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type        string    `json:"type"`
		PointsValue int       `json:"points_value"`
		OccurredAt  time.Time `json:"occurred_at"`
		DedupKey    string    `json:"dedup_key"`
		PrayerName  string    `json:"prayer_name"`
		ContentID   string    `json:"content_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.deps.RecordActivity.Handle(r.Context(), command.RecordActivityCommand{
		ChildID:       r.PathValue("id"),
		Type:          ledger.ActivityType(req.Type),
		PointsValue:   req.PointsValue,
		OccurredAt:    req.OccurredAt,
		DedupKey:      ledger.DedupKey(req.DedupKey),
		PrayerName:    req.PrayerName,
		ContentID:     req.ContentID,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	// A duplicate is reported, not treated as a failure.
	status := http.StatusCreated
	if !result.Accepted {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.deps.GetProgressSnapshot.Handle(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleGetDailyProgress(w http.ResponseWriter, r *http.Request) {
	days := getQueryParamInt(r, "days", 7)
	progress, err := s.deps.GetDailyProgress.Handle(r.Context(), r.PathValue("id"), days)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	childID := r.PathValue("id")
	if !s.authorizeParentOfChild(w, r, childID) {
		return
	}

	var req struct {
		Type         string     `json:"type"`
		Title        string     `json:"title"`
		TargetValue  int        `json:"target_value"`
		RewardPoints int        `json:"reward_points"`
		Deadline     *time.Time `json:"deadline,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	g, err := s.deps.CreateGoal.Handle(r.Context(), command.CreateGoalCommand{
		ChildID:      childID,
		Type:         goal.Type(req.Type),
		Title:        req.Title,
		TargetValue:  req.TargetValue,
		RewardPoints: req.RewardPoints,
		Deadline:     req.Deadline,
	})
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleClaimReward(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RewardID string `json:"reward_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	claim, err := s.deps.ClaimReward.Handle(r.Context(), command.ClaimRewardCommand{
		ChildID:  r.PathValue("id"),
		RewardID: req.RewardID,
	})
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, claim)
}

func (s *Server) handleAcknowledgeAchievement(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.AcknowledgeAchievement.Handle(r.Context(), command.AcknowledgeAchievementCommand{
		ChildID:      r.PathValue("id"),
		DefinitionID: r.PathValue("definition"),
	})
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReconcileBalance(w http.ResponseWriter, r *http.Request) {
	childID := r.PathValue("id")
	if !s.authorizeParentOfChild(w, r, childID) {
		return
	}

	var req struct {
		Repair bool `json:"repair"`
	}
	// An empty body means audit-only.
	_ = json.NewDecoder(r.Body).Decode(&req)

	result, err := s.deps.ReconcileBalance.Handle(r.Context(), command.ReconcileBalanceCommand{
		ChildID: childID,
		Repair:  req.Repair,
	})
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// GOAL & CLAIM HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleSetGoalProgress(w http.ResponseWriter, r *http.Request) {
	goalID := r.PathValue("id")

	g, err := s.deps.GoalRepo.GetByID(r.Context(), goalID)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	if !s.authorizeParentOfChild(w, r, g.ChildID) {
		return
	}

	var req struct {
		Value *int `json:"value"`
		Delta *int `json:"delta"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if (req.Value == nil) == (req.Delta == nil) {
		writeJSONError(w, http.StatusBadRequest, "validation_error", "exactly one of value or delta is required")
		return
	}

	cmd := command.SetGoalProgressCommand{GoalID: goalID, Delta: req.Delta}
	if req.Value != nil {
		cmd.Value = *req.Value
	}
	result, err := s.deps.SetGoalProgress.Handle(r.Context(), cmd)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDecideClaim(w http.ResponseWriter, r *http.Request) {
	claimID := r.PathValue("id")

	claim, err := s.deps.RewardRepo.GetClaim(r.Context(), claimID)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	if !s.authorizeParentOfChild(w, r, claim.ChildID) {
		return
	}

	var req struct {
		Decision  string `json:"decision"`
		DeciderID string `json:"decider_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.deps.DecideClaim.Handle(r.Context(), command.DecideClaimCommand{
		ClaimID:   claimID,
		Decision:  reward.Decision(req.Decision),
		DeciderID: req.DeciderID,
	})
	if err != nil {
		s.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTHORIZATION & ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// authorizeParent verifies the parent PIN header against the family. It
// writes the error response itself and returns false on failure.
func (s *Server) authorizeParent(w http.ResponseWriter, r *http.Request, familyID string) bool {
	pin := r.Header.Get(parentPINHeader)
	if pin == "" {
		writeJSONError(w, http.StatusUnauthorized, "pin_required", "Parent PIN header is required")
		return false
	}

	f, err := s.deps.FamilyRepo.GetByID(r.Context(), familyID)
	if err != nil {
		s.writeCommandError(w, err)
		return false
	}

	if !command.VerifyParentPIN(f, pin) {
		writeJSONError(w, http.StatusForbidden, "pin_invalid", "Parent PIN does not match")
		return false
	}
	return true
}

// authorizeParentOfChild resolves the child's family and verifies the PIN.
func (s *Server) authorizeParentOfChild(w http.ResponseWriter, r *http.Request, childID string) bool {
	ch, err := s.deps.ChildRepo.GetByID(r.Context(), childID)
	if err != nil {
		s.writeCommandError(w, err)
		return false
	}
	return s.authorizeParent(w, r, ch.FamilyID.String())
}

// decodeBody decodes a JSON request body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON")
		return false
	}
	return true
}

// writeCommandError maps domain errors onto HTTP statuses.
func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, shared.ErrAlreadyExists), errors.Is(err, shared.ErrDuplicate):
		writeJSONError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, shared.ErrInsufficientBalance):
		writeJSONError(w, http.StatusConflict, "balance_too_low", err.Error())
	case errors.Is(err, shared.ErrTerminalState), errors.Is(err, shared.ErrAlreadyProcessed):
		writeJSONError(w, http.StatusConflict, "already_decided", err.Error())
	case errors.Is(err, shared.ErrTimezoneUnresolved),
		errors.Is(err, ledger.ErrFutureTimestamp),
		errors.Is(err, ledger.ErrNegativePoints),
		errors.Is(err, ledger.ErrInvalidType),
		errors.Is(err, child.ErrInvalidName),
		errors.Is(err, goal.ErrInvalidGoalType),
		errors.Is(err, goal.ErrInvalidTarget),
		errors.Is(err, reward.ErrInvalidDecision),
		errors.Is(err, reward.ErrInactiveReward),
		isValidationError(err):
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		s.logger.Error("request failed", logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

// isValidationError detects command validation failures: plain errors built
// before any storage call, never wrapping another error.
func isValidationError(err error) bool {
	if errors.Unwrap(err) != nil {
		return false
	}
	msg := err.Error()
	for _, prefix := range []string{
		"record_activity:", "create_goal:", "set_goal_progress:", "claim_reward:",
		"decide_claim:", "create_reward:", "register_family:", "register_child:",
		"acknowledge_achievement:", "reconcile_balance:",
		"get_progress_snapshot:", "get_leaderboard:", "get_daily_progress:", "get_reward_catalog:",
	} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}
