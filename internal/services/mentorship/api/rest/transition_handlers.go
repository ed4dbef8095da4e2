package rest

import (
	"net/http"
	"strings"

	"github.com/ascentlabs/ascentledger/internal/platform/apperrors"
	"github.com/ascentlabs/ascentledger/internal/platform/httpx"
)

type transitionStatusResponse struct {
	IsEligible         bool     `json:"isEligible"`
	WeeksStable        int      `json:"weeksStable"`
	CurrentOxygenLevel int      `json:"currentOxygenLevel"`
	DaysInRecovery     int      `json:"daysInRecovery"`
	Has14DaysPassed    bool     `json:"has14DaysPassed"`
	Message            string   `json:"message"`
	Blockers           []string `json:"blockers"`
}

func (h *Handler) handleGetTransition(w http.ResponseWriter, r *http.Request) {
	eligibility, err := h.recovery.CheckEligibility(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	blockers := eligibility.Blockers
	if blockers == nil {
		blockers = []string{}
	}
	_ = httpx.WriteJSON(w, http.StatusOK, transitionStatusResponse{
		IsEligible:         eligibility.IsEligible,
		WeeksStable:        eligibility.WeeksStable,
		CurrentOxygenLevel: eligibility.CurrentOxygenLevel,
		DaysInRecovery:     eligibility.DaysInRecovery,
		Has14DaysPassed:    eligibility.Has14DaysPassed,
		Message:            eligibility.Message,
		Blockers:           blockers,
	})
}

type transitionRequest struct {
	ProtocolID string `json:"protocolId"`
}

type transitionResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message,omitempty"`
	TokensAwarded int64  `json:"tokensAwarded,omitempty"`
	NewBalance    int64  `json:"newBalance,omitempty"`
}

func (h *Handler) handlePostTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.ProtocolID) == "" {
		writeError(w, apperrors.E(apperrors.KindInvalidInput, "A protocol id is required."))
		return
	}

	result, err := h.recovery.ExecuteTransition(r.Context(), userID(r), req.ProtocolID)
	if err != nil {
		// An ineligible transition is a 400 carrying the checker's message.
		if apperrors.KindOf(err) == apperrors.KindInvalidInput {
			_ = httpx.WriteJSON(w, http.StatusBadRequest, transitionResponse{
				Success: false,
				Message: apperrors.UserMessage(err),
			})
			return
		}
		writeError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, transitionResponse{
		Success:       true,
		Message:       result.Message,
		TokensAwarded: result.TokensAwarded,
		NewBalance:    result.NewBalance,
	})
}
