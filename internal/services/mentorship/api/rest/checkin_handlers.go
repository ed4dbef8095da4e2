package rest

import (
	"net/http"
	"strings"
	"time"

	"github.com/ascentlabs/ascentledger/internal/platform/apperrors"
	"github.com/ascentlabs/ascentledger/internal/platform/httpx"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/checkin"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/domain"
)

type checkinRequest struct {
	ProtocolID         string `json:"protocolId"`
	ProtocolCompleted  *bool  `json:"protocolCompleted,omitempty"`
	OxygenConnected    *bool  `json:"oxygenConnected,omitempty"`
	OxygenLevelCurrent *int   `json:"oxygenLevelCurrent,omitempty"`
	Notes              string `json:"notes,omitempty"`
}

type checkinSummary struct {
	ID                 string `json:"id"`
	WeekOf             string `json:"weekOf"`
	OxygenLevelCurrent *int   `json:"oxygenLevelCurrent"`
}

type fogCheckPayload struct {
	ID                string `json:"id"`
	Observation       string `json:"observation"`
	StrategicQuestion string `json:"strategicQuestion"`
	CheckType         string `json:"checkType,omitempty"`
	CreatedAt         string `json:"createdAt,omitempty"`
}

type checkinResponse struct {
	Success  bool             `json:"success"`
	Checkin  checkinSummary   `json:"checkin"`
	FogCheck *fogCheckPayload `json:"fogCheck"`
	IsStable bool             `json:"isStable"`
}

func (h *Handler) handlePostCheckin(w http.ResponseWriter, r *http.Request) {
	var req checkinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.ProtocolID) == "" {
		writeError(w, apperrors.E(apperrors.KindInvalidInput, "A protocol id is required."))
		return
	}

	result, err := h.checkins.Submit(r.Context(), userID(r), checkin.Input{
		ProtocolID:         req.ProtocolID,
		ProtocolCompleted:  req.ProtocolCompleted,
		OxygenConnected:    req.OxygenConnected,
		OxygenLevelCurrent: req.OxygenLevelCurrent,
		Notes:              req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	_ = httpx.WriteJSON(w, http.StatusOK, checkinResponse{
		Success: true,
		Checkin: checkinSummary{
			ID:                 result.Checkin.ID,
			WeekOf:             result.Checkin.WeekOf.Format("2006-01-02"),
			OxygenLevelCurrent: result.Checkin.OxygenLevelCurrent,
		},
		FogCheck: fogCheckToPayload(result.FogCheck),
		IsStable: result.IsStable,
	})
}

func fogCheckToPayload(check *domain.FogCheck) *fogCheckPayload {
	if check == nil {
		return nil
	}
	return &fogCheckPayload{
		ID:                check.ID,
		Observation:       check.Observation,
		StrategicQuestion: check.StrategicQuestion,
		CheckType:         string(check.CheckType),
		CreatedAt:         check.CreatedAt.UTC().Format(time.RFC3339),
	}
}
