package rest

import (
	"net/http"
	"strings"
	"time"

	"github.com/ascentlabs/ascentledger/internal/platform/apperrors"
	"github.com/ascentlabs/ascentledger/internal/platform/httpx"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/domain"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/protocol"
)

type protocolPayload struct {
	ID                 string  `json:"id"`
	CrisisType         string  `json:"crisisType"`
	BurdenToCut        string  `json:"burdenToCut"`
	OxygenSource       string  `json:"oxygenSource"`
	BurdenCut          bool    `json:"burdenCut"`
	OxygenConnected    bool    `json:"oxygenConnected"`
	OxygenLevelStart   *int    `json:"oxygenLevelStart"`
	OxygenLevelCurrent *int    `json:"oxygenLevelCurrent"`
	CompletedAt        *string `json:"completedAt"`
	CreatedAt          string  `json:"createdAt"`
}

type protocolCheckinPayload struct {
	ID                 string `json:"id"`
	WeekOf             string `json:"weekOf"`
	ProtocolCompleted  *bool  `json:"protocolCompleted"`
	OxygenConnected    *bool  `json:"oxygenConnected"`
	OxygenLevelCurrent *int   `json:"oxygenLevelCurrent"`
	Notes              string `json:"notes,omitempty"`
}

func protocolToPayload(p domain.CrisisProtocol) protocolPayload {
	payload := protocolPayload{
		ID:                 p.ID,
		CrisisType:         string(p.CrisisType),
		BurdenToCut:        p.BurdenToCut,
		OxygenSource:       p.OxygenSource,
		BurdenCut:          p.BurdenCut,
		OxygenConnected:    p.OxygenConnected,
		OxygenLevelStart:   p.OxygenLevelStart,
		OxygenLevelCurrent: p.OxygenLevelCurrent,
		CreatedAt:          p.CreatedAt.UTC().Format(time.RFC3339),
	}
	if p.CompletedAt != nil {
		completed := p.CompletedAt.UTC().Format(time.RFC3339)
		payload.CompletedAt = &completed
	}
	return payload
}

func (h *Handler) handleGetProtocol(w http.ResponseWriter, r *http.Request) {
	view, err := h.protocols.GetActive(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	checkins := make([]protocolCheckinPayload, 0, len(view.Checkins))
	for _, c := range view.Checkins {
		checkins = append(checkins, protocolCheckinPayload{
			ID:                 c.ID,
			WeekOf:             c.WeekOf.Format("2006-01-02"),
			ProtocolCompleted:  c.ProtocolCompleted,
			OxygenConnected:    c.OxygenConnected,
			OxygenLevelCurrent: c.OxygenLevelCurrent,
			Notes:              c.Notes,
		})
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"protocol": protocolToPayload(view.Protocol),
		"checkins": checkins,
	})
}

type createProtocolRequest struct {
	CrisisType       string `json:"crisisType"`
	BurdenToCut      string `json:"burdenToCut"`
	OxygenSource     string `json:"oxygenSource"`
	OxygenLevelStart *int   `json:"oxygenLevelStart,omitempty"`
}

func (h *Handler) handlePostProtocol(w http.ResponseWriter, r *http.Request) {
	var req createProtocolRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.protocols.Create(r.Context(), userID(r), domain.NewProtocolInput{
		CrisisType:       domain.CrisisType(strings.TrimSpace(req.CrisisType)),
		BurdenToCut:      req.BurdenToCut,
		OxygenSource:     req.OxygenSource,
		OxygenLevelStart: req.OxygenLevelStart,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"success":       true,
		"protocol":      protocolToPayload(result.Protocol),
		"tokensAwarded": result.TokensAwarded,
		"newBalance":    result.NewBalance,
		"fogCheck":      fogCheckToPayload(result.FogCheck),
	})
}

type patchProtocolRequest struct {
	ProtocolID         string `json:"protocolId"`
	BurdenCut          *bool  `json:"burdenCut,omitempty"`
	OxygenConnected    *bool  `json:"oxygenConnected,omitempty"`
	OxygenLevelCurrent *int   `json:"oxygenLevelCurrent,omitempty"`
}

func (h *Handler) handlePatchProtocol(w http.ResponseWriter, r *http.Request) {
	var req patchProtocolRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.ProtocolID) == "" {
		writeError(w, apperrors.E(apperrors.KindInvalidInput, "A protocol id is required."))
		return
	}

	updated, err := h.protocols.Patch(r.Context(), userID(r), protocol.PatchInput{
		ProtocolID:         req.ProtocolID,
		BurdenCut:          req.BurdenCut,
		OxygenConnected:    req.OxygenConnected,
		OxygenLevelCurrent: req.OxygenLevelCurrent,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"protocol": protocolToPayload(updated),
	})
}
