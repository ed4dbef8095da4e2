package rest

import (
	"log"
	"net/http"
	"time"

	"github.com/ascentlabs/ascentledger/internal/platform/httpx"
)

type transactionPayload struct {
	ID           string `json:"id"`
	Amount       int64  `json:"amount"`
	Type         string `json:"type"`
	Description  string `json:"description,omitempty"`
	BalanceAfter int64  `json:"balanceAfter"`
	CreatedAt    string `json:"createdAt"`
}

func (h *Handler) handleGetTokens(w http.ResponseWriter, r *http.Request) {
	summary, err := h.ledger.Summarize(r.Context(), userID(r), 50)
	if err != nil {
		log.Printf("[API] token summary for %s: %v", userID(r), err)
		writeError(w, err)
		return
	}
	transactions := make([]transactionPayload, 0, len(summary.Transactions))
	for _, txn := range summary.Transactions {
		transactions = append(transactions, transactionPayload{
			ID:           txn.ID,
			Amount:       txn.Amount,
			Type:         string(txn.Type),
			Description:  txn.Description,
			BalanceAfter: txn.BalanceAfter,
			CreatedAt:    txn.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"balance":      summary.Balance,
		"transactions": transactions,
	})
}

func (h *Handler) handleGetFogChecks(w http.ResponseWriter, r *http.Request) {
	checks, err := h.fogChecks.ListFogChecks(r.Context(), userID(r), 20)
	if err != nil {
		log.Printf("[API] list fog checks for %s: %v", userID(r), err)
		writeError(w, err)
		return
	}
	payload := make([]fogCheckPayload, 0, len(checks))
	for _, check := range checks {
		payload = append(payload, *fogCheckToPayload(&check))
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"fogChecks": payload})
}

// handleGetPatterns surfaces the derived patterns. Evaluation is best-effort:
// an engine failure is logged and the response is an empty list.
func (h *Handler) handleGetPatterns(w http.ResponseWriter, r *http.Request) {
	type patternPayload struct {
		Name        string `json:"name"`
		ProtocolID  string `json:"protocolId"`
		Description string `json:"description"`
	}
	payload := []patternPayload{}
	detected, err := h.patterns.Detect(r.Context(), userID(r))
	if err != nil {
		log.Printf("[API] pattern detection for %s: %v", userID(r), err)
	} else {
		for _, d := range detected {
			payload = append(payload, patternPayload{
				Name:        d.Name,
				ProtocolID:  d.ProtocolID,
				Description: d.Description,
			})
		}
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"patterns": payload})
}
