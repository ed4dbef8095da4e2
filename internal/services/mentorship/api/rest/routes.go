package rest

import "net/http"

// Routes builds the API mux. Every /api route requires a bearer session.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.handleHealthz)

	mux.HandleFunc("GET /api/transition", h.requireAuth(h.handleGetTransition))
	mux.HandleFunc("POST /api/transition", h.requireAuth(h.handlePostTransition))

	mux.HandleFunc("POST /api/recovery-checkin", h.requireAuth(h.handlePostCheckin))

	mux.HandleFunc("GET /api/crisis-protocol", h.requireAuth(h.handleGetProtocol))
	mux.HandleFunc("POST /api/crisis-protocol", h.requireAuth(h.handlePostProtocol))
	mux.HandleFunc("PATCH /api/crisis-protocol", h.requireAuth(h.handlePatchProtocol))

	mux.HandleFunc("GET /api/tokens", h.requireAuth(h.handleGetTokens))
	mux.HandleFunc("GET /api/fog-checks", h.requireAuth(h.handleGetFogChecks))
	mux.HandleFunc("GET /api/patterns", h.requireAuth(h.handleGetPatterns))

	return mux
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
