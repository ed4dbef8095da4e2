// Package rest exposes the mentorship service over a JSON HTTP API.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ascentlabs/ascentledger/internal/platform/apperrors"
	"github.com/ascentlabs/ascentledger/internal/platform/httpx"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/checkin"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/ledger"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/patterns"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/protocol"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/recovery"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/storage"
)

// TokenVerifier validates a bearer token and returns the user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Handler carries the services behind the REST surface.
type Handler struct {
	verifier  TokenVerifier
	users     storage.UserStore
	fogChecks storage.FogCheckStore
	recovery  *recovery.Service
	checkins  *checkin.Service
	protocols *protocol.Service
	ledger    *ledger.Service
	patterns  *patterns.Detector
	now       func() time.Time
}

// Config wires the REST handler's collaborators.
type Config struct {
	Verifier  TokenVerifier
	Users     storage.UserStore
	FogChecks storage.FogCheckStore
	Recovery  *recovery.Service
	Checkins  *checkin.Service
	Protocols *protocol.Service
	Ledger    *ledger.Service
	Patterns  *patterns.Detector
}

// NewHandler builds the REST handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		verifier:  cfg.Verifier,
		users:     cfg.Users,
		fogChecks: cfg.FogChecks,
		recovery:  cfg.Recovery,
		checkins:  cfg.Checkins,
		protocols: cfg.Protocols,
		ledger:    cfg.Ledger,
		patterns:  cfg.Patterns,
		now:       time.Now,
	}
}

type contextKey string

const userIDKey contextKey = "mentorship.userID"

// userID extracts the authenticated user id from the request context.
func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

// requireAuth verifies the bearer token and provisions the local user row on
// first sight. Every failure is the same uniform 401.
func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			_ = httpx.WriteJSONError(w, http.StatusUnauthorized, "Authentication required.")
			return
		}
		uid, err := h.verifier.Verify(token)
		if err != nil {
			_ = httpx.WriteJSONError(w, http.StatusUnauthorized, "Authentication required.")
			return
		}
		if _, err := h.users.EnsureUser(r.Context(), uid, h.now().UTC()); err != nil {
			log.Printf("[API] provision user %s: %v", uid, err)
			_ = httpx.WriteJSONError(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, uid)))
	}
}

// writeError maps an error to the response taxonomy. Untyped errors are a
// generic 500; the cause is already logged where it happened.
func writeError(w http.ResponseWriter, err error) {
	if apperrors.KindOf(err) == apperrors.KindRateLimited {
		_ = httpx.WriteRateLimited(w, protocol.CreateWindow)
		return
	}
	_ = httpx.WriteJSONError(w, apperrors.HTTPStatus(err), apperrors.UserMessage(err))
}

// decodeJSON reads a request body into target, rejecting malformed JSON.
func decodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.E(apperrors.KindInvalidInput, "Request body is too large.")
		}
		return apperrors.E(apperrors.KindInvalidInput, "Request body must be valid JSON.")
	}
	return nil
}
