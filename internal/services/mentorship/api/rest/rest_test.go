package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ascentlabs/ascentledger/internal/platform/apperrors"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/checkin"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/feedback"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/ledger"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/patterns"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/protocol"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/recovery"
	"github.com/ascentlabs/ascentledger/internal/services/mentorship/storage/sqlite"
)

// stubVerifier accepts tokens of the form "token:<userID>".
type stubVerifier struct{}

func (stubVerifier) Verify(token string) (string, error) {
	var uid string
	if _, err := fmt.Sscanf(token, "token:%s", &uid); err != nil || uid == "" {
		return "", apperrors.E(apperrors.KindUnauthorized, "Authentication required.")
	}
	return uid, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	gen := feedback.New(nil)
	handler := NewHandler(Config{
		Verifier:  stubVerifier{},
		Users:     store,
		FogChecks: store,
		Recovery:  recovery.NewService(store, gen),
		Checkins:  checkin.NewService(store, gen),
		Protocols: protocol.NewService(store, protocol.NewLimiter(store), gen),
		Ledger:    ledger.NewService(store),
		Patterns:  patterns.NewDetector(store),
	})
	server := httptest.NewServer(handler.Routes())
	t.Cleanup(server.Close)
	return server, store
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { res.Body.Close() })

	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		payload = nil
	}
	return res, payload
}

func createProtocol(t *testing.T, server *httptest.Server, token string) string {
	t.Helper()
	res, payload := doJSON(t, http.MethodPost, server.URL+"/api/crisis-protocol", token, map[string]any{
		"crisisType":   "BURNOUT",
		"burdenToCut":  "weekend on-call shifts",
		"oxygenSource": "saturday morning rides",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create protocol status = %d, body = %v", res.StatusCode, payload)
	}
	proto, _ := payload["protocol"].(map[string]any)
	id, _ := proto["id"].(string)
	if id == "" {
		t.Fatalf("protocol id missing in %v", payload)
	}
	return id
}

func TestRoutesRequireAuth(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/transition"},
		{http.MethodPost, "/api/transition"},
		{http.MethodPost, "/api/recovery-checkin"},
		{http.MethodGet, "/api/crisis-protocol"},
		{http.MethodPost, "/api/crisis-protocol"},
		{http.MethodPatch, "/api/crisis-protocol"},
		{http.MethodGet, "/api/tokens"},
		{http.MethodGet, "/api/fog-checks"},
		{http.MethodGet, "/api/patterns"},
	}
	for _, route := range routes {
		res, payload := doJSON(t, route.method, server.URL+route.path, "", nil)
		if res.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s %s status = %d, want 401", route.method, route.path, res.StatusCode)
		}
		if payload["error"] != "Authentication required." {
			t.Fatalf("%s %s error = %v, want uniform message", route.method, route.path, payload["error"])
		}
	}
}

func TestHealthzIsPublic(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	res, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
}

func TestProtocolLifecycle(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	protocolID := createProtocol(t, server, "token:user-1")

	res, payload := doJSON(t, http.MethodGet, server.URL+"/api/crisis-protocol", "token:user-1", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", res.StatusCode)
	}
	proto, _ := payload["protocol"].(map[string]any)
	if proto["id"] != protocolID {
		t.Fatalf("protocol id = %v, want %s", proto["id"], protocolID)
	}
	if proto["crisisType"] != "BURNOUT" {
		t.Fatalf("crisis type = %v", proto["crisisType"])
	}

	res, payload = doJSON(t, http.MethodPatch, server.URL+"/api/crisis-protocol", "token:user-1", map[string]any{
		"protocolId": protocolID,
		"burdenCut":  true,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d, body = %v", res.StatusCode, payload)
	}
	proto, _ = payload["protocol"].(map[string]any)
	if proto["burdenCut"] != true {
		t.Fatalf("burden cut = %v, want true", proto["burdenCut"])
	}
}

func TestProtocolCreateValidation(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	res, payload := doJSON(t, http.MethodPost, server.URL+"/api/crisis-protocol", "token:user-1", map[string]any{
		"crisisType":  "BURNOUT",
		"burdenToCut": "x",
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
	if payload["error"] != "An oxygen source is required." {
		t.Fatalf("error = %v", payload["error"])
	}
}

func TestProtocolCreateRateLimited(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	// The limiter admits a request before the duplicate-protocol check, so
	// rejected duplicates still consume the window.
	createProtocol(t, server, "token:limited")
	for i := 0; i < protocol.CreateLimit-1; i++ {
		res, _ := doJSON(t, http.MethodPost, server.URL+"/api/crisis-protocol", "token:limited", map[string]any{
			"crisisType":   "BURNOUT",
			"burdenToCut":  "x",
			"oxygenSource": "y",
		})
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("request %d status = %d, want 400 for second active protocol", i, res.StatusCode)
		}
	}

	res, payload := doJSON(t, http.MethodPost, server.URL+"/api/crisis-protocol", "token:limited", map[string]any{
		"crisisType":   "BURNOUT",
		"burdenToCut":  "x",
		"oxygenSource": "y",
	})
	if res.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", res.StatusCode)
	}
	if res.Header.Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing")
	}
	if payload["retryAfter"] == nil {
		t.Fatalf("payload = %v, want shared rate-limit shape", payload)
	}
}

func TestCheckinFlow(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	protocolID := createProtocol(t, server, "token:user-1")

	res, payload := doJSON(t, http.MethodPost, server.URL+"/api/recovery-checkin", "token:user-1", map[string]any{
		"protocolId":         protocolID,
		"oxygenLevelCurrent": 7,
		"notes":              "steady week",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", res.StatusCode, payload)
	}
	if payload["success"] != true {
		t.Fatalf("success = %v", payload["success"])
	}
	if payload["isStable"] != false {
		t.Fatalf("isStable = %v, want false", payload["isStable"])
	}
	if payload["fogCheck"] != nil {
		t.Fatalf("fogCheck = %v, want null with generation disabled", payload["fogCheck"])
	}
	ci, _ := payload["checkin"].(map[string]any)
	if ci["id"] == "" || ci["weekOf"] == "" {
		t.Fatalf("checkin = %v", ci)
	}

	// Same ISO week again is a 400.
	res, payload = doJSON(t, http.MethodPost, server.URL+"/api/recovery-checkin", "token:user-1", map[string]any{
		"protocolId": protocolID,
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate status = %d, want 400", res.StatusCode)
	}
	if payload["error"] != "You already checked in this week." {
		t.Fatalf("error = %v", payload["error"])
	}
}

func TestCheckinValidationAndOwnership(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	protocolID := createProtocol(t, server, "token:owner")

	res, _ := doJSON(t, http.MethodPost, server.URL+"/api/recovery-checkin", "token:owner", map[string]any{
		"protocolId":         protocolID,
		"oxygenLevelCurrent": 11,
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("oxygen 11 status = %d, want 400", res.StatusCode)
	}

	res, payload := doJSON(t, http.MethodPost, server.URL+"/api/recovery-checkin", "token:intruder", map[string]any{
		"protocolId": protocolID,
	})
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign protocol status = %d, want 404", res.StatusCode)
	}
	if payload["error"] != "Protocol not found." {
		t.Fatalf("error = %v, want non-disclosing message", payload["error"])
	}
}

func TestTransitionStatusAndExecution(t *testing.T) {
	t.Parallel()

	server, store := newTestServer(t)
	protocolID := createProtocol(t, server, "token:user-1")

	res, payload := doJSON(t, http.MethodGet, server.URL+"/api/transition", "token:user-1", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", res.StatusCode)
	}
	if payload["isEligible"] != false {
		t.Fatalf("isEligible = %v, want false on day zero", payload["isEligible"])
	}
	blockers, _ := payload["blockers"].([]any)
	if len(blockers) == 0 {
		t.Fatal("blockers empty for a fresh protocol")
	}

	// Posting while ineligible is a 400 carrying the checker's message.
	res, payload = doJSON(t, http.MethodPost, server.URL+"/api/transition", "token:user-1", map[string]any{
		"protocolId": protocolID,
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("post status = %d, want 400", res.StatusCode)
	}
	if payload["success"] != false {
		t.Fatalf("success = %v, want false", payload["success"])
	}
	if payload["message"] == "" {
		t.Fatal("message missing on ineligible transition")
	}

	// Age the episode past the day lock and backfill three stable weeks.
	agePastDayLock(t, store, "user-1", protocolID)

	res, payload = doJSON(t, http.MethodPost, server.URL+"/api/transition", "token:user-1", map[string]any{
		"protocolId": protocolID,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("post status = %d, body = %v", res.StatusCode, payload)
	}
	if payload["success"] != true {
		t.Fatalf("success = %v", payload["success"])
	}
	if payload["tokensAwarded"] != float64(150) {
		t.Fatalf("tokensAwarded = %v, want 150", payload["tokensAwarded"])
	}
}

func TestTokensAndFogChecks(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	createProtocol(t, server, "token:user-1")

	res, payload := doJSON(t, http.MethodGet, server.URL+"/api/tokens", "token:user-1", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("tokens status = %d", res.StatusCode)
	}
	if payload["balance"] != float64(25) {
		t.Fatalf("balance = %v, want creation reward 25", payload["balance"])
	}
	transactions, _ := payload["transactions"].([]any)
	if len(transactions) != 1 {
		t.Fatalf("transactions = %d, want 1", len(transactions))
	}

	res, payload = doJSON(t, http.MethodGet, server.URL+"/api/fog-checks", "token:user-1", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("fog checks status = %d", res.StatusCode)
	}
	checks, ok := payload["fogChecks"].([]any)
	if !ok || len(checks) != 0 {
		t.Fatalf("fogChecks = %v, want empty list", payload["fogChecks"])
	}
}

func TestPatternsEndpoint(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	res, payload := doJSON(t, http.MethodGet, server.URL+"/api/patterns", "token:user-1", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patterns status = %d", res.StatusCode)
	}
	list, ok := payload["patterns"].([]any)
	if !ok || len(list) != 0 {
		t.Fatalf("patterns = %v, want empty list without history", payload["patterns"])
	}
}

func TestMalformedJSONBody(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/crisis-protocol", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer token:user-1")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
}

// agePastDayLock rewrites the recovery episode so it started 30 days ago and
// backfills three qualifying weekly check-ins.
func agePastDayLock(t *testing.T, store *sqlite.Store, userID string, protocolID string) {
	t.Helper()
	started := time.Now().UTC().AddDate(0, 0, -30)
	if _, err := store.DB().Exec(
		`UPDATE users SET recovery_started_at = ? WHERE id = ?`,
		started.UnixMilli(), userID,
	); err != nil {
		t.Fatalf("age recovery start: %v", err)
	}
	for i := 0; i < 3; i++ {
		weekOf := weekStartMillis(time.Now().UTC().AddDate(0, 0, -7*(i+1)))
		if _, err := store.DB().Exec(`
INSERT INTO recovery_checkins (id, user_id, protocol_id, week_of, oxygen_level_current, notes, created_at)
VALUES (?, ?, ?, ?, ?, '', ?)
`, fmt.Sprintf("backfill-%d", i), userID, protocolID, weekOf, 7, weekOf); err != nil {
			t.Fatalf("backfill checkin %d: %v", i, err)
		}
	}
	if _, err := store.DB().Exec(
		`UPDATE crisis_protocols SET oxygen_level_current = 7 WHERE id = ?`, protocolID,
	); err != nil {
		t.Fatalf("set protocol oxygen: %v", err)
	}
}

func weekStartMillis(t time.Time) int64 {
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -offset).UnixMilli()
}
