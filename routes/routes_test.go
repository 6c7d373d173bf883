package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Dosada05/battle-tournament/brackets"
	"github.com/Dosada05/battle-tournament/handlers"
	"github.com/Dosada05/battle-tournament/repositories"
	"github.com/Dosada05/battle-tournament/services"
	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

const staffPassword = "floor-is-lava"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hash, err := bcrypt.GenerateFromPassword([]byte(staffPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword failed: %v", err)
	}

	engine := services.NewEngine(repositories.NewMemoryRepositories(), nil, nil, logger)
	hub := brackets.NewHub(logger)

	router := chi.NewRouter()
	SetupRoutes(router,
		Options{JWTSecret: "secret", RateLimitRPS: 1000, RateLimitBurst: 1000, Logger: logger},
		handlers.NewAuthHandler(string(hash), "secret", time.Hour, logger),
		handlers.NewTournamentHandler(engine),
		handlers.NewContestHandler(engine),
		handlers.NewWebSocketHandler(hub, engine.Registration, logger),
	)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, token string, body interface{}) (int, map[string]json.RawMessage) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := map[string]json.RawMessage{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func staffToken(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	status, body := call(t, srv, http.MethodPost, "/auth/token", "", map[string]string{"name": "lea", "password": staffPassword})
	if status != http.StatusOK {
		t.Fatalf("token request returned %d", status)
	}
	var token string
	if err := json.Unmarshal(body["token"], &token); err != nil {
		t.Fatalf("token missing: %v", err)
	}
	return token
}

func TestTokenRejectsWrongPassword(t *testing.T) {
	srv := newTestServer(t)
	status, _ := call(t, srv, http.MethodPost, "/auth/token", "", map[string]string{"name": "lea", "password": "nope"})
	if status != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", status)
	}
}

func TestWritesRequireStaffToken(t *testing.T) {
	srv := newTestServer(t)
	status, _ := call(t, srv, http.MethodPost, "/tournaments", "", map[string]string{"name": "Spring Battle"})
	if status != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", status)
	}
}

func TestAdvanceReportsReasonsAsUnprocessable(t *testing.T) {
	srv := newTestServer(t)
	token := staffToken(t, srv)

	status, body := call(t, srv, http.MethodPost, "/tournaments", token, map[string]string{"name": "Spring Battle"})
	if status != http.StatusCreated {
		t.Fatalf("create returned %d", status)
	}
	var tournament struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(body["tournament"], &tournament); err != nil {
		t.Fatalf("decode tournament: %v", err)
	}

	status, body = call(t, srv, http.MethodPost, fmt.Sprintf("/tournaments/%d/advance", tournament.ID), token, nil)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", status)
	}
	var reasons []services.Reason
	if err := json.Unmarshal(body["reasons"], &reasons); err != nil {
		t.Fatalf("decode reasons: %v", err)
	}
	if len(reasons) != 1 || reasons[0].Rule != services.RuleNoCategories {
		t.Errorf("unexpected reasons %+v", reasons)
	}

	status, _ = call(t, srv, http.MethodGet, fmt.Sprintf("/tournaments/%d", tournament.ID), "", nil)
	if status != http.StatusOK {
		t.Errorf("public read returned %d", status)
	}
}

func TestUnknownTournamentIsNotFound(t *testing.T) {
	srv := newTestServer(t)
	status, _ := call(t, srv, http.MethodGet, "/tournaments/999/overview", "", nil)
	if status != http.StatusNotFound {
		t.Errorf("expected 404, got %d", status)
	}
	status, _ = call(t, srv, http.MethodGet, "/tournaments/abc", "", nil)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400 for a malformed id, got %d", status)
	}
}

func TestActivateConflictMapsTo409(t *testing.T) {
	srv := newTestServer(t)
	token := staffToken(t, srv)

	_, body := call(t, srv, http.MethodPost, "/tournaments", token, map[string]string{"name": "Summer Battle"})
	var tournament struct {
		ID int `json:"id"`
	}
	_ = json.Unmarshal(body["tournament"], &tournament)

	_, body = call(t, srv, http.MethodPost, fmt.Sprintf("/tournaments/%d/categories", tournament.ID), token,
		map[string]interface{}{"name": "Solo", "pool_count": 1})
	var category struct {
		ID int `json:"id"`
	}
	_ = json.Unmarshal(body["category"], &category)

	for i := 0; i < 4; i++ {
		status, _ := call(t, srv, http.MethodPost, fmt.Sprintf("/categories/%d/contestants", category.ID), token,
			map[string]string{"display_name": fmt.Sprintf("dancer %d", i+1)})
		if status != http.StatusCreated {
			t.Fatalf("register returned %d", status)
		}
	}
	if status, _ := call(t, srv, http.MethodPost, fmt.Sprintf("/tournaments/%d/advance", tournament.ID), token, nil); status != http.StatusOK {
		t.Fatalf("advance returned %d", status)
	}

	_, body = call(t, srv, http.MethodGet, fmt.Sprintf("/tournaments/%d/queue", tournament.ID), "", nil)
	var queue []struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(body["queue"], &queue); err != nil || len(queue) != 2 {
		t.Fatalf("expected two queued contests, got %v (%v)", queue, err)
	}

	if status, _ := call(t, srv, http.MethodPost, fmt.Sprintf("/contests/%d/activate", queue[0].ID), token, nil); status != http.StatusOK {
		t.Fatalf("activate returned %d", status)
	}
	if status, _ := call(t, srv, http.MethodPost, fmt.Sprintf("/contests/%d/activate", queue[1].ID), token, nil); status != http.StatusConflict {
		t.Errorf("expected 409 for a second active contest, got %d", status)
	}
}
