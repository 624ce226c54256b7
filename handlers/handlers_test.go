package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"

	"landmark-quest/logger"
	"landmark-quest/repository/repotest"
	"landmark-quest/services"
)

const testToken = "gateway-secret"

func TestMain(m *testing.M) {
	logger.Silence()
	os.Exit(m.Run())
}

func setupApp(t *testing.T) *fiber.App {
	t.Helper()

	store := repotest.NewStore(t)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))

	catalog := services.NewCatalogService(store)
	settings := services.NewSettingsService(store, services.Radii{Detection: 250, Claim: 20}, 5000)
	proximity := services.NewProximityService(catalog, settings, store, clock, time.UTC)
	inbox := services.NewInbox(0)
	engine := services.NewClaimEngine(store, catalog, settings, inbox, services.ClaimEngineConfig{
		Location:     time.UTC,
		WriteTimeout: 2 * time.Second,
		Clock:        clock,
	})
	engine.Subscribe(proximity)
	profiles := services.NewProfileService(store, settings, engine.Policy(), clock, time.UTC, 168*time.Hour)
	admin := services.NewAdminService(engine, catalog, settings, profiles)
	admin.Subscribe(proximity)

	return NewApp(AppConfig{GatewayToken: testToken, AllowedOrigins: []string{"*"}}, Services{
		Catalog:     catalog,
		Proximity:   proximity,
		Engine:      engine,
		Profiles:    profiles,
		Settings:    settings,
		Leaderboard: services.NewLeaderboardService(store, 50),
		Admin:       admin,
		Inbox:       inbox,
	})
}

// call sends a gateway-authenticated request as user (omitted when empty).
func call(t *testing.T, app *fiber.App, method, path, user, roles, body string) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	if roles != "" {
		req.Header.Set("X-User-Roles", roles)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func TestGatewayAuth(t *testing.T) {
	app := setupApp(t)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"bearer token", "Bearer " + testToken, http.StatusOK},
		{"raw token", testToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/nodes", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req, -1)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d, want 200 without a token", resp.StatusCode)
	}
}

func TestUserAndRoleGuards(t *testing.T) {
	app := setupApp(t)

	if code, _ := call(t, app, http.MethodGet, "/user/progress", "", "", ""); code != http.StatusUnauthorized {
		t.Errorf("no X-User-ID: status = %d, want 401", code)
	}
	if code, _ := call(t, app, http.MethodGet, "/user/proximity/stream", "", "", ""); code != http.StatusUnauthorized {
		t.Errorf("stream without X-User-ID: status = %d, want 401", code)
	}
	if code, _ := call(t, app, http.MethodPut, "/admin/radii", "p1", "player", `{"detection_radius":300,"claim_radius":30}`); code != http.StatusForbidden {
		t.Errorf("non-admin: status = %d, want 403", code)
	}
	if code, _ := call(t, app, http.MethodPut, "/admin/radii", "ops", "player, Admin", `{"detection_radius":300,"claim_radius":30}`); code != http.StatusOK {
		t.Errorf("admin: status = %d, want 200", code)
	}
}

func TestClaimFlow(t *testing.T) {
	app := setupApp(t)

	code, body := call(t, app, http.MethodPost, "/admin/nodes", "ops", "admin", `{"name":"Harbor","lat":40.0,"lng":-74.0,"points":100}`)
	if code != http.StatusCreated {
		t.Fatalf("create node: status = %d, body %v", code, body)
	}

	if code, _ := call(t, app, http.MethodGet, "/user/proximity", "p1", "", ""); code != http.StatusNotFound {
		t.Errorf("proximity before any position: status = %d, want 404", code)
	}

	code, body = call(t, app, http.MethodPost, "/user/position", "p1", "", `{"lat":40.00005,"lng":-74.0}`)
	if code != http.StatusOK || body["can_claim"] != true {
		t.Fatalf("position: status = %d, body %v", code, body)
	}

	code, body = call(t, app, http.MethodPost, "/user/claims", "p1", "", `{"lat":40.00005,"lng":-74.0}`)
	if code != http.StatusOK || body["status"] != "secured" || body["total_earned"] != float64(100) {
		t.Fatalf("claim: status = %d, body %v", code, body)
	}

	code, body = call(t, app, http.MethodPost, "/user/claims", "p1", "", `{"node_id":"harbor"}`)
	if code != http.StatusOK || body["status"] != "already_secured" {
		t.Errorf("second claim: status = %d, body %v", code, body)
	}

	code, body = call(t, app, http.MethodGet, "/user/progress", "p1", "", "")
	if code != http.StatusOK || body["total_points"] != float64(100) {
		t.Errorf("progress: status = %d, body %v", code, body)
	}

	code, body = call(t, app, http.MethodGet, "/user/progress/history?page=1&size=5", "p1", "", "")
	if code != http.StatusOK || body["total"] != float64(1) {
		t.Errorf("history: status = %d, body %v", code, body)
	}
}

func TestBadRequests(t *testing.T) {
	app := setupApp(t)

	tests := []struct {
		name, method, path, body string
	}{
		{"malformed json", http.MethodPost, "/user/claims", `{"node_id":`},
		{"both selectors", http.MethodPost, "/user/claims", `{"node_id":"a","lat":1,"lng":2}`},
		{"no selector", http.MethodPost, "/user/claims", `{}`},
		{"half a position", http.MethodPost, "/user/claims", `{"lat":1}`},
		{"radius missing", http.MethodPut, "/user/radius", `{}`},
		{"bad coordinates", http.MethodPost, "/user/position", `{"lat":91,"lng":0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, body := call(t, app, tt.method, tt.path, "p1", "", tt.body); code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %v)", code, body)
			}
		})
	}
}

func TestSoftOutcomesAreOK(t *testing.T) {
	app := setupApp(t)

	code, body := call(t, app, http.MethodPut, "/user/username", "p1", "", `{"username":"ab"}`)
	if code != http.StatusOK || body["applied"] != false || body["message"] != "Identity too short" {
		t.Errorf("short username: status = %d, body %v", code, body)
	}

	code, body = call(t, app, http.MethodPut, "/user/radius", "p1", "", `{"detection_radius":5}`)
	if code != http.StatusOK || body["applied"] != false {
		t.Errorf("radius below claim: status = %d, body %v", code, body)
	}
}

func TestRespondError(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return respondError(c, fmt.Errorf("%w: connection refused", services.ErrStorageUnavailable))
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	var body map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&body)
	if body["retryable"] != true {
		t.Errorf("retryable = %v, want true", body["retryable"])
	}
}
