package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/haven-org/haven/internal/auth"
	"github.com/haven-org/haven/internal/donations"
	"github.com/haven-org/haven/internal/models"
	"github.com/haven-org/haven/internal/settings"
)

const testSecret = "test-secret"

type testEnv struct {
	router *gin.Engine
	store  *settings.MemoryStore
	admin  string
	viewer string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := settings.NewMemoryStore()
	v := auth.NewVerifier(testSecret, "haven")
	router, err := NewRouter(StartOpts{Store: mem, Verifier: v})
	require.NoError(t, err)

	admin, err := v.Issue("admin@haven.org", []string{auth.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	viewer, err := v.Issue("viewer@haven.org", []string{"viewer"}, time.Hour)
	require.NoError(t, err)
	return &testEnv{router: router, store: mem, admin: admin, viewer: viewer}
}

func (e *testEnv) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func getDonations(t *testing.T, e *testEnv) donations.Settings {
	t.Helper()
	rec := e.do(http.MethodGet, "/api/settings/donations", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success)
	var s donations.Settings
	require.NoError(t, json.Unmarshal(env.Data, &s))
	return s
}

// brokenStore fails every operation.
type brokenStore struct{}

var errBroken = errors.New("connection refused")

func (brokenStore) Get(context.Context, string) (*models.Setting, error) { return nil, errBroken }
func (brokenStore) Upsert(context.Context, string, []byte, settings.Meta) (*models.Setting, error) {
	return nil, errBroken
}
func (brokenStore) List(context.Context, string) ([]models.Setting, error) { return nil, errBroken }
func (brokenStore) Ping(context.Context) error                            { return errBroken }

func newBrokenRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	v := auth.NewVerifier(testSecret, "haven")
	router, err := NewRouter(StartOpts{Store: brokenStore{}, Verifier: v})
	require.NoError(t, err)
	token, err := v.Issue("admin", []string{auth.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	return router, token
}

func TestNewRouter_RequiresDependencies(t *testing.T) {
	_, err := NewRouter(StartOpts{Verifier: auth.NewVerifier("x", "y")})
	assert.ErrorContains(t, err, "store is required")

	_, err = NewRouter(StartOpts{Store: settings.NewMemoryStore()})
	assert.ErrorContains(t, err, "verifier is required")
}

func TestStart_NilStore(t *testing.T) {
	err := Start(context.Background(), StartOpts{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store is required")
}

func TestGetDonations_EmptyStoreReturnsDefaults(t *testing.T) {
	e := newTestEnv(t)
	got := getDonations(t, e)

	if diff := cmp.Diff(donations.Defaults(), got); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
	assert.Zero(t, e.store.Len(), "reads must not create records")
}

func TestGetDonations_ResponseFieldNames(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodGet, "/api/settings/donations", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var raw struct {
		Success bool                       `json:"success"`
		Data    map[string]json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.True(t, raw.Success)
	for _, f := range []string{"goal", "presetAmounts", "defaultAmount", "impactExamples", "quickDonateAmounts", "donationOptions"} {
		assert.Contains(t, raw.Data, f)
	}
	assert.Len(t, raw.Data, 6)
}

func TestGetDonations_StoreFailure(t *testing.T) {
	router, _ := newBrokenRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/settings/donations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "Failed to fetch donation settings", env.Message)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestPutDonations_PartialUpdate(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodPut, "/api/settings/donations", e.admin, `{"goal": 50000}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.Equal(t, "Donation settings updated successfully", env.Message)

	assert.Equal(t, 1, e.store.Len())
	rec2, err := e.store.Get(context.Background(), "donation_goal")
	require.NoError(t, err)
	assert.JSONEq(t, "50000", rec2.Value)
	assert.Equal(t, donations.Category, rec2.Category)
	require.NotNil(t, rec2.Description)
	assert.Equal(t, "Donation goal amount", *rec2.Description)

	want := donations.Defaults()
	want.Goal = 50000
	if diff := cmp.Diff(want, getDonations(t, e)); diff != "" {
		t.Errorf("after partial update (-want +got):\n%s", diff)
	}
}

func TestPutDonations_ExplicitZeroIsStored(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodPut, "/api/settings/donations", e.admin, `{"defaultAmount": 0, "presetAmounts": []}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := getDonations(t, e)
	assert.Zero(t, got.DefaultAmount)
	assert.Empty(t, got.PresetAmounts)
	assert.Equal(t, 2, e.store.Len())
}

func TestPutDonations_FullUpdate(t *testing.T) {
	e := newTestEnv(t)
	body := `{
		"goal": 250000,
		"presetAmounts": [15, 30],
		"defaultAmount": 30,
		"impactExamples": [{"amount": 15, "text": "Buys a book"}],
		"quickDonateAmounts": [5],
		"donationOptions": [{"title": "Patron", "amount": "$500/year", "description": "d", "impact": "i"}],
		"unknownField": true
	}`
	rec := e.do(http.MethodPut, "/api/settings/donations", e.admin, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	want := donations.Settings{
		Goal:               250000,
		PresetAmounts:      []float64{15, 30},
		DefaultAmount:      30,
		ImpactExamples:     []donations.ImpactExample{{Amount: 15, Text: "Buys a book"}},
		QuickDonateAmounts: []float64{5},
		DonationOptions:    []donations.Option{{Title: "Patron", Amount: "$500/year", Description: "d", Impact: "i"}},
	}
	if diff := cmp.Diff(want, getDonations(t, e)); diff != "" {
		t.Errorf("after full update (-want +got):\n%s", diff)
	}
	assert.Equal(t, 6, e.store.Len())
}

func TestPutDonations_EmptyBodyObject(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodPut, "/api/settings/donations", e.admin, `{}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, e.store.Len())
}

func TestPutDonations_EmptyUpdateSkipsStore(t *testing.T) {
	router, token := newBrokenRouter(t)
	req := httptest.NewRequest(http.MethodPut, "/api/settings/donations", strings.NewReader(`{"unrelated": 1}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Donation settings updated successfully", decodeEnvelope(t, rec).Message)
}

func TestPutDonations_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"goal":`},
		{"not an object", `[1,2,3]`},
		{"null body", `null`},
		{"wrong type", `{"goal": "lots"}`},
		{"null field", `{"defaultAmount": null}`},
		{"valid plus invalid", `{"goal": 1, "presetAmounts": "five"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			rec := e.do(http.MethodPut, "/api/settings/donations", e.admin, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			env := decodeEnvelope(t, rec)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Message)
			assert.Zero(t, e.store.Len(), "invalid updates must not write")
		})
	}
}

func TestPutDonations_Unauthorized(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"bad token", "garbage", http.StatusUnauthorized},
		{"not admin", "viewer", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			token := tt.token
			if token == "viewer" {
				token = e.viewer
			}
			rec := e.do(http.MethodPut, "/api/settings/donations", token, `{"goal": 1}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.Zero(t, e.store.Len(), "rejected requests must not write")
		})
	}
}

func TestPutDonations_StoreFailure(t *testing.T) {
	router, token := newBrokenRouter(t)
	req := httptest.NewRequest(http.MethodPut, "/api/settings/donations", strings.NewReader(`{"goal": 1}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "Failed to update donation settings", env.Message)
}

func TestAdminSettings_PutGetList(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodPut, "/api/settings/site_title", e.admin,
		`{"value": {"text": "Haven", "size": 2}, "description": "Site title", "category": "site"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var put struct {
		Data struct {
			Key         string          `json:"key"`
			Value       json.RawMessage `json:"value"`
			Description *string         `json:"description"`
			Category    string          `json:"category"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &put))
	assert.Equal(t, "site_title", put.Data.Key)
	assert.JSONEq(t, `{"text": "Haven", "size": 2}`, string(put.Data.Value))
	require.NotNil(t, put.Data.Description)
	assert.Equal(t, "Site title", *put.Data.Description)
	assert.Equal(t, "site", put.Data.Category)

	rec = e.do(http.MethodPut, "/api/settings/maintenance", e.admin, `{"value": false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"category":"general"`)
	assert.Contains(t, rec.Body.String(), `"description":null`)

	rec = e.do(http.MethodGet, "/api/settings/site_title", e.admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"key":"site_title"`)

	rec = e.do(http.MethodGet, "/api/settings?category=site", e.admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []struct {
			Key string `json:"key"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "site_title", list.Data[0].Key)

	rec = e.do(http.MethodGet, "/api/settings", e.admin, "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Data, 2)
}

func TestAdminSettings_GetMissing(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodGet, "/api/settings/nope", e.admin, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "Setting not found", env.Message)
}

func TestAdminSettings_PutValidation(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
	}{
		{"missing value", "/api/settings/k", `{"description": "d"}`},
		{"null value", "/api/settings/k", `{"value": null}`},
		{"malformed", "/api/settings/k", `{"value":`},
		{"key too long", "/api/settings/" + strings.Repeat("k", settings.MaxKeyLength+1), `{"value": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			rec := e.do(http.MethodPut, tt.path, e.admin, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Zero(t, e.store.Len())
		})
	}
}

func TestAdminSettings_RequireAdmin(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/api/settings", "/api/settings/anything"} {
		rec := e.do(http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		rec = e.do(http.MethodGet, path, e.viewer, "")
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}
	rec := e.do(http.MethodPut, "/api/settings/anything", e.viewer, `{"value": 1}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, e.store.Len())
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	router, _ := newBrokenRouter(t)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetrics_CountsRequestsAndWrites(t *testing.T) {
	e := newTestEnv(t)
	e.do(http.MethodGet, "/api/settings/donations", "", "")
	e.do(http.MethodPut, "/api/settings/donations", e.admin, `{"goal": 1, "defaultAmount": 2}`)

	rec := e.do(http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `haven_http_requests_total{method="GET",route="/api/settings/donations",status="200"} 1`)
	assert.Contains(t, body, `haven_setting_writes_total{category="donations"} 2`)
	assert.Contains(t, body, "haven_http_request_duration_seconds_bucket")
}

func TestRequestID(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodGet, "/health", "", "")
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/api/settings/donations", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router, err := NewRouter(StartOpts{
		Store:          settings.NewMemoryStore(),
		Verifier:       auth.NewVerifier(testSecret, "haven"),
		AllowedOrigins: []string{"https://haven.example.org"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/settings/donations", nil)
	req.Header.Set("Origin", "https://haven.example.org")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "https://haven.example.org", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/settings/donations", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestShutdown_LogsIncompleteDrain(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
	})}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	go func() {
		resp, err := http.Get("http://" + ln.Addr().String())
		if err == nil {
			resp.Body.Close()
		}
	}()
	<-entered

	core, logs := observer.New(zap.InfoLevel)
	shutdown(srv, zap.New(core), 20*time.Millisecond)
	close(release)

	entries := logs.FilterMessage("Server shutdown did not complete").All()
	require.Len(t, entries, 1)
	assert.Equal(t, context.DeadlineExceeded.Error(), entries[0].ContextMap()["error"])
}

func TestShutdown_LogsCleanStop(t *testing.T) {
	srv := &http.Server{Handler: http.NotFoundHandler()}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)

	core, logs := observer.New(zap.InfoLevel)
	shutdown(srv, zap.New(core), time.Second)
	assert.Equal(t, 1, logs.FilterMessage("Server stopped").Len())
}
