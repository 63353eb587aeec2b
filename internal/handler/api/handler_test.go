package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EstateDesk/internal/domain/models"
	"EstateDesk/internal/repository"
	"EstateDesk/internal/services/alerts"
	"EstateDesk/internal/services/compliance"
	"EstateDesk/internal/services/features"
	"EstateDesk/internal/services/market"
	"EstateDesk/internal/services/notify"
	"EstateDesk/internal/services/recommendation"
	"EstateDesk/internal/usecase"
	"EstateDesk/pkg/cache"
	xlogger "EstateDesk/pkg/logger"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

var testProperties = []models.Property{
	{ID: "1", Title: "Brooklyn Loft", City: "Brooklyn", State: "NY", Price: 1_200_000, YearBuilt: 1920,
		Bedrooms: 2, Bathrooms: 2, CurrentRent: 3000, FairMarketRent: 2800, IsCurated: true},
	{ID: "2", Title: "Hoboken Walkup", City: "Hoboken", State: "NJ", Price: 800_000, YearBuilt: 1960,
		Bedrooms: 3, Bathrooms: 1, LastInspectionDate: "2020-01-01", LeaseEndDate: "2025-07-15"},
	{ID: "3", Title: "Queens Studio", City: "Queens", State: "NY", Price: 450_000, YearBuilt: 2015,
		Bedrooms: 1, Bathrooms: 1},
}

type nopQueue struct{}

func (nopQueue) PublishMessage(context.Context, string, interface{}) error { return nil }

type nopNotifier struct{}

func (nopNotifier) Deliver(context.Context, models.Channel, string, models.Notification) error {
	return nil
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type list struct {
	Rows  json.RawMessage `json:"rows"`
	Total int64           `json:"total"`
}

func newTestServer(t *testing.T) (*echo.Echo, *market.Simulator) {
	t.Helper()
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })

	store, err := repository.NewPropertyStore(testProperties, map[string][]string{"alice": {"2", "3"}})
	require.NoError(t, err)

	sim := market.NewSimulator(
		market.WithBaseFrequency(time.Hour),
		market.WithTickerInterval(time.Hour),
		market.WithClock(func() time.Time { return fixedNow }),
	)
	sim.Initialize(testProperties)
	t.Cleanup(sim.Cleanup)

	evaluator := compliance.NewEvaluator(compliance.WithClock(func() time.Time { return fixedNow }))
	feed := usecase.NewPropertyFeed(store, repository.NewCachePreferenceStore(mc, time.Hour), sim,
		evaluator, recommendation.NewEngine(evaluator))
	alertSvc := alerts.NewService(repository.NewCacheAlertStore(mc, time.Hour), nopQueue{}, xlogger.Nop())
	notifySvc := notify.NewService(nopNotifier{}, xlogger.Nop())

	h := NewHandler(xlogger.Nop(), feed, sim, features.NewPatternAnalyzer(), alertSvc, notifySvc)
	e := echo.New()
	h.RegisterRoutes(e)
	return e, sim
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func decodeList(t *testing.T, env envelope, rows interface{}) int64 {
	t.Helper()
	var l list
	require.NoError(t, json.Unmarshal(env.Data, &l))
	if rows != nil {
		require.NoError(t, json.Unmarshal(l.Rows, rows))
	}
	return l.Total
}

func TestProperties(t *testing.T) {
	e, _ := newTestServer(t)

	rec, env := do(t, e, http.MethodGet, "/api/properties", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var props []models.Property
	assert.EqualValues(t, 3, decodeList(t, env, &props))
	require.Len(t, props, 3)
	assert.True(t, props[1].HasLeadRisk)

	rec, env = do(t, e, http.MethodGet, "/api/properties/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var p models.Property
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, "Hoboken Walkup", p.Title)
	assert.NotEmpty(t, p.ComplianceFlags)

	rec, _ = do(t, e, http.MethodGet, "/api/properties/404", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportCSV(t *testing.T) {
	e, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/properties/export.csv", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/csv")
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "properties.csv")
	lines := strings.Split(rec.Body.String(), "\n")
	assert.Len(t, lines, 4)
}

func TestCompliance(t *testing.T) {
	e, _ := newTestServer(t)

	_, env := do(t, e, http.MethodGet, "/api/compliance/watchlist", "")
	var watch []models.Property
	assert.EqualValues(t, 1, decodeList(t, env, &watch))
	assert.Equal(t, "2", watch[0].ID)

	_, env = do(t, e, http.MethodGet, "/api/compliance/riskmap", "")
	assert.EqualValues(t, 2, decodeList(t, env, nil))

	rec, _ := do(t, e, http.MethodGet, "/api/dashboard/agent", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPreferences(t *testing.T) {
	e, _ := newTestServer(t)

	_, env := do(t, e, http.MethodGet, "/api/preferences/bob", "")
	var prefs models.UserPreferences
	require.NoError(t, json.Unmarshal(env.Data, &prefs))
	assert.Equal(t, recommendation.DefaultPreferences(), prefs)

	rec, _ := do(t, e, http.MethodPut, "/api/preferences/bob",
		`{"preferences":{"priceRange":{"min":0,"max":1000000},"investmentGoals":"yolo","riskTolerance":"moderate"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, e, http.MethodPut, "/api/preferences/bob",
		`{"preferences":{"priceRange":{"min":0,"max":1000000},"preferredCities":["Queens"],"investmentGoals":"cash-flow","riskTolerance":"moderate"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	_, env = do(t, e, http.MethodGet, "/api/preferences/bob", "")
	require.NoError(t, json.Unmarshal(env.Data, &prefs))
	assert.Equal(t, []string{"Queens"}, prefs.PreferredCities)
	assert.Equal(t, models.InvestmentGoal("cash-flow"), prefs.InvestmentGoals)

	rec, _ = do(t, e, http.MethodGet, "/api/recommendations?user=bob", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, e, http.MethodGet, "/api/insights?user=alice", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, e, http.MethodGet, "/api/feed/client", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMarketControl(t *testing.T) {
	e, sim := newTestServer(t)

	rec, _ := do(t, e, http.MethodPut, "/api/market/volatility", `{"level":2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env := do(t, e, http.MethodPut, "/api/market/volatility", `{"level":0.5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg models.MarketConfig
	require.NoError(t, json.Unmarshal(env.Data, &cfg))
	assert.Equal(t, 0.15, cfg.Volatility)

	rec, _ = do(t, e, http.MethodPost, "/api/market/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, sim.Config().IsPaused)
	do(t, e, http.MethodPost, "/api/market/resume", "")
	assert.False(t, sim.Config().IsPaused)

	rec, _ = do(t, e, http.MethodGet, "/api/market/data/1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, e, http.MethodGet, "/api/market/data/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, env = do(t, e, http.MethodGet, "/api/market/portfolio?user=alice", "")
	var pv models.PortfolioValue
	require.NoError(t, json.Unmarshal(env.Data, &pv))
	assert.Equal(t, 1_250_000.0, pv.CurrentValue)

	rec, env = do(t, e, http.MethodGet, "/api/market/patterns", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pat patternsResponse
	require.NoError(t, json.Unmarshal(env.Data, &pat))
	assert.Nil(t, pat.Current)
}

func TestSnapshots(t *testing.T) {
	e, sim := newTestServer(t)

	rec, _ := do(t, e, http.MethodPost, "/api/market/snapshots", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = do(t, e, http.MethodPost, "/api/market/snapshots/restore", `{"index":5}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	sim.SetVolatility(0.1)
	rec, _ = do(t, e, http.MethodPost, "/api/market/snapshots/restore", `{"index":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.1, sim.Config().Volatility)
	assert.Len(t, sim.AllMarketData(), 3)

	_, env := do(t, e, http.MethodGet, "/api/market/snapshots", "")
	assert.EqualValues(t, 1, decodeList(t, env, nil))

	rec, _ = do(t, e, http.MethodDelete, "/api/market/snapshots", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, sim.HistoricalSnapshots(0))
}

func TestAlerts(t *testing.T) {
	e, _ := newTestServer(t)

	rec, _ := do(t, e, http.MethodPost, "/api/alerts", `{"user":"bob","minPrice":900000,"maxPrice":100000}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env := do(t, e, http.MethodPost, "/api/alerts", `{"user":"bob","minPrice":100000,"maxPrice":900000,"location":"Queens, NY"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.PriceAlert
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.True(t, created.Enabled)

	_, env = do(t, e, http.MethodGet, "/api/alerts?user=bob", "")
	assert.EqualValues(t, 1, decodeList(t, env, nil))

	rec, env = do(t, e, http.MethodPatch, "/api/alerts/"+created.ID, `{"user":"bob","enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var toggled models.PriceAlert
	require.NoError(t, json.Unmarshal(env.Data, &toggled))
	assert.False(t, toggled.Enabled)

	rec, _ = do(t, e, http.MethodPatch, "/api/alerts/"+created.ID, `{"user":"bob"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, e, http.MethodDelete, "/api/alerts/"+uuid.NewString()+"?user=bob", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = do(t, e, http.MethodDelete, "/api/alerts/not-a-uuid?user=bob", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, e, http.MethodDelete, "/api/alerts/"+created.ID+"?user=bob", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, env = do(t, e, http.MethodGet, "/api/alerts?user=bob", "")
	assert.EqualValues(t, 0, decodeList(t, env, nil))
}

func TestNotificationPreferences(t *testing.T) {
	e, _ := newTestServer(t)

	rec, _ := do(t, e, http.MethodPut, "/api/notifications/preferences/email", `{"enabled":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = do(t, e, http.MethodPut, "/api/notifications/preferences/pager", `{"enabled":false}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env := do(t, e, http.MethodPut, "/api/notifications/preferences/email",
		`{"enabled":true,"destination":"jane@example.com","priorities":["critical","high"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var pref models.ChannelPreference
	require.NoError(t, json.Unmarshal(env.Data, &pref))
	assert.Equal(t, "j***@example.com", pref.Destination)

	rec, _ = do(t, e, http.MethodGet, "/api/notifications/logs", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, e, http.MethodDelete, "/api/notifications/logs", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestStream(t *testing.T) {
	e, _ := newTestServer(t)
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/market/stream?ids=1,1,3"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	seen := map[string]int{}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for i := 0; i < 4; i++ {
		var msg StreamMessage
		require.NoError(t, conn.ReadJSON(&msg))
		seen[msg.Type]++
	}
	assert.Equal(t, 1, seen["config"])
	assert.Equal(t, 1, seen["tickers"])
	assert.Equal(t, 2, seen["market"])
}

func TestParseIDs(t *testing.T) {
	assert.Nil(t, parseIDs(""))
	assert.Equal(t, []string{"a", "b"}, parseIDs(" a,b,,a "))
}

func TestCheckOrigin(t *testing.T) {
	s := newStreamer(nil, xlogger.Nop())
	s.origins = []string{"app.example.com"}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, s.checkOrigin(req))
	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, s.checkOrigin(req))
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, s.checkOrigin(req))
}
