package repository

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"EstateDesk/internal/domain/models"
	domrepo "EstateDesk/internal/domain/repository"
	"EstateDesk/internal/services/alerts"
	"EstateDesk/internal/services/recommendation"
	"EstateDesk/pkg/cache"
	xhttp "EstateDesk/pkg/http"
	pkgkafka "EstateDesk/pkg/kafka"
)

const seedYAML = `
properties:
  - id: "1"
    title: Brooklyn Loft
    city: Brooklyn
    state: NY
    price: 1250000
    yearBuilt: 1920
    bedrooms: 2
    bathrooms: 2
  - id: "2"
    title: Hoboken Walkup
    city: Hoboken
    state: NJ
    price: 850000
    yearBuilt: 1965
    bedrooms: 3
    bathrooms: 1
portfolios:
  alice: ["1", "missing"]
`

func TestPropertyStore_Parse(t *testing.T) {
	store, err := ParsePropertyStore([]byte(seedYAML), map[string][]string{"bob": {"2"}})
	require.NoError(t, err)
	ctx := context.Background()

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "1", all[0].ID)
	assert.Equal(t, "Hoboken", all[1].City)

	p, err := store.Get(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, 850000.0, p.Price)

	_, err = store.Get(ctx, "404")
	assert.ErrorIs(t, err, domrepo.ErrPropertyNotFound)

	alice, err := store.Portfolio(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, alice, 1)
	assert.Equal(t, "1", alice[0].ID)

	bob, err := store.Portfolio(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bob, 1)

	nobody, err := store.Portfolio(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, nobody)
}

func TestPropertyStore_ListIsACopy(t *testing.T) {
	store, err := ParsePropertyStore([]byte(seedYAML), nil)
	require.NoError(t, err)

	all, _ := store.List(context.Background())
	all[0].Price = 1
	again, _ := store.List(context.Background())
	assert.Equal(t, 1250000.0, again[0].Price)
}

func TestPropertyStore_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		props []models.Property
	}{
		{"missing id", []models.Property{{Title: "x"}}},
		{"negative price", []models.Property{{ID: "1", Price: -1}}},
		{"bad state", []models.Property{{ID: "1", State: "New York"}}},
		{"duplicate", []models.Property{{ID: "1"}, {ID: "1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPropertyStore(tt.props, nil)
			assert.Error(t, err)
		})
	}
}

func newMemory(t *testing.T) *cache.MemoryCache {
	t.Helper()
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	return mc
}

func TestPreferenceStore_DefaultsAndSave(t *testing.T) {
	store := NewCachePreferenceStore(newMemory(t), time.Hour)
	ctx := context.Background()

	prefs, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, recommendation.DefaultPreferences(), prefs)

	prefs.PreferredCities = []string{"Hoboken"}
	prefs.InvestmentGoals = models.GoalCashFlow
	require.NoError(t, store.Save(ctx, "alice", prefs))

	got, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"Hoboken"}, got.PreferredCities)
	assert.Equal(t, models.GoalCashFlow, got.InvestmentGoals)
}

func TestAlertStore_CRUD(t *testing.T) {
	store := NewCacheAlertStore(newMemory(t), time.Hour)
	ctx := context.Background()

	a1 := models.PriceAlert{ID: "a1", UserID: "alice", MinPrice: 1, MaxPrice: 2, Enabled: true}
	a2 := models.PriceAlert{ID: "a2", UserID: "alice", MinPrice: 3, MaxPrice: 4}
	b1 := models.PriceAlert{ID: "b1", UserID: "bob", MinPrice: 5, MaxPrice: 6}
	for _, a := range []models.PriceAlert{a1, a2, b1} {
		require.NoError(t, store.Save(ctx, a))
	}

	list, err := store.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	a1.Enabled = false
	require.NoError(t, store.Save(ctx, a1))
	list, _ = store.List(ctx, "alice")
	require.Len(t, list, 2)
	assert.False(t, list[0].Enabled)

	require.NoError(t, store.Delete(ctx, "bob", "b1"))
	all, _ = store.List(ctx, "")
	assert.Len(t, all, 2)

	err = store.Delete(ctx, "alice", "zzz")
	assert.ErrorIs(t, err, alerts.ErrAlertNotFound)
}

func TestAlertStore_Update(t *testing.T) {
	store := NewCacheAlertStore(newMemory(t), time.Hour)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, models.PriceAlert{ID: "a1", UserID: "alice", MinPrice: 1, MaxPrice: 2, Enabled: true}))

	got, err := store.Update(ctx, "alice", "a1", func(a *models.PriceAlert) {
		a.MatchedProperties = []string{"7"}
		a.ID = "renamed"
	})
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)
	assert.True(t, got.Enabled)
	assert.Equal(t, []string{"7"}, got.MatchedProperties)

	require.NoError(t, store.Delete(ctx, "alice", "a1"))
	_, err = store.Update(ctx, "alice", "a1", func(a *models.PriceAlert) { a.Enabled = true })
	assert.ErrorIs(t, err, alerts.ErrAlertNotFound)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all, "update never recreates a deleted alert")
}

func TestDeliveryLedger(t *testing.T) {
	ledger := NewCacheDeliveryLedger(newMemory(t), 0)
	ctx := context.Background()

	got, err := ledger.Delivered(ctx, "n1")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, ledger.MarkDelivered(ctx, "n1", models.ChannelEmail))
	require.NoError(t, ledger.MarkDelivered(ctx, "n1", models.ChannelEmail))
	require.NoError(t, ledger.MarkDelivered(ctx, "n1", models.ChannelWebhook))

	got, err = ledger.Delivered(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, []models.Channel{models.ChannelEmail, models.ChannelWebhook}, got)

	other, err := ledger.Delivered(ctx, "n2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestAlertStore_RequiresUser(t *testing.T) {
	store := NewCacheAlertStore(newMemory(t), time.Hour)
	assert.Error(t, store.Save(context.Background(), models.PriceAlert{ID: "x"}))
}

func TestAlertStore_LockBusy(t *testing.T) {
	mc := newMemory(t)
	store := NewCacheAlertStore(mc, time.Hour)
	ok, err := mc.TryLock(context.Background(), cache.Key("lock", alertKey("alice")), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = store.Save(ctx, models.PriceAlert{ID: "a1", UserID: "alice"})
	assert.Error(t, err)
}

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error {
	return m.Called(ctx, topic, messages).Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

func tickUpdate(key string) *models.MarketUpdate {
	return &models.MarketUpdate{
		Kind:      models.UpdateKindPrice,
		Key:       key,
		Data:      &models.MarketData{PropertyID: key, CurrentPrice: 100},
		Timestamp: time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestKafkaUpdatePublisher_KeysByUpdate(t *testing.T) {
	w := &mockWriter{}
	w.On("PublishBatch", mock.Anything, "estate.market.updates", mock.MatchedBy(func(msgs []pkgkafka.Message) bool {
		return len(msgs) == 2 && string(msgs[0].Key) == "1" && string(msgs[1].Key) == "NYC-RE"
	})).Return(nil).Once()

	p := NewKafkaUpdatePublisher(w, "estate.market.updates", nil)
	ticker := &models.MarketUpdate{Kind: models.UpdateKindTicker, Key: "NYC-RE", Ticker: &models.MarketTicker{Symbol: "NYC-RE", Value: 100}}
	require.NoError(t, p.PublishBatch(context.Background(), []*models.MarketUpdate{tickUpdate("1"), nil, ticker}))
	w.AssertExpectations(t)
}

func TestKafkaUpdatePublisher_BreakerOpens(t *testing.T) {
	w := &mockWriter{}
	w.On("PublishBatch", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	p := NewKafkaUpdatePublisher(w, "t", nil)
	for i := 0; i < 5; i++ {
		assert.Error(t, p.Publish(context.Background(), tickUpdate("1")))
	}
	err := p.Publish(context.Background(), tickUpdate("1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	w.AssertNumberOfCalls(t, "PublishBatch", 5)
}

func TestKafkaUpdatePublisher_EmptyBatch(t *testing.T) {
	w := &mockWriter{}
	p := NewKafkaUpdatePublisher(w, "t", nil)
	assert.NoError(t, p.PublishBatch(context.Background(), nil))
	w.AssertNotCalled(t, "PublishBatch", mock.Anything, mock.Anything, mock.Anything)
}

type mockInserter struct {
	mock.Mock
}

func (m *mockInserter) InitSchema(ctx context.Context, stmts []string) error {
	return m.Called(ctx, stmts).Error(0)
}

func (m *mockInserter) InsertBatch(ctx context.Context, query string, rows [][]any) error {
	return m.Called(ctx, query, rows).Error(0)
}

func (m *mockInserter) Health(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestClickHouseStorage_Init(t *testing.T) {
	ch := &mockInserter{}
	ch.On("InitSchema", mock.Anything, Schema).Return(nil)
	ch.On("Health", mock.Anything).Return(nil)

	require.NoError(t, NewClickHouseStorage(ch, nil).Init(context.Background()))
	ch.AssertExpectations(t)
}

func TestClickHouseStorage_StoreBatch(t *testing.T) {
	ch := &mockInserter{}
	ch.On("InsertBatch", mock.Anything, insertUpdate, mock.MatchedBy(func(rows [][]any) bool {
		return len(rows) == 1 && rows[0][2] == "1" && rows[0][3] == 100.0
	})).Return(nil).Once()

	s := NewClickHouseStorage(ch, nil)
	require.NoError(t, s.StoreBatch(context.Background(), []*models.MarketUpdate{tickUpdate("1"), nil, {Key: ""}}))
	require.NoError(t, s.StoreBatch(context.Background(), nil))
	ch.AssertExpectations(t)
}

func TestClickHouseStorage_StoreError(t *testing.T) {
	ch := &mockInserter{}
	ch.On("InsertBatch", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("timeout"))

	err := NewClickHouseStorage(ch, nil).Store(context.Background(), tickUpdate("1"))
	assert.ErrorContains(t, err, "store updates")
}

func TestClickHouseStorage_Archive(t *testing.T) {
	ch := &mockInserter{}
	var got [][]any
	ch.On("InsertBatch", mock.Anything, insertSnapshot, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(2).([][]any) }).
		Return(nil)

	snap := models.MarketSnapshot{
		Timestamp: time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		MarketData: map[string]models.MarketData{
			"b": {PropertyID: "b", CurrentPrice: 2},
			"a": {PropertyID: "a", CurrentPrice: 1},
		},
		Tickers: []models.MarketTicker{{Symbol: "NYC-RE", Value: 101, Change: 1}},
		Config:  models.MarketConfig{Volatility: 0.02, Multiplier: 1, IsPaused: true},
	}
	require.NoError(t, NewClickHouseStorage(ch, nil).Archive(context.Background(), snap))

	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0][2])
	assert.Equal(t, "b", got[1][2])
	assert.Equal(t, "NYC-RE", got[2][2])
	assert.Equal(t, 100.0, got[2][4])
	assert.Equal(t, uint8(1), got[2][9])
}

func TestWebhookNotifier_PostsWebhook(t *testing.T) {
	var got notificationEnvelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "price_alert", r.Header.Get("X-EstateDesk-Event"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(xhttp.NewClient(), "", nil)
	note := models.Notification{ID: "n1", Title: "3 properties match", Priority: models.PriorityHigh}
	require.NoError(t, n.Deliver(context.Background(), models.ChannelWebhook, srv.URL+"/hook", note))

	assert.Equal(t, models.ChannelWebhook, got.Channel)
	assert.Equal(t, "n1", got.Notification.ID)
	assert.Empty(t, got.Destination)
}

func TestWebhookNotifier_RelaysEmail(t *testing.T) {
	var hits atomic.Int32
	var got notificationEnvelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(nil, srv.URL, nil)
	require.NoError(t, n.Deliver(context.Background(), models.ChannelEmail, "jane@example.com", models.Notification{ID: "n2"}))
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "jane@example.com", got.Destination)
}

func TestWebhookNotifier_LogOnlyWithoutRelay(t *testing.T) {
	n := NewWebhookNotifier(nil, "", nil)
	assert.NoError(t, n.Deliver(context.Background(), models.ChannelSMS, "+15550100", models.Notification{ID: "n3"}))
}

func TestWebhookNotifier_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(nil, "", nil)
	err := n.Deliver(context.Background(), models.ChannelWebhook, srv.URL, models.Notification{})
	var se *xhttp.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)

	assert.Error(t, n.Deliver(context.Background(), models.ChannelWebhook, "", models.Notification{}))
	assert.Error(t, n.Deliver(context.Background(), models.Channel("pager"), "x", models.Notification{}))
}

func TestLoadPropertyStore_Seed(t *testing.T) {
	store, err := LoadPropertyStore("../../data/properties.yaml", map[string][]string{"alice": {"3"}})
	require.NoError(t, err)

	props, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, props, 8)
	for _, p := range props {
		assert.Empty(t, p.ComplianceFlags)
	}

	alice, err := store.Portfolio(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, alice, 1)
	assert.Equal(t, "3", alice[0].ID)

	def, err := store.Portfolio(context.Background(), "default")
	require.NoError(t, err)
	assert.Len(t, def, 2)
}
