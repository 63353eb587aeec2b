package alerts

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"EstateDesk/internal/domain/models"
	xlogger "EstateDesk/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
	updated []models.PriceAlert
}

func (m *mockStore) List(ctx context.Context, userID string) ([]models.PriceAlert, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.PriceAlert), args.Error(1)
}

func (m *mockStore) Save(ctx context.Context, alert models.PriceAlert) error {
	return m.Called(ctx, alert).Error(0)
}

// Update applies fn to the alert the expectation returns, like the real store
// does to the stored copy.
func (m *mockStore) Update(ctx context.Context, userID, id string, fn func(*models.PriceAlert)) (models.PriceAlert, error) {
	args := m.Called(ctx, userID, id)
	if err := args.Error(1); err != nil {
		return models.PriceAlert{}, err
	}
	a := args.Get(0).(models.PriceAlert)
	fn(&a)
	m.updated = append(m.updated, a)
	return a, nil
}

func (m *mockStore) Delete(ctx context.Context, userID, id string) error {
	return m.Called(ctx, userID, id).Error(0)
}

type mockQueue struct{ mock.Mock }

func (m *mockQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return m.Called(ctx, msgType, payload).Error(0)
}

func newTestService(store *mockStore, queue *mockQueue) *Service {
	return NewService(store, queue, xlogger.Nop(), WithClock(func() time.Time { return now }))
}

func TestCreate(t *testing.T) {
	store, queue := &mockStore{}, &mockQueue{}
	store.On("Save", mock.Anything, mock.MatchedBy(func(a models.PriceAlert) bool {
		return a.UserID == "u" && a.Enabled && a.MinPrice == 100 && a.MaxPrice == 200 && a.ID != ""
	})).Return(nil).Once()

	alert, err := newTestService(store, queue).Create(context.Background(), models.CreateAlertRequest{
		User: "u", MinPrice: 100, MaxPrice: 200, Location: "Brooklyn, NY",
	})
	require.NoError(t, err)
	assert.Len(t, alert.ID, 36)
	assert.Equal(t, now, alert.CreatedAt)
	assert.Equal(t, "Brooklyn, NY", alert.Location)
	store.AssertExpectations(t)
}

func TestCreateRejectsInvalidRange(t *testing.T) {
	store, queue := &mockStore{}, &mockQueue{}
	svc := newTestService(store, queue)

	for _, req := range []models.CreateAlertRequest{
		{User: "u", MinPrice: 200, MaxPrice: 200},
		{User: "u", MinPrice: 300, MaxPrice: 200},
	} {
		_, err := svc.Create(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRange)
	}
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestSetEnabled(t *testing.T) {
	store, queue := &mockStore{}, &mockQueue{}
	store.On("Update", mock.Anything, "u", "x").Return(models.PriceAlert{ID: "x", UserID: "u", Enabled: true}, nil).Once()
	store.On("Update", mock.Anything, "u", "missing").Return(models.PriceAlert{}, fmt.Errorf("update alert missing: %w", ErrAlertNotFound)).Once()

	svc := newTestService(store, queue)
	a, err := svc.SetEnabled(context.Background(), "u", "x", false)
	require.NoError(t, err)
	assert.False(t, a.Enabled)

	_, err = svc.SetEnabled(context.Background(), "u", "missing", true)
	assert.ErrorIs(t, err, ErrAlertNotFound)
	store.AssertExpectations(t)
}

func TestCheckEnqueuesAndPersists(t *testing.T) {
	store, queue := &mockStore{}, &mockQueue{}

	fresh := models.PriceAlert{ID: "fresh", UserID: "u", MinPrice: 800_000, MaxPrice: 1_200_000, Enabled: true}
	settled := models.PriceAlert{ID: "settled", UserID: "u", MinPrice: 800_000, MaxPrice: 1_200_000, Enabled: true, MatchedProperties: []string{"a", "c"}}
	disabled := models.PriceAlert{ID: "off", UserID: "u", MinPrice: 0, MaxPrice: 1}

	store.On("List", mock.Anything, "").Return([]models.PriceAlert{fresh, settled, disabled}, nil)
	store.On("Update", mock.Anything, "u", "fresh").Return(fresh, nil).Once()
	queue.On("PublishMessage", mock.Anything, NotificationType, mock.MatchedBy(func(n *models.Notification) bool {
		return n.AlertID == "fresh" && n.ID != ""
	})).Return(nil).Once()

	sent, err := newTestService(store, queue).Check(context.Background(), listings)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	store.AssertExpectations(t)
	queue.AssertExpectations(t)
	store.AssertNumberOfCalls(t, "Update", 1)
	require.Len(t, store.updated, 1)
	assert.Equal(t, []string{"a", "c"}, store.updated[0].MatchedProperties)
	require.NotNil(t, store.updated[0].LastNotified)
	assert.Equal(t, now, *store.updated[0].LastNotified)
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestCheckMergesIntoStoredAlert(t *testing.T) {
	store, queue := &mockStore{}, &mockQueue{}
	seen := models.PriceAlert{ID: "x", UserID: "u", MinPrice: 800_000, MaxPrice: 1_200_000, Enabled: true}
	// toggled off between List and the write-back
	stored := seen
	stored.Enabled = false

	store.On("List", mock.Anything, "").Return([]models.PriceAlert{seen}, nil)
	store.On("Update", mock.Anything, "u", "x").Return(stored, nil).Once()
	queue.On("PublishMessage", mock.Anything, NotificationType, mock.Anything).Return(nil).Once()

	_, err := newTestService(store, queue).Check(context.Background(), listings)
	require.NoError(t, err)
	require.Len(t, store.updated, 1)
	assert.False(t, store.updated[0].Enabled)
	assert.Equal(t, []string{"a", "c"}, store.updated[0].MatchedProperties)
}

func TestCheckSkipsDeletedAlert(t *testing.T) {
	store, queue := &mockStore{}, &mockQueue{}
	alert := models.PriceAlert{ID: "x", UserID: "u", MinPrice: 800_000, MaxPrice: 1_200_000, Enabled: true}

	store.On("List", mock.Anything, "").Return([]models.PriceAlert{alert}, nil)
	store.On("Update", mock.Anything, "u", "x").Return(models.PriceAlert{}, fmt.Errorf("update alert x: %w", ErrAlertNotFound)).Once()
	queue.On("PublishMessage", mock.Anything, NotificationType, mock.Anything).Return(nil).Once()

	sent, err := newTestService(store, queue).Check(context.Background(), listings)
	assert.NoError(t, err)
	assert.Equal(t, 1, sent)
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestCheckKeepsStateWhenEnqueueFails(t *testing.T) {
	store, queue := &mockStore{}, &mockQueue{}
	alert := models.PriceAlert{ID: "fresh", MinPrice: 800_000, MaxPrice: 1_200_000, Enabled: true}

	store.On("List", mock.Anything, "").Return([]models.PriceAlert{alert}, nil)
	queue.On("PublishMessage", mock.Anything, NotificationType, mock.Anything).Return(errors.New("redis down"))

	sent, err := newTestService(store, queue).Check(context.Background(), listings)
	assert.Error(t, err)
	assert.Zero(t, sent)
	store.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

type staticListings struct {
	props []models.Property
	err   error
}

func (s staticListings) Listings(context.Context) ([]models.Property, error) { return s.props, s.err }

func TestCreateEvaluatesImmediately(t *testing.T) {
	store, queue := &mockStore{}, &mockQueue{}
	queue.On("PublishMessage", mock.Anything, NotificationType, mock.MatchedBy(func(n *models.Notification) bool {
		return n.UserID == "u" && len(n.PropertyIDs) == 2
	})).Return(nil).Once()
	store.On("Save", mock.Anything, mock.MatchedBy(func(a models.PriceAlert) bool {
		return len(a.MatchedProperties) == 2 && a.LastNotified != nil
	})).Return(nil).Once()

	svc := NewService(store, queue, xlogger.Nop(),
		WithClock(func() time.Time { return now }),
		WithListings(staticListings{props: listings}))
	alert, err := svc.Create(context.Background(), models.CreateAlertRequest{User: "u", MinPrice: 800_000, MaxPrice: 1_200_000})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, alert.MatchedProperties)

	store.AssertExpectations(t)
	queue.AssertExpectations(t)
}

func TestCreateSavesUnevaluatedOnListingError(t *testing.T) {
	store, queue := &mockStore{}, &mockQueue{}
	store.On("Save", mock.Anything, mock.MatchedBy(func(a models.PriceAlert) bool {
		return len(a.MatchedProperties) == 0 && a.LastNotified == nil
	})).Return(nil).Once()

	svc := NewService(store, queue, xlogger.Nop(), WithListings(staticListings{err: errors.New("boom")}))
	_, err := svc.Create(context.Background(), models.CreateAlertRequest{User: "u", MinPrice: 1, MaxPrice: 2})
	require.NoError(t, err)
	store.AssertExpectations(t)
	queue.AssertNotCalled(t, "PublishMessage", mock.Anything, mock.Anything, mock.Anything)
}
