package notify

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

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Deliver(ctx context.Context, ch models.Channel, dest string, n models.Notification) error {
	return m.Called(ctx, ch, dest, n).Error(0)
}

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func enabledPrefs() map[models.Channel]models.ChannelPreference {
	return map[models.Channel]models.ChannelPreference{
		models.ChannelEmail:   {Enabled: true, Destination: "jane@example.com", Priorities: []models.Priority{models.PriorityHigh}},
		models.ChannelSMS:     {Enabled: true, Destination: "+15552345678", Priorities: []models.Priority{models.PriorityCritical}},
		models.ChannelWebhook: {Enabled: true, Destination: "https://hooks.example.com/T0/abc", Priorities: []models.Priority{models.PriorityHigh}},
	}
}

func TestDeliverRoutesByPriority(t *testing.T) {
	n := &mockNotifier{}
	note := models.Notification{ID: "n1", Priority: models.PriorityHigh}
	n.On("Deliver", mock.Anything, models.ChannelEmail, "jane@example.com", note).Return(nil).Once()
	n.On("Deliver", mock.Anything, models.ChannelWebhook, "https://hooks.example.com/T0/abc", note).Return(nil).Once()

	svc := NewService(n, xlogger.Nop(), WithClock(func() time.Time { return now }), WithPreferences(enabledPrefs()))
	logs, err := svc.Deliver(context.Background(), note)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	assert.Equal(t, models.ChannelEmail, logs[0].Channel)
	assert.Equal(t, "j***@example.com", logs[0].Destination)
	assert.Equal(t, models.DeliverySent, logs[0].Status)
	assert.Equal(t, "https://hooks.example.com/***", logs[1].Destination)
	assert.Equal(t, now, logs[1].Timestamp)
	assert.Len(t, logs[0].ID, 36)

	n.AssertExpectations(t)
	n.AssertNotCalled(t, "Deliver", mock.Anything, models.ChannelSMS, mock.Anything, mock.Anything)
}

func TestDeliverRecordsFailures(t *testing.T) {
	n := &mockNotifier{}
	note := models.Notification{ID: "n2", Priority: models.PriorityCritical}
	n.On("Deliver", mock.Anything, models.ChannelSMS, mock.Anything, note).Return(errors.New("carrier rejected"))

	svc := NewService(n, xlogger.Nop(), WithPreferences(enabledPrefs()))
	logs, err := svc.Deliver(context.Background(), note)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier rejected")
	require.Len(t, logs, 1)
	assert.Equal(t, models.DeliveryFailed, logs[0].Status)
	assert.Equal(t, "carrier rejected", logs[0].ErrorMessage)
	assert.Equal(t, "********5678", logs[0].Destination)
}

type memLedger map[string][]models.Channel

func (l memLedger) Delivered(_ context.Context, id string) ([]models.Channel, error) {
	return l[id], nil
}

func (l memLedger) MarkDelivered(_ context.Context, id string, ch models.Channel) error {
	l[id] = append(l[id], ch)
	return nil
}

func TestDeliverRetriesOnlyFailedChannels(t *testing.T) {
	n := &mockNotifier{}
	note := models.Notification{ID: "n3", Priority: models.PriorityHigh}
	n.On("Deliver", mock.Anything, models.ChannelEmail, mock.Anything, note).Return(nil).Once()
	n.On("Deliver", mock.Anything, models.ChannelWebhook, mock.Anything, note).Return(errors.New("503")).Once()

	ledger := memLedger{}
	svc := NewService(n, xlogger.Nop(), WithPreferences(enabledPrefs()), WithLedger(ledger))
	_, err := svc.Deliver(context.Background(), note)
	require.Error(t, err)
	assert.Equal(t, []models.Channel{models.ChannelEmail}, ledger["n3"])

	n.On("Deliver", mock.Anything, models.ChannelWebhook, mock.Anything, note).Return(nil).Once()
	logs, err := svc.Deliver(context.Background(), note)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ChannelWebhook, logs[0].Channel)

	n.AssertNumberOfCalls(t, "Deliver", 3)
	n.AssertExpectations(t)

	logs, err = svc.Deliver(context.Background(), note)
	require.NoError(t, err)
	assert.Empty(t, logs, "every channel already accepted it")
}

func TestDefaultsDeliverNothing(t *testing.T) {
	n := &mockNotifier{}
	svc := NewService(n, nil)

	logs, err := svc.Deliver(context.Background(), models.Notification{Priority: models.PriorityCritical})
	require.NoError(t, err)
	assert.Empty(t, logs)
	assert.Empty(t, svc.Logs())
	n.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliveryLogIsCappedNewestFirst(t *testing.T) {
	n := &mockNotifier{}
	n.On("Deliver", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	svc := NewService(n, xlogger.Nop())
	svc.UpdatePreference(models.ChannelEmail, models.ChannelPreference{
		Enabled: true, Destination: "ops@example.com", Priorities: []models.Priority{models.PriorityLow},
	})

	for i := 0; i < MaxDeliveryLogs+20; i++ {
		_, err := svc.Deliver(context.Background(), models.Notification{ID: fmt.Sprintf("n%d", i), Priority: models.PriorityLow})
		require.NoError(t, err)
	}

	logs := svc.Logs()
	require.Len(t, logs, MaxDeliveryLogs)
	assert.Equal(t, fmt.Sprintf("n%d", MaxDeliveryLogs+19), logs[0].NotificationID)
	assert.Equal(t, "n20", logs[len(logs)-1].NotificationID)

	svc.ClearLogs()
	assert.Empty(t, svc.Logs())
}

func TestPreferencesAreCopied(t *testing.T) {
	svc := NewService(&mockNotifier{}, xlogger.Nop())
	prefs := svc.Preferences()
	prefs[models.ChannelEmail] = models.ChannelPreference{Enabled: true}

	assert.False(t, svc.Preferences()[models.ChannelEmail].Enabled)
	assert.Equal(t, []models.Priority{models.PriorityCritical}, svc.Preferences()[models.ChannelSMS].Priorities)
}

func TestMaskDestination(t *testing.T) {
	assert.Equal(t, "j***@example.com", maskDestination(models.ChannelEmail, "jane@example.com"))
	assert.Equal(t, "*******4567", maskDestination(models.ChannelSMS, "+1555234567"))
	assert.Equal(t, "https://hooks.example.com/***", maskDestination(models.ChannelWebhook, "https://hooks.example.com/secret"))
	assert.Equal(t, "*****-url", maskDestination(models.ChannelWebhook, "not-a-url"))
}

func TestMaskedPreferences(t *testing.T) {
	svc := NewService(&mockNotifier{}, xlogger.Nop())
	svc.UpdatePreference(models.ChannelEmail, models.ChannelPreference{Enabled: true, Destination: "jane@example.com"})

	masked := svc.MaskedPreferences()
	assert.Equal(t, "j***@example.com", masked[models.ChannelEmail].Destination)
	assert.Equal(t, "jane@example.com", svc.Preferences()[models.ChannelEmail].Destination)
}
