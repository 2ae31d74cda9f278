package mailqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []Task
	failN    int
	alwaysOK bool
}

func (f *fakeSender) Send(_ context.Context, t Task) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.alwaysOK && f.failN > 0 {
		f.failN--
		return "", errors.New("transient send failure")
	}
	f.sent = append(f.sent, t)
	return "fake-message-id", nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestQueue_SubmitDeliversAndAutoStops(t *testing.T) {
	sender := &fakeSender{alwaysOK: true}
	q := New(Config{Interval: 5 * time.Millisecond, MaxRetries: 3, MaxQueueSize: 10}, sender)

	_, err := q.Submit(Task{Type: TaskOrderConfirmation, RefIDs: map[string]string{RefOrderID: "o1"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return sender.sentCount() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, time.Millisecond)
}

func TestQueue_RetriesThenSucceeds(t *testing.T) {
	sender := &fakeSender{failN: 2}
	q := New(Config{Interval: 2 * time.Millisecond, MaxRetries: 3, MaxQueueSize: 10}, sender)

	_, err := q.Submit(Task{Type: TaskLicenseEmail})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return sender.sentCount() == 1 }, 2*time.Second, time.Millisecond)
}

func TestQueue_ExceedsRetriesPermanentlyFails(t *testing.T) {
	sender := &fakeSender{failN: 100}
	q := New(Config{Interval: 1 * time.Millisecond, MaxRetries: 2, MaxQueueSize: 10}, sender)

	_, err := q.Submit(Task{Type: TaskLicenseEmail})
	require.NoError(t, err)

	// after exceeding retries the task is dropped, queue drains and stops
	require.Eventually(t, func() bool { return q.Len() == 0 }, 2*time.Second, time.Millisecond)
	require.Equal(t, 0, sender.sentCount())
}

func TestQueue_SubmitBeyondMaxSizeFailsQueueFull(t *testing.T) {
	sender := &fakeSender{} // never called: interval never fires in this test
	q := New(Config{Interval: time.Hour, MaxRetries: 3, MaxQueueSize: 2}, sender)

	_, err := q.Submit(Task{Type: TaskOrderConfirmation})
	require.NoError(t, err)
	_, err = q.Submit(Task{Type: TaskOrderConfirmation})
	require.NoError(t, err)

	_, err = q.Submit(Task{Type: TaskOrderConfirmation})
	require.Error(t, err)
	require.Equal(t, 2, q.Len())
	q.Stop()
}

func TestQueue_SendNowBypassesQueue(t *testing.T) {
	sender := &fakeSender{alwaysOK: true}
	q := New(Config{Interval: time.Hour, MaxRetries: 3, MaxQueueSize: 10}, sender)

	messageID, err := q.SendNow(context.Background(), Task{Type: TaskLicenseEmail})
	require.NoError(t, err)
	require.Equal(t, "fake-message-id", messageID)
	require.Equal(t, 1, sender.sentCount())
	require.Equal(t, 0, q.Len(), "SendNow must not touch the FIFO")
}

func TestRender_EachTaskTypeProducesNonEmptyBody(t *testing.T) {
	for _, tt := range []Task{
		{Type: TaskLicenseEmail, RefIDs: map[string]string{RefCustomerName: "Ana", RefOrderID: "o1", RefProductRef: "p1", RefLicenseKey: "KEY-1", RefInstructions: "redeem at example.com"}},
		{Type: TaskWaitlistNotification, RefIDs: map[string]string{RefCustomerName: "Ana", RefOrderID: "o1", RefProductRef: "p1"}},
		{Type: TaskOrderConfirmation, RefIDs: map[string]string{RefCustomerName: "Ana", RefOrderID: "o1", RefProductRef: "p1", RefQty: "1"}},
	} {
		subject, html, err := Render(tt)
		require.NoError(t, err)
		require.NotEmpty(t, subject)
		require.Contains(t, html, "o1")
	}
}

func TestWaitlistNotificationID_Shape(t *testing.T) {
	id := WaitlistNotificationID("entry-1")
	require.Regexp(t, `^waitlist_entry-1_\d+$`, id)
}
