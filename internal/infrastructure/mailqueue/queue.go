// Package mailqueue implements the bounded, retry-paced asynchronous email
// delivery queue: a single-goroutine processor loop that wakes on an
// interval, pops the head task, renders its template and hands it to a
// Sender. The queue is decoupled from the database transaction that
// produced a task — callers submit after commit, or bypass the queue
// entirely via SendNow for the cases that require delivery confirmation
// before completing their own transaction.
package mailqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainerrors "licensepay.backend/internal/domain/errors"
	"licensepay.backend/pkg/logger"
	"licensepay.backend/pkg/utils"
)

// TaskType is the kind of email a Task renders and sends.
type TaskType string

const (
	TaskLicenseEmail         TaskType = "LICENSE_EMAIL"
	TaskWaitlistNotification TaskType = "WAITLIST_NOTIFICATION"
	TaskOrderConfirmation    TaskType = "ORDER_CONFIRMATION"
)

// TaskStatus tracks a task's position in the queue lifecycle.
type TaskStatus string

const (
	TaskStatusQueued TaskStatus = "QUEUED"
	TaskStatusSent   TaskStatus = "SENT"
	TaskStatusFailed TaskStatus = "FAILED"
)

// Reference-id keys a caller populates on Task.RefIDs so the queue's
// processor — which never touches the database — has everything it needs
// to render and send without a repository dependency.
const (
	RefRecipient      = "recipient"
	RefCustomerName   = "customerName"
	RefOrderID        = "orderId"
	RefProductRef     = "productRef"
	RefLicenseKey     = "licenseKey"
	RefInstructions   = "instructions"
	RefEntryID        = "entryId"
	RefQty            = "qty"
	RefAmountCents    = "amountCents"
	RefCurrency       = "currency"
	RefNotificationID = "notificationId"
)

// WaitlistNotificationID builds the synthetic correlation id
// waitlist_<entryId>_<nowMillis> stamped on waitlist notification emails so
// support can tie a customer's "where is my key" reply back to the entry.
func WaitlistNotificationID(entryID string) string {
	return fmt.Sprintf("waitlist_%s_%d", entryID, time.Now().UnixMilli())
}

// Task is one unit of outbound mail work.
type Task struct {
	ID         uuid.UUID
	Type       TaskType
	RefIDs     map[string]string
	RetryCount int
	CreatedAt  time.Time
	Status     TaskStatus
}

// Sender delivers a rendered Task, returning the provider's message id on
// success. Implemented by mailclient.Client in production and by a fake in
// tests.
type Sender interface {
	Send(ctx context.Context, task Task) (messageID string, err error)
}

// Config tunes the queue's pacing and backpressure policy.
type Config struct {
	Interval     time.Duration
	MaxRetries   int
	MaxQueueSize int
}

// Queue is an in-process bounded FIFO of mail tasks with a single-threaded
// cooperative processor that auto-starts on submission and auto-stops when
// it drains.
type Queue struct {
	mu      sync.Mutex
	tasks   []Task
	cfg     Config
	sender  Sender
	running bool
	stop    chan struct{}
}

// New builds a Queue bound to sender.
func New(cfg Config, sender Sender) *Queue {
	return &Queue{cfg: cfg, sender: sender}
}

// Submit enqueues a task for asynchronous delivery. Returns ErrQueueFull
// once the queue is at MaxQueueSize.
func (q *Queue) Submit(t Task) (uuid.UUID, error) {
	q.mu.Lock()
	if q.cfg.MaxQueueSize > 0 && len(q.tasks) >= q.cfg.MaxQueueSize {
		q.mu.Unlock()
		return uuid.Nil, domainerrors.ErrQueueFull
	}

	if t.ID == uuid.Nil {
		t.ID = utils.GenerateUUIDv7()
	}
	t.CreatedAt = time.Now()
	t.Status = TaskStatusQueued

	q.tasks = append(q.tasks, t)
	needStart := !q.running
	if needStart {
		q.running = true
		q.stop = make(chan struct{})
	}
	q.mu.Unlock()

	if needStart {
		go q.loop()
	}
	return t.ID, nil
}

// SendNow delivers a task synchronously through the same Sender, bypassing
// the queue and its retry policy entirely. Used by callers that must
// observe success/failure before completing their own transaction (the
// synchronous license-email path).
func (q *Queue) SendNow(ctx context.Context, t Task) (messageID string, err error) {
	if t.ID == uuid.Nil {
		t.ID = utils.GenerateUUIDv7()
	}
	t.CreatedAt = time.Now()
	return q.sender.Send(ctx, t)
}

// Len reports the number of tasks currently queued (not counting one
// in-flight in the processor).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Stop halts the processor loop if it is running. Safe to call when idle.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		close(q.stop)
		q.running = false
	}
}

func (q *Queue) loop() {
	ticker := time.NewTicker(q.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			task, ok := q.popHeadOrStop()
			if !ok {
				return
			}
			q.process(task)
		}
	}
}

// popHeadOrStop pops the head task, or — if the queue is empty — flips
// running to false in the same critical section. Deciding both under one
// lock closes the window where a Submit lands between an empty pop and the
// running flag being cleared: if that happened with two separate locks, the
// submitted task would see running still true, skip starting a new loop
// goroutine, and sit unprocessed until some later unrelated Submit call
// happened to restart the loop.
func (q *Queue) popHeadOrStop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		q.running = false
		return Task{}, false
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t, true
}

func (q *Queue) process(t Task) {
	ctx := context.Background()
	messageID, err := q.sender.Send(ctx, t)
	if err == nil {
		logger.Info(ctx, "mail queue: task delivered",
			zap.String("taskId", t.ID.String()), zap.String("type", string(t.Type)), zap.String("messageId", messageID))
		return
	}

	t.RetryCount++
	if t.RetryCount <= q.cfg.MaxRetries {
		logger.Warn(ctx, "mail queue: delivery failed, re-enqueuing",
			zap.String("taskId", t.ID.String()), zap.Int("retryCount", t.RetryCount), zap.Error(err))
		q.mu.Lock()
		q.tasks = append(q.tasks, t)
		q.mu.Unlock()
		return
	}

	logger.Error(ctx, "mail queue: task permanently failed",
		zap.String("taskId", t.ID.String()), zap.Int("retryCount", t.RetryCount), zap.Error(err))
}
