// Package queue implements the in-memory delivery queue: FIFO, one consumer,
// at most one transmission in flight.
package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	adomain "github.com/corvusHold/mailrelay/internal/audit/domain"
	ddomain "github.com/corvusHold/mailrelay/internal/delivery/domain"
	edomain "github.com/corvusHold/mailrelay/internal/email/domain"
	evdomain "github.com/corvusHold/mailrelay/internal/events/domain"
	evsvc "github.com/corvusHold/mailrelay/internal/events/service"
	"github.com/corvusHold/mailrelay/internal/metrics"
)

const metricsMode = "async"

// Stats is a point-in-time view of the queue.
type Stats struct {
	Pending        int    `json:"pending"`
	Draining       bool   `json:"draining"`
	Enqueued       uint64 `json:"enqueued"`
	Sent           uint64 `json:"sent"`
	Failed         uint64 `json:"failed"`
	RecordFailures uint64 `json:"record_failures"`
}

// TimeoutSource is implemented by senders that know a client's effective
// per-send timeout. The queue uses it in place of its own default.
type TimeoutSource interface {
	Timeout(ctx context.Context, clientID uuid.UUID) time.Duration
}

// Queue drains jobs in submission order. A consume goroutine exists only
// while the queue is draining; it exits when it finds the list empty.
type Queue struct {
	sender   edomain.Sender
	recorder adomain.Recorder
	pub      evdomain.Publisher
	log      zerolog.Logger
	timeout  time.Duration

	// mu guards jobs, draining and idle. The empty check and the transition
	// back to idle happen under the same lock as Enqueue's append.
	mu       sync.Mutex
	jobs     []ddomain.Job
	draining bool
	idle     chan struct{}

	// woke runs in Wait after an idle signal, before the re-check.
	woke func()

	enqueued       atomic.Uint64
	sent           atomic.Uint64
	failed         atomic.Uint64
	recordFailures atomic.Uint64
}

var _ ddomain.Enqueuer = (*Queue)(nil)

// New builds an idle queue. timeout bounds each transport call unless the
// sender is a TimeoutSource; zero means no bound beyond the sender's own.
func New(sender edomain.Sender, recorder adomain.Recorder, timeout time.Duration) *Queue {
	return &Queue{
		sender:   sender,
		recorder: recorder,
		pub:      evsvc.Nop{},
		log:      zerolog.Nop(),
		timeout:  timeout,
	}
}

// SetPublisher allows tests or callers to override the event publisher.
func (q *Queue) SetPublisher(p evdomain.Publisher) { q.pub = p }

// SetLogger allows injection of a structured logger.
func (q *Queue) SetLogger(l zerolog.Logger) { q.log = l }

// Enqueue appends job and starts the consumer if the queue is idle. It never
// blocks on delivery.
func (q *Queue) Enqueue(job ddomain.Job) {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	depth := len(q.jobs)
	start := !q.draining
	if start {
		q.draining = true
		q.idle = make(chan struct{})
	}
	q.mu.Unlock()

	q.enqueued.Add(1)
	metrics.SetQueueDepth(depth)
	if start {
		go q.consume()
	}
}

// Len returns the number of jobs waiting, excluding one in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Idle reports whether no consumer is running.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.draining
}

// Wait blocks until the queue is idle or ctx is done. A drain cycle that
// starts before Wait observes the previous one ending is waited for too.
func (q *Queue) Wait(ctx context.Context) error {
	for {
		q.mu.Lock()
		if !q.draining {
			q.mu.Unlock()
			return nil
		}
		idle := q.idle
		q.mu.Unlock()

		select {
		case <-idle:
			if q.woke != nil {
				q.woke()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	pending, draining := len(q.jobs), q.draining
	q.mu.Unlock()
	return Stats{
		Pending:        pending,
		Draining:       draining,
		Enqueued:       q.enqueued.Load(),
		Sent:           q.sent.Load(),
		Failed:         q.failed.Load(),
		RecordFailures: q.recordFailures.Load(),
	}
}

func (q *Queue) consume() {
	for {
		job, ok := q.next()
		if !ok {
			return
		}
		q.process(job)
	}
}

// next pops the head, or marks the queue idle and returns false.
func (q *Queue) next() (ddomain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		q.draining = false
		close(q.idle)
		metrics.SetQueueDepth(0)
		return ddomain.Job{}, false
	}
	job := q.jobs[0]
	q.jobs[0] = ddomain.Job{}
	q.jobs = q.jobs[1:]
	metrics.SetQueueDepth(len(q.jobs))
	return job, true
}

// process sends one job and records it. Failures are local to the job.
func (q *Queue) process(job ddomain.Job) {
	log := q.log.With().Str("client_id", job.ClientID.String()).Str("to", job.To).Logger()
	ctx := log.WithContext(context.Background())
	if timeout := q.sendTimeout(ctx, job.ClientID); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	messageID, err := q.send(ctx, job)
	metrics.ObserveDelivery(metricsMode, time.Since(start).Seconds())
	if err != nil {
		q.failed.Add(1)
		metrics.IncDelivery(metricsMode, "failed")
		log.Warn().Err(err).Msg("queued send failed; job dropped")
		_ = q.pub.Publish(ctx, evdomain.Event{
			Type:     evdomain.TypeEmailFailed,
			ClientID: job.ClientID,
			Meta:     map[string]string{"to": job.To, "mode": metricsMode, "error": err.Error()},
			Time:     time.Now(),
		})
		return
	}
	q.sent.Add(1)
	metrics.IncDelivery(metricsMode, "sent")
	_ = q.pub.Publish(ctx, evdomain.Event{
		Type:     evdomain.TypeEmailSent,
		ClientID: job.ClientID,
		Meta:     map[string]string{"to": job.To, "mode": metricsMode, "message_id": messageID},
		Time:     time.Now(),
	})

	// The send succeeded; record even if the send deadline has passed.
	recCtx := context.WithoutCancel(ctx)
	if _, err := q.recorder.Record(recCtx, job.ClientID, job.From, job.To, job.Subject, job.HTML); err != nil {
		q.recordFailures.Add(1)
		metrics.IncAuditRecordFailure()
		log.Error().Err(err).Str("message_id", messageID).Msg("email delivered but audit record failed")
	}
}

// sendTimeout prefers the sender's per-client value over the queue default.
func (q *Queue) sendTimeout(ctx context.Context, clientID uuid.UUID) time.Duration {
	if ts, ok := q.sender.(TimeoutSource); ok {
		return ts.Timeout(ctx, clientID)
	}
	return q.timeout
}

// send calls the transport, turning a panic into an error so one bad job
// cannot stop the consumer.
func (q *Queue) send(ctx context.Context, job ddomain.Job) (id string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	return q.sender.Send(ctx, job.ClientID, job.Message())
}
