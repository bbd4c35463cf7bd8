package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adomain "github.com/corvusHold/mailrelay/internal/audit/domain"
	asvc "github.com/corvusHold/mailrelay/internal/audit/service"
	"github.com/corvusHold/mailrelay/internal/config"
	ddomain "github.com/corvusHold/mailrelay/internal/delivery/domain"
	edomain "github.com/corvusHold/mailrelay/internal/email/domain"
	esvc "github.com/corvusHold/mailrelay/internal/email/service"
	"github.com/corvusHold/mailrelay/internal/platform/memstore"
	sdomain "github.com/corvusHold/mailrelay/internal/settings/domain"
	ssvc "github.com/corvusHold/mailrelay/internal/settings/service"
)

// scriptSender records call order, tracks concurrency and fails subjects
// listed in fail.
type scriptSender struct {
	mu        sync.Mutex
	order     []string
	fail      map[string]bool
	inFlight  atomic.Int32
	maxFlight atomic.Int32
	delay     time.Duration
	gate      chan struct{}
}

func (s *scriptSender) Send(ctx context.Context, clientID uuid.UUID, msg edomain.Message) (string, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		m := s.maxFlight.Load()
		if n <= m || s.maxFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if s.gate != nil {
		<-s.gate
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	s.order = append(s.order, msg.Subject)
	s.mu.Unlock()
	if s.fail[msg.Subject] {
		return "", errors.New("relay rejected " + msg.Subject)
	}
	return "<" + msg.Subject + "@test>", nil
}

func (s *scriptSender) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

type memRecorder struct {
	mu      sync.Mutex
	entries []string
	err     error
}

func (m *memRecorder) Record(ctx context.Context, clientID uuid.UUID, from, to, subject, body string) (adomain.Entry, error) {
	if m.err != nil {
		return adomain.Entry{}, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, subject)
	return adomain.Entry{Subject: subject}, nil
}

func job(subject string) ddomain.Job {
	return ddomain.Job{ClientID: uuid.New(), From: "x@acme.com", To: "u@x.com", Subject: subject, HTML: "<p/>"}
}

func waitIdle(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Wait(ctx))
}

func TestQueue_StartsIdle(t *testing.T) {
	q := New(&scriptSender{}, &memRecorder{}, 0)
	assert.True(t, q.Idle())
	assert.Equal(t, 0, q.Len())
	assert.NoError(t, q.Wait(context.Background()))
}

func TestQueue_FIFOAndSingleFlight(t *testing.T) {
	s := &scriptSender{delay: time.Millisecond}
	rec := &memRecorder{}
	q := New(s, rec, time.Second)

	var want []string
	for i := 0; i < 20; i++ {
		subj := fmt.Sprintf("J%02d", i)
		want = append(want, subj)
		q.Enqueue(job(subj))
	}
	waitIdle(t, q)

	assert.Equal(t, want, s.calls())
	assert.Equal(t, want, rec.entries)
	assert.Equal(t, int32(1), s.maxFlight.Load())
	assert.True(t, q.Idle())
	assert.Equal(t, 0, q.Len())
}

func TestQueue_FailureIsLocalToJob(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	acme, err := store.Clients().CreateClient(ctx, uuid.New(), "Acme", "k")
	require.NoError(t, err)
	audit := asvc.New(store.Audit())

	s := &scriptSender{fail: map[string]bool{"J2": true}}
	q := New(s, audit, time.Second)
	for _, subj := range []string{"J1", "J2", "J3"} {
		j := job(subj)
		j.ClientID = acme.ID
		q.Enqueue(j)
	}
	waitIdle(t, q)

	assert.Equal(t, []string{"J1", "J2", "J3"}, s.calls())
	recent, err := audit.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	// newest first
	assert.Equal(t, "J3", recent[0].Subject)
	assert.Equal(t, "J1", recent[1].Subject)
	assert.Less(t, recent[1].ID, recent[0].ID)

	st := q.Stats()
	assert.Equal(t, uint64(3), st.Enqueued)
	assert.Equal(t, uint64(2), st.Sent)
	assert.Equal(t, uint64(1), st.Failed)
	assert.False(t, st.Draining)
	assert.Zero(t, st.Pending)
}

func TestQueue_RecordFailureCounted(t *testing.T) {
	rec := &memRecorder{err: errors.New("disk full")}
	q := New(&scriptSender{}, rec, 0)
	q.Enqueue(job("J1"))
	q.Enqueue(job("J2"))
	waitIdle(t, q)

	st := q.Stats()
	assert.Equal(t, uint64(2), st.Sent)
	assert.Equal(t, uint64(2), st.RecordFailures)
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	s := &scriptSender{}
	q := New(s, &memRecorder{}, 0)

	const producers, each = 16, 25
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				q.Enqueue(job(fmt.Sprintf("p%02d-%03d", p, i)))
			}
		}(p)
	}
	wg.Wait()
	waitIdle(t, q)

	calls := s.calls()
	require.Len(t, calls, producers*each)
	assert.Equal(t, int32(1), s.maxFlight.Load())

	// each producer's jobs keep their relative order
	last := map[string]string{}
	for _, c := range calls {
		p := c[:3]
		assert.Less(t, last[p], c)
		last[p] = c
	}
}

func TestQueue_WaitHonoursContext(t *testing.T) {
	s := &scriptSender{gate: make(chan struct{})}
	q := New(s, &memRecorder{}, 0)
	q.Enqueue(job("J1"))
	q.Enqueue(job("J2"))

	assert.False(t, q.Idle())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Wait(ctx), context.DeadlineExceeded)

	close(s.gate)
	waitIdle(t, q)
	assert.Equal(t, []string{"J1", "J2"}, s.calls())
}

func TestQueue_RestartsAfterIdle(t *testing.T) {
	s := &scriptSender{}
	q := New(s, &memRecorder{}, 0)
	q.Enqueue(job("J1"))
	waitIdle(t, q)
	q.Enqueue(job("J2"))
	waitIdle(t, q)
	assert.Equal(t, []string{"J1", "J2"}, s.calls())
}

type panicSender struct{ n atomic.Int32 }

func (p *panicSender) Send(ctx context.Context, clientID uuid.UUID, msg edomain.Message) (string, error) {
	if p.n.Add(1) == 1 {
		panic("boom")
	}
	return "id", nil
}

func TestQueue_PanicDoesNotStopConsumer(t *testing.T) {
	rec := &memRecorder{}
	q := New(&panicSender{}, rec, 0)
	q.Enqueue(job("J1"))
	q.Enqueue(job("J2"))
	waitIdle(t, q)
	assert.Equal(t, []string{"J2"}, rec.entries)
	assert.Equal(t, uint64(1), q.Stats().Failed)
}

type deadlineSender struct{ saw bool }

func (d *deadlineSender) Send(ctx context.Context, clientID uuid.UUID, msg edomain.Message) (string, error) {
	_, d.saw = ctx.Deadline()
	return "id", nil
}

func TestQueue_AppliesSendTimeout(t *testing.T) {
	s := &deadlineSender{}
	q := New(s, &memRecorder{}, time.Second)
	q.Enqueue(job("J1"))
	waitIdle(t, q)
	assert.True(t, s.saw)
}

// slowSender takes delay to deliver unless ctx expires first.
type slowSender struct{ delay time.Duration }

func (s slowSender) Send(ctx context.Context, clientID uuid.UUID, msg edomain.Message) (string, error) {
	select {
	case <-time.After(s.delay):
		return "<slow@test>", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestQueue_HonoursClientTimeoutOverride(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	client, err := mem.Clients().CreateClient(ctx, uuid.New(), "acme", "k")
	require.NoError(t, err)

	settings := ssvc.New(mem.Settings())
	require.NoError(t, settings.Set(ctx, sdomain.KeySendTimeout, &client.ID, "1s"))

	cfg := config.Config{SendTimeout: 50 * time.Millisecond, EmailProvider: "ses"}
	router := esvc.NewRouter(settings, cfg, slowSender{delay: 150 * time.Millisecond})
	q := New(router, &memRecorder{}, cfg.SendTimeout)

	j := job("slow")
	j.ClientID = client.ID
	q.Enqueue(j)
	waitIdle(t, q)

	st := q.Stats()
	assert.Equal(t, uint64(1), st.Sent)
	assert.Equal(t, uint64(0), st.Failed)

	// Clients without an override keep the global bound.
	other := job("other")
	q.Enqueue(other)
	waitIdle(t, q)
	assert.Equal(t, uint64(1), q.Stats().Failed)
}

func TestQueue_WaitCoversRestartedCycle(t *testing.T) {
	s := &scriptSender{gate: make(chan struct{}, 2)}
	q := New(s, &memRecorder{}, 0)

	var once sync.Once
	q.woke = func() {
		// The first cycle has ended; start a second before Wait re-checks.
		once.Do(func() { q.Enqueue(job("J2")) })
	}

	q.Enqueue(job("J1"))
	done := make(chan error, 1)
	go func() { done <- q.Wait(context.Background()) }()
	// Let Wait block on the first cycle before it ends.
	time.Sleep(20 * time.Millisecond)

	s.gate <- struct{}{}
	select {
	case err := <-done:
		t.Fatalf("Wait returned %v while J2 was still pending", err)
	case <-time.After(50 * time.Millisecond):
	}

	s.gate <- struct{}{}
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after the second cycle")
	}
	assert.Equal(t, []string{"J1", "J2"}, s.calls())
	assert.True(t, q.Idle())
}
