package uploader

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/nullspace/ledger"
	"github.com/blockberries/nullspace/logging"
	"github.com/blockberries/nullspace/metrics"
	"github.com/blockberries/nullspace/pipeline"
	nullspacetest "github.com/blockberries/nullspace/testing"
	"github.com/blockberries/nullspace/types"
)

var fast = Config{InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, MaxRetries: 3}

// fakeSink fails the first failures attempts of every delivery, or
// only of height only when it is set.
type fakeSink struct {
	name     string
	failures int
	only     uint64
	perm     bool

	mu        sync.Mutex
	attempts  map[uint64]int
	delivered []Delivery
	done      chan uint64
}

func newFakeSink(name string, failures int) *fakeSink {
	return &fakeSink{name: name, failures: failures, attempts: map[uint64]int{}, done: make(chan uint64, 64)}
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Deliver(_ context.Context, d Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[d.Record.Height]++
	if (s.only == 0 || s.only == d.Record.Height) && s.attempts[d.Record.Height] <= s.failures {
		err := errors.New("unavailable")
		if s.perm {
			return Permanent(err)
		}
		return err
	}
	s.delivered = append(s.delivered, d)
	s.done <- d.Record.Height
	return nil
}

func (s *fakeSink) attemptsFor(h uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[h]
}

func record(h uint64) types.BlockRecord {
	return types.BlockRecord{Height: h, StateRoot: types.Hash{byte(h), 0xaa}}
}

func waitHeight(t *testing.T, ch <-chan uint64) uint64 {
	t.Helper()
	select {
	case h := <-ch:
		return h
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return 0
	}
}

func start(t *testing.T, u *Uploader) chan<- pipeline.Committed {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	commits := make(chan pipeline.Committed, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		u.Run(ctx, commits)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return commits
}

func TestDeliveryID_Deterministic(t *testing.T) {
	assert.Equal(t, DeliveryID(record(3)), DeliveryID(record(3)))
	assert.NotEqual(t, DeliveryID(record(3)), DeliveryID(record(4)))

	other := record(3)
	other.StateRoot[5] = 1
	assert.NotEqual(t, DeliveryID(record(3)), DeliveryID(other))
}

func TestUploader_RetriesThenDelivers(t *testing.T) {
	sink := newFakeSink("indexer", 2)
	u := New(fast, []Sink{sink}, logging.Discard(), nil)
	commits := start(t, u)

	commits <- pipeline.Committed{Record: record(1)}
	require.Equal(t, uint64(1), waitHeight(t, sink.done))
	assert.Equal(t, 3, sink.attemptsFor(1))

	sink.mu.Lock()
	d := sink.delivered[0]
	sink.mu.Unlock()
	assert.Equal(t, DeliveryID(record(1)), d.ID)
	assert.Equal(t, 3, d.Attempt)
}

func TestUploader_InOrderPerSink(t *testing.T) {
	sink := newFakeSink("indexer", 1)
	u := New(fast, []Sink{sink}, logging.Discard(), nil)
	commits := start(t, u)

	for h := uint64(1); h <= 5; h++ {
		commits <- pipeline.Committed{Record: record(h)}
	}
	for h := uint64(1); h <= 5; h++ {
		require.Equal(t, h, waitHeight(t, sink.done))
	}
}

func TestUploader_GivesUpAndMovesOn(t *testing.T) {
	sink := newFakeSink("flaky", 100)
	u := New(fast, []Sink{sink}, logging.Discard(), nil)
	commits := start(t, u)

	commits <- pipeline.Committed{Record: record(1)}
	// One attempt plus MaxRetries retries.
	require.Eventually(t, func() bool { return sink.attemptsFor(1) == 4 }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return u.Pending() == 0 }, 2*time.Second, time.Millisecond)

	sink.mu.Lock()
	sink.failures = 0
	sink.mu.Unlock()
	commits <- pipeline.Committed{Record: record(2)}
	require.Equal(t, uint64(2), waitHeight(t, sink.done))
	assert.Equal(t, 4, sink.attemptsFor(1))
}

func TestUploader_PermanentErrorNotRetried(t *testing.T) {
	sink := newFakeSink("strict", 1)
	sink.only = 1
	sink.perm = true
	u := New(fast, []Sink{sink}, logging.Discard(), nil)
	commits := start(t, u)

	commits <- pipeline.Committed{Record: record(1)}
	commits <- pipeline.Committed{Record: record(2)}
	require.Equal(t, uint64(2), waitHeight(t, sink.done))
	assert.Equal(t, 1, sink.attemptsFor(1))
}

func TestUploader_QueueDropsOldest(t *testing.T) {
	sink := newFakeSink("slow", 0)
	u := New(Config{QueueSize: 2}, []Sink{sink}, logging.Discard(), nil)

	// Not running: everything stays queued.
	for h := uint64(1); h <= 3; h++ {
		u.Enqueue(record(h))
	}
	require.Equal(t, 2, u.Pending())
	q := u.queues[0]
	assert.Equal(t, uint64(2), q.queue[0].Record.Height)
	assert.Equal(t, uint64(3), q.queue[1].Record.Height)
}

func TestUploader_SinksAreIndependent(t *testing.T) {
	stuck := newFakeSink("stuck", 1000)
	healthy := newFakeSink("healthy", 0)
	u := New(Config{InitialInterval: 50 * time.Millisecond, MaxRetries: 100}, []Sink{stuck, healthy}, logging.Discard(), nil)
	commits := start(t, u)

	commits <- pipeline.Committed{Record: record(1)}
	commits <- pipeline.Committed{Record: record(2)}
	require.Equal(t, uint64(1), waitHeight(t, healthy.done))
	require.Equal(t, uint64(2), waitHeight(t, healthy.done))
}

func TestHTTPSink(t *testing.T) {
	var (
		mu      sync.Mutex
		calls   int
		lastRec types.BlockRecord
		lastID  string
		attempt string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if err := cramberry.Unmarshal(body, &lastRec); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		lastID = r.Header.Get(HeaderDeliveryID)
		attempt = r.Header.Get(HeaderAttempt)
		assert.Equal(t, ContentType, r.Header.Get("Content-Type"))
		assert.Equal(t, strconv.FormatUint(lastRec.Height, 10), r.Header.Get(HeaderHeight))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	u := New(fast, []Sink{NewHTTPSink("indexer", srv.URL, nil)}, logging.Discard(), nil)
	commits := start(t, u)
	commits <- pipeline.Committed{Record: record(7)}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	}, 2*time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, uint64(7), lastRec.Height)
	assert.Equal(t, DeliveryID(record(7)).String(), lastID)
	assert.Equal(t, "2", attempt)
}

func TestHTTPSink_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewHTTPSink("indexer", srv.URL, nil).Deliver(context.Background(), Delivery{Record: record(1)})
	var perm *backoff.PermanentError
	require.ErrorAs(t, err, &perm)
	assert.Contains(t, perm.Error(), "400")
}

func TestUploader_FollowsLedgerCommits(t *testing.T) {
	app := nullspacetest.NewLedger(t, ledger.Config{})
	h := nullspacetest.NewHarness(t, app)
	h.Genesis(nullspacetest.DefaultGenesis(nullspacetest.Key(1)))

	sink := newFakeSink("indexer", 0)
	u := New(fast, []Sink{sink}, logging.Discard(), metrics.Uploader())
	commits, cancel := app.Pipeline().Subscribe(8)
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		u.Run(ctx, commits)
	}()
	defer func() {
		stop()
		<-done
	}()

	res := h.ApplyNext()
	require.Equal(t, uint64(1), waitHeight(t, sink.done))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, res.NewRoot, sink.delivered[0].Record.StateRoot)
}
