package collector

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/formrelay/internal/dlq"
	"github.com/telhawk-systems/formrelay/internal/logging"
	"github.com/telhawk-systems/formrelay/internal/models"
	"github.com/telhawk-systems/formrelay/internal/store"
)

// stepClock hands out strictly increasing timestamps.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func newTestStore(t *testing.T) *store.FileStore {
	t.Helper()
	s := store.NewFileStore(filepath.Join(t.TempDir(), "storage", "data.json"))
	require.NoError(t, s.Init())
	return s
}

func loadDoc(t *testing.T, s store.Store) models.Document {
	t.Helper()
	doc, err := s.Load(context.Background())
	require.NoError(t, err)
	return doc
}

// failingStore loads fine but cannot persist.
type failingStore struct {
	doc models.Document
}

func (f *failingStore) Load(ctx context.Context) (models.Document, error) {
	out := models.Document{}
	for k, v := range f.doc {
		out[k] = v
	}
	return out, nil
}

func (f *failingStore) Persist(ctx context.Context, doc models.Document) error {
	return errors.New("disk full")
}

func TestHandle_StoresDecodedSubmission(t *testing.T) {
	st := newTestStore(t)
	clock := newStepClock()
	svc := New(Config{}, st, logging.Discard(), WithClock(clock.Now))

	svc.Handle(context.Background(), []byte("username=alice&message=hi+there"), "127.0.0.1:5555")

	doc := loadDoc(t, st)
	require.Len(t, doc, 1)
	assert.Equal(t, models.Entry{"username": "alice", "message": "hi there"}, doc["2024-01-01 12:00:00.001000"])
}

func TestHandle_SequentialDatagramsDistinctKeys(t *testing.T) {
	st := newTestStore(t)
	clock := newStepClock()
	svc := New(Config{}, st, logging.Discard(), WithClock(clock.Now))

	const n = 10
	for i := 0; i < n; i++ {
		svc.Handle(context.Background(), []byte("k=v"), "peer")
	}

	assert.Len(t, loadDoc(t, st), n)
}

func TestHandle_SameTimestampOverwrites(t *testing.T) {
	st := newTestStore(t)
	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local)
	svc := New(Config{}, st, logging.Discard(), WithClock(func() time.Time { return fixed }))

	svc.Handle(context.Background(), []byte("n=1"), "peer")
	svc.Handle(context.Background(), []byte("n=2"), "peer")

	doc := loadDoc(t, st)
	require.Len(t, doc, 1)
	assert.Equal(t, models.Entry{"n": "2"}, doc[models.TimestampKey(fixed)])
}

func TestHandle_MalformedThenValid(t *testing.T) {
	st := newTestStore(t)
	rejects, err := dlq.NewQueue(filepath.Join(t.TempDir(), "rejected"), nil)
	require.NoError(t, err)

	svc := New(Config{}, st, logging.Discard(), WithClock(newStepClock().Now), WithRejectQueue(rejects))

	svc.Handle(context.Background(), []byte("no-equals-here"), "peer")
	assert.Empty(t, loadDoc(t, st), "malformed datagram must not create an entry")

	svc.Handle(context.Background(), []byte("username=bob"), "peer")
	doc := loadDoc(t, st)
	require.Len(t, doc, 1)
	for _, entry := range doc {
		assert.Equal(t, models.Entry{"username": "bob"}, entry)
	}

	rejected, err := rejects.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, "no-equals-here", rejected[0].Payload)
}

func TestHandle_PersistFailureIsContained(t *testing.T) {
	st := &failingStore{doc: models.Document{"old": {"a": "b"}}}
	svc := New(Config{}, st, logging.Discard())

	assert.NotPanics(t, func() {
		svc.Handle(context.Background(), []byte("a=1"), "peer")
	})
	assert.Len(t, st.doc, 1)
}

func TestHandle_CorruptStoreNotReset(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, os.WriteFile(st.Path(), []byte("{broken"), 0644))

	svc := New(Config{}, st, logging.Discard())
	svc.Handle(context.Background(), []byte("a=1"), "peer")

	data, err := os.ReadFile(st.Path())
	require.NoError(t, err)
	assert.Equal(t, "{broken", string(data))
}

func startCollector(t *testing.T, st store.Store) (*Service, context.CancelFunc, <-chan error) {
	t.Helper()
	svc := New(Config{Addr: "127.0.0.1:0", MaxDatagramBytes: 2048}, st, logging.Discard(), WithClock(newStepClock().Now))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	select {
	case <-svc.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("collector exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("collector did not become ready")
	}
	return svc, cancel, done
}

func sendDatagram(t *testing.T, addr net.Addr, payload string) {
	t.Helper()
	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(payload))
	require.NoError(t, err)
}

func TestRun_ReceivesAndStores(t *testing.T) {
	st := newTestStore(t)
	svc, cancel, done := startCollector(t, st)
	defer cancel()

	sendDatagram(t, svc.Addr(), "broken")
	sendDatagram(t, svc.Addr(), "username=alice&message=hi+there")

	require.Eventually(t, func() bool {
		doc, err := st.Load(context.Background())
		return err == nil && len(doc) == 1
	}, 5*time.Second, 20*time.Millisecond)

	for _, entry := range loadDoc(t, st) {
		assert.Equal(t, models.Entry{"username": "alice", "message": "hi there"}, entry)
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("collector did not stop after cancellation")
	}
}

// flakyConn fails its first read, then behaves like the wrapped socket.
type flakyConn struct {
	net.PacketConn
	mu     sync.Mutex
	failed bool
}

func (c *flakyConn) ReadFrom(p []byte) (int, net.Addr, error) {
	c.mu.Lock()
	if !c.failed {
		c.failed = true
		c.mu.Unlock()
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: errors.New("connection refused")}
	}
	c.mu.Unlock()
	return c.PacketConn.ReadFrom(p)
}

func TestRun_ContinuesAfterReadError(t *testing.T) {
	st := newTestStore(t)
	svc := New(Config{Addr: "127.0.0.1:0"}, st, logging.Discard(), WithClock(newStepClock().Now))
	svc.listen = func(ctx context.Context, addr string) (net.PacketConn, error) {
		conn, err := listenUDP(ctx, addr)
		if err != nil {
			return nil, err
		}
		return &flakyConn{PacketConn: conn}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	select {
	case <-svc.Ready():
	case err := <-done:
		t.Fatalf("collector exited early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("collector did not become ready")
	}

	sendDatagram(t, svc.Addr(), "username=carol")

	require.Eventually(t, func() bool {
		doc, err := st.Load(context.Background())
		return err == nil && len(doc) == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("collector did not stop after cancellation")
	}
}

func TestNew_DefaultBufferSize(t *testing.T) {
	svc := New(Config{Addr: "127.0.0.1:0"}, newTestStore(t), logging.Discard())
	assert.Equal(t, models.MaxDatagramBytes, svc.cfg.MaxDatagramBytes)
}

func TestRun_StopsWhenIdle(t *testing.T) {
	st := newTestStore(t)
	_, cancel, done := startCollector(t, st)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("idle collector did not observe cancellation")
	}
}

func TestRun_RefusesCorruptStore(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, os.WriteFile(st.Path(), []byte("not json"), 0644))

	svc := New(Config{Addr: "127.0.0.1:0"}, st, logging.Discard())
	err := svc.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrCorruptStore)

	data, readErr := os.ReadFile(st.Path())
	require.NoError(t, readErr)
	assert.Equal(t, "not json", string(data))
}

func TestRun_RefusesMissingStore(t *testing.T) {
	st := store.NewFileStore(filepath.Join(t.TempDir(), "missing", "data.json"))

	err := New(Config{Addr: "127.0.0.1:0"}, st, logging.Discard()).Run(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRun_BindFailure(t *testing.T) {
	busy, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	st := newTestStore(t)
	svc := New(Config{Addr: busy.LocalAddr().String()}, st, logging.Discard())

	assert.Error(t, svc.Run(context.Background()))
}

func TestName(t *testing.T) {
	assert.Equal(t, "collector", New(Config{}, nil, nil).Name())
}
