package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/qpubinder/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakySource fails the first failures loads
type flakySource struct {
	failures int32
	calls    atomic.Int32
	qpus     []*domain.QPU
}

func (s *flakySource) Name() string { return "flaky" }

func (s *flakySource) Load(ctx context.Context) ([]*domain.QPU, error) {
	n := s.calls.Add(1)
	if n <= s.failures {
		return nil, errors.New("temporarily unavailable")
	}
	return s.qpus, nil
}

type recordingObserver struct {
	versions []uint64
}

func (o *recordingObserver) SnapshotPublished(snap *Snapshot) {
	o.versions = append(o.versions, snap.Version)
}

func fastConfig(attempts int) RefresherConfig {
	return RefresherConfig{Attempts: attempts, Backoff: time.Millisecond, Timeout: time.Second}
}

func TestRefresher_PublishesSnapshot(t *testing.T) {
	store := NewStore()
	observer := &recordingObserver{}
	r := NewRefresher(NewMockSource(), store, fastConfig(1), zerolog.Nop())
	r.SetObserver(observer)

	snap, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Version)
	assert.Equal(t, "mock", snap.Source)
	assert.Len(t, snap.QPUs, len(MockQPUs()))
	assert.Equal(t, []uint64{1}, observer.versions)

	current, err := store.Current()
	require.NoError(t, err)
	assert.Same(t, snap, current)
}

func TestRefresher_RetriesTransientFailures(t *testing.T) {
	src := &flakySource{failures: 2, qpus: MockQPUs()}
	r := NewRefresher(src, NewStore(), fastConfig(3), zerolog.Nop())

	snap, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, snap)
	assert.Equal(t, int32(3), src.calls.Load())
}

func TestRefresher_GivesUpAfterAttempts(t *testing.T) {
	src := &flakySource{failures: 10}
	store := NewStore()
	r := NewRefresher(src, store, fastConfig(3), zerolog.Nop())

	_, err := r.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temporarily unavailable")
	assert.Equal(t, int32(3), src.calls.Load())

	_, err = store.Current()
	assert.ErrorIs(t, err, ErrNoSnapshot, "a failed refresh publishes nothing")
}

func TestRefresher_DuplicateIDsAreNotRetried(t *testing.T) {
	dup := []*domain.QPU{{ID: "a", QubitCount: 1}, {ID: "a", QubitCount: 2}}
	src := &flakySource{qpus: dup}
	r := NewRefresher(src, NewStore(), fastConfig(5), zerolog.Nop())

	_, err := r.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateQPU)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestRefresher_InvalidDescriptorsArePublished(t *testing.T) {
	qpus := append(MockQPUs(), &domain.QPU{ID: "broken", QubitCount: 0, Available: true})
	store := NewStore()
	r := NewRefresher(&flakySource{qpus: qpus}, store, fastConfig(1), zerolog.Nop())

	snap, err := r.Refresh(context.Background())
	require.NoError(t, err)
	_, ok := snap.Get("broken")
	assert.True(t, ok)
}

func TestRefresher_RunAsJob(t *testing.T) {
	store := NewStore()
	r := NewRefresher(NewMockSource(), store, fastConfig(1), zerolog.Nop())

	assert.Equal(t, "catalog_refresh", r.Name())
	require.NoError(t, r.Run())
	require.NoError(t, r.Run())

	snap, err := store.Current()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Version)
}

func TestRefresher_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRefresher(NewMockSource(), NewStore(), fastConfig(3), zerolog.Nop())
	_, err := r.Refresh(ctx)
	assert.Error(t, err)
}
