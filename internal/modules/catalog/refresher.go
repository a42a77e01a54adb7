package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/qpubinder/internal/domain"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// ErrDuplicateQPU is returned when a source yields the same id twice
var ErrDuplicateQPU = errors.New("duplicate qpu id")

// SnapshotObserver is notified after every successful publication
type SnapshotObserver interface {
	SnapshotPublished(snap *Snapshot)
}

// RefresherConfig controls retries of a refresh
type RefresherConfig struct {
	Attempts int           // total load attempts, at least 1
	Backoff  time.Duration // delay before the second attempt, doubled after each failure
	Timeout  time.Duration // bound on a scheduled refresh
}

// Refresher loads descriptors from a source and publishes them to a store.
// It implements the scheduler job interface.
type Refresher struct {
	source   domain.QPUSource
	store    *Store
	cfg      RefresherConfig
	observer SnapshotObserver
	log      zerolog.Logger
}

// NewRefresher creates a refresher
func NewRefresher(source domain.QPUSource, store *Store, cfg RefresherConfig, log zerolog.Logger) *Refresher {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Refresher{
		source: source,
		store:  store,
		cfg:    cfg,
		log:    log.With().Str("component", "catalog_refresher").Str("source", source.Name()).Logger(),
	}
}

// SetObserver registers the observer notified on publication
func (r *Refresher) SetObserver(o SnapshotObserver) {
	r.observer = o
}

// Name returns the job name
func (r *Refresher) Name() string {
	return "catalog_refresh"
}

// Run refreshes with the configured timeout
func (r *Refresher) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()

	_, err := r.Refresh(ctx)
	return err
}

// Refresh loads the source, retrying transient failures, and publishes a new
// snapshot. Descriptors that fail validation are still published; the
// binding filter rejects them individually. A catalog with nil entries,
// empty ids or duplicate ids is not published.
func (r *Refresher) Refresh(ctx context.Context) (*Snapshot, error) {
	start := time.Now()

	var qpus []*domain.QPU
	load := func() error {
		loaded, err := r.source.Load(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if err := CheckIdentities(loaded); err != nil {
			return backoff.Permanent(err)
		}
		qpus = loaded
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.cfg.Backoff
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(r.cfg.Attempts-1)), ctx)
	err := backoff.RetryNotify(load, retry, func(err error, wait time.Duration) {
		r.log.Warn().Err(err).Dur("retry_in", wait).Msg("Catalog load failed, retrying")
	})
	if err != nil {
		r.log.Error().Err(err).Msg("Catalog refresh failed")
		return nil, fmt.Errorf("catalog refresh from %s failed: %w", r.source.Name(), err)
	}

	invalid := 0
	for _, q := range qpus {
		if verr := q.Validate(); verr != nil {
			invalid++
			r.log.Warn().Err(verr).Str("qpu", q.ID).Msg("Invalid QPU descriptor")
		}
	}

	snap := r.store.Publish(r.source.Name(), qpus)
	if r.observer != nil {
		r.observer.SnapshotPublished(snap)
	}

	r.log.Info().
		Uint64("version", snap.Version).
		Int("qpus", len(snap.QPUs)).
		Int("invalid", invalid).
		Dur("duration", time.Since(start)).
		Msg("Catalog refreshed")

	return snap, nil
}

// CheckIdentities fails on nil entries, empty ids and duplicate ids
func CheckIdentities(qpus []*domain.QPU) error {
	seen := make(map[string]struct{}, len(qpus))
	for i, q := range qpus {
		if q == nil {
			return fmt.Errorf("catalog entry %d is empty", i)
		}
		if q.ID == "" {
			return fmt.Errorf("catalog entry %d has no id", i)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateQPU, q.ID)
		}
		seen[q.ID] = struct{}{}
	}
	return nil
}
