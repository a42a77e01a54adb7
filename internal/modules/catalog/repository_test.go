package catalog

import (
	"context"
	"testing"

	"github.com/aristath/qpubinder/internal/domain"
	testutil "github.com/aristath/qpubinder/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, cleanup := testutil.NewTestDB(t, "catalog")
	t.Cleanup(cleanup)
	return NewRepository(db.Conn(), zerolog.Nop())
}

func TestRepository_UpsertAndGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	qpu := MockQPUs()[1]
	require.NoError(t, repo.Upsert(ctx, qpu))

	got, err := repo.Get(ctx, qpu.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, qpu, got)

	qpu.Workload = 99
	qpu.Fidelity["cx"] = 0.5
	require.NoError(t, repo.Upsert(ctx, qpu))

	got, err = repo.Get(ctx, qpu.ID)
	require.NoError(t, err)
	assert.Equal(t, 99.0, got.Workload)
	assert.Equal(t, 0.5, got.Fidelity["cx"])
}

func TestRepository_GetMissing(t *testing.T) {
	repo := newTestRepository(t)
	got, err := repo.Get(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_UpsertRequiresID(t *testing.T) {
	repo := newTestRepository(t)
	assert.Error(t, repo.Upsert(context.Background(), &domain.QPU{QubitCount: 1}))
	assert.Error(t, repo.Upsert(context.Background(), nil))
}

func TestRepository_ListIsOrderedByID(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for _, q := range MockQPUs() {
		require.NoError(t, repo.Upsert(ctx, q))
	}

	qpus, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, qpus, len(MockQPUs()))
	for i := 1; i < len(qpus); i++ {
		assert.Less(t, qpus[i-1].ID, qpus[i].ID)
	}

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, qpus, loaded)
	assert.Equal(t, "sqlite", repo.Name())
}

func TestRepository_DeleteAndAvailability(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	for _, q := range MockQPUs() {
		require.NoError(t, repo.Upsert(ctx, q))
	}

	require.NoError(t, repo.SetAvailability(ctx, "sc-ring-8", true))
	got, err := repo.Get(ctx, "sc-ring-8")
	require.NoError(t, err)
	assert.True(t, got.Available)
	assert.Equal(t, MockQPUs()[3].Fidelity, got.Fidelity)

	assert.Error(t, repo.SetAvailability(ctx, "missing", false))

	require.NoError(t, repo.Delete(ctx, "sc-ring-8"))
	require.NoError(t, repo.Delete(ctx, "sc-ring-8"))
	got, err = repo.Get(ctx, "sc-ring-8")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_ReplaceAll(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	for _, q := range MockQPUs() {
		require.NoError(t, repo.Upsert(ctx, q))
	}

	replacement := []*domain.QPU{{ID: "only", QubitCount: 2, Couplers: []domain.Pair{{0, 1}}, Available: true}}
	require.NoError(t, repo.ReplaceAll(ctx, replacement))

	qpus, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, qpus, 1)
	assert.Equal(t, "only", qpus[0].ID)

	// a bad entry rolls the whole replacement back
	err = repo.ReplaceAll(ctx, []*domain.QPU{{ID: "new", QubitCount: 1}, {QubitCount: 1}})
	require.Error(t, err)
	qpus, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, qpus, 1)
	assert.Equal(t, "only", qpus[0].ID)
}
