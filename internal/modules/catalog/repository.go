package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/qpubinder/internal/database"
	"github.com/aristath/qpubinder/internal/domain"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// qpuSpec is the blob column: the descriptor fields that have no column
type qpuSpec struct {
	NativeGates []string           `msgpack:"native_gates"`
	Couplers    []domain.Pair      `msgpack:"couplers"`
	Fidelity    map[string]float64 `msgpack:"fidelity"`
	MaxDepth    int                `msgpack:"max_depth,omitempty"`
	MaxShots    int                `msgpack:"max_shots,omitempty"`
}

// Repository stores QPU descriptors in the catalog database (qpus table).
// It doubles as a catalog source.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new QPU repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "qpus").Logger(),
	}
}

// Name identifies the repository as a source
func (r *Repository) Name() string {
	return "sqlite"
}

// Load returns every stored descriptor
func (r *Repository) Load(ctx context.Context) ([]*domain.QPU, error) {
	return r.List(ctx)
}

// execer is satisfied by both *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Upsert inserts or replaces a descriptor
func (r *Repository) Upsert(ctx context.Context, qpu *domain.QPU) error {
	return r.upsert(ctx, r.db, qpu)
}

func (r *Repository) upsert(ctx context.Context, ex execer, qpu *domain.QPU) error {
	if qpu == nil || qpu.ID == "" {
		return fmt.Errorf("qpu id is required")
	}

	spec, err := msgpack.Marshal(qpuSpec{
		NativeGates: qpu.NativeGates,
		Couplers:    qpu.Couplers,
		Fidelity:    qpu.Fidelity,
		MaxDepth:    qpu.MaxDepth,
		MaxShots:    qpu.MaxShots,
	})
	if err != nil {
		return fmt.Errorf("failed to encode qpu %s: %w", qpu.ID, err)
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO qpus (id, name, provider, qubit_count, available, workload, cost_per_shot, spec, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			provider = excluded.provider,
			qubit_count = excluded.qubit_count,
			available = excluded.available,
			workload = excluded.workload,
			cost_per_shot = excluded.cost_per_shot,
			spec = excluded.spec,
			updated_at = excluded.updated_at
	`, qpu.ID, qpu.Name, qpu.Provider, qpu.QubitCount, boolToInt(qpu.Available),
		qpu.Workload, qpu.CostPerShot, spec, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert qpu %s: %w", qpu.ID, err)
	}
	return nil
}

// Get retrieves a descriptor by id. Returns nil if it doesn't exist (not an error).
func (r *Repository) Get(ctx context.Context, id string) (*domain.QPU, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, provider, qubit_count, available, workload, cost_per_shot, spec
		FROM qpus WHERE id = ?
	`, id)

	qpu, err := scanQPU(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get qpu %s: %w", id, err)
	}
	return qpu, nil
}

// List returns all descriptors ordered by id
func (r *Repository) List(ctx context.Context) ([]*domain.QPU, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, provider, qubit_count, available, workload, cost_per_shot, spec
		FROM qpus ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list qpus: %w", err)
	}
	defer rows.Close()

	var out []*domain.QPU
	for rows.Next() {
		qpu, err := scanQPU(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan qpu row: %w", err)
		}
		out = append(out, qpu)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating qpus: %w", err)
	}
	return out, nil
}

// Delete removes a descriptor. Deleting a missing id is not an error.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM qpus WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete qpu %s: %w", id, err)
	}
	return nil
}

// SetAvailability flips the availability flag without touching calibration data
func (r *Repository) SetAvailability(ctx context.Context, id string, available bool) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE qpus SET available = ?, updated_at = ? WHERE id = ?",
		boolToInt(available), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update availability of qpu %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("qpu %s not found", id)
	}
	return nil
}

// ReplaceAll swaps the whole inventory in one transaction
func (r *Repository) ReplaceAll(ctx context.Context, qpus []*domain.QPU) error {
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM qpus"); err != nil {
			return fmt.Errorf("failed to clear qpus: %w", err)
		}
		for _, qpu := range qpus {
			if err := r.upsert(ctx, tx, qpu); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Info().Int("count", len(qpus)).Msg("Replaced QPU inventory")
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQPU(row rowScanner) (*domain.QPU, error) {
	var (
		qpu       domain.QPU
		available int
		blob      []byte
	)
	if err := row.Scan(&qpu.ID, &qpu.Name, &qpu.Provider, &qpu.QubitCount, &available,
		&qpu.Workload, &qpu.CostPerShot, &blob); err != nil {
		return nil, err
	}

	var spec qpuSpec
	if err := msgpack.Unmarshal(blob, &spec); err != nil {
		return nil, fmt.Errorf("failed to decode qpu %s: %w", qpu.ID, err)
	}
	qpu.NativeGates = spec.NativeGates
	qpu.Couplers = spec.Couplers
	qpu.Fidelity = spec.Fidelity
	qpu.MaxDepth = spec.MaxDepth
	qpu.MaxShots = spec.MaxShots
	qpu.Available = available != 0

	return &qpu, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
