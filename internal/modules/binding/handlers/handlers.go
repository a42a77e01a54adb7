// Package handlers provides HTTP handlers for binding circuits to QPUs.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aristath/qpubinder/internal/domain"
	"github.com/aristath/qpubinder/internal/modules/batch"
	"github.com/aristath/qpubinder/internal/modules/binding"
	"github.com/aristath/qpubinder/internal/modules/catalog"
	"github.com/aristath/qpubinder/internal/modules/circuit"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	maxBodyBytes = 8 << 20
	maxBatchSize = 1000
)

// errBadRequest marks request problems that map to 400
var errBadRequest = errors.New("bad request")

// Observer records binding outcomes
type Observer interface {
	ObserveBinding(result *domain.BindingResult, err error, elapsed time.Duration)
}

// Handler handles binding HTTP requests
type Handler struct {
	engine         *binding.Engine
	parser         domain.CircuitParser
	store          *catalog.Store
	pool           *batch.WorkerPool
	observer       Observer
	defaultWeights domain.Weights
	log            zerolog.Logger
}

// NewHandler creates a new binding handler. observer may be nil.
func NewHandler(
	engine *binding.Engine,
	parser domain.CircuitParser,
	store *catalog.Store,
	pool *batch.WorkerPool,
	observer Observer,
	defaultWeights domain.Weights,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		engine:         engine,
		parser:         parser,
		store:          store,
		pool:           pool,
		observer:       observer,
		defaultWeights: defaultWeights,
		log:            log.With().Str("handler", "binding").Logger(),
	}
}

// CircuitRequest is a circuit descriptor given directly instead of as source
type CircuitRequest struct {
	QubitCount       int           `json:"qubit_count"`
	Gates            []string      `json:"gates"`
	InteractionPairs []domain.Pair `json:"interaction_pairs"`
	Depth            int           `json:"depth,omitempty"`
}

// BindRequest represents a request to bind one circuit.
// Exactly one of QASM and Circuit must be set. QPUs replaces the catalog for
// this request; QPUIDs restricts the catalog to the listed devices.
type BindRequest struct {
	QASM        string              `json:"qasm,omitempty"`
	Circuit     *CircuitRequest     `json:"circuit,omitempty"`
	Shots       int                 `json:"shots,omitempty"`
	Weights     *domain.Weights     `json:"weights,omitempty"`
	Constraints []domain.Constraint `json:"constraints,omitempty"`
	TopK        int                 `json:"top_k,omitempty"`
	QPUs        []*domain.QPU       `json:"qpus,omitempty"`
	QPUIDs      []string            `json:"qpu_ids,omitempty"`
}

// BatchRequest represents a request to bind several circuits
type BatchRequest struct {
	Requests []BindRequest `json:"requests"`
}

// BindResponse is the result of one binding request
type BindResponse struct {
	RequestID      string                      `json:"request_id"`
	CatalogVersion uint64                      `json:"catalog_version,omitempty"`
	Selected       string                      `json:"selected"`
	Ranked         []domain.RankedQPU          `json:"ranked"`
	Rejections     map[string]domain.Rejection `json:"rejections"`
	Circuit        *domain.Circuit             `json:"circuit"`
}

// BatchItem is one entry of a batch response; Error is set instead of Result on failure
type BatchItem struct {
	Index  int           `json:"index"`
	Result *BindResponse `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// resolved is a request turned into engine inputs
type resolved struct {
	circuit     *domain.Circuit
	qpus        []*domain.QPU
	weights     domain.Weights
	constraints []domain.Constraint
	version     uint64
	topK        int
}

// HandleBind handles POST /api/bindings
func (h *Handler) HandleBind(w http.ResponseWriter, r *http.Request) {
	var req BindRequest
	if !h.decode(w, r, &req) {
		return
	}

	in, err := h.resolve(&req, h.store.Current)
	if err != nil {
		h.writeError(w, err)
		return
	}

	start := time.Now()
	result, err := h.engine.Bind(r.Context(), in.circuit, in.qpus, in.weights, in.constraints...)
	h.observe(result, err, time.Since(start))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": buildResponse(in, result),
		"metadata": map[string]interface{}{
			"timestamp":   time.Now().Format(time.RFC3339),
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000,
		},
	})
}

// HandleBindBatch handles POST /api/bindings/batch
func (h *Handler) HandleBindBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Requests) == 0 {
		http.Error(w, "Batch must contain at least one request", http.StatusBadRequest)
		return
	}
	if len(req.Requests) > maxBatchSize {
		http.Error(w, fmt.Sprintf("Batch exceeds %d requests", maxBatchSize), http.StatusBadRequest)
		return
	}

	items := make([]BatchItem, len(req.Requests))
	inputs := make([]resolved, 0, len(req.Requests))
	jobs := make([]batch.Job, 0, len(req.Requests))
	positions := make([]int, 0, len(req.Requests))

	// every item binds against the same snapshot
	var (
		snap    *catalog.Snapshot
		snapErr error
		loaded  bool
	)
	current := func() (*catalog.Snapshot, error) {
		if !loaded {
			snap, snapErr = h.store.Current()
			loaded = true
		}
		return snap, snapErr
	}

	for i := range req.Requests {
		items[i].Index = i
		in, err := h.resolve(&req.Requests[i], current)
		if err != nil {
			items[i].Error = err.Error()
			continue
		}
		inputs = append(inputs, in)
		jobs = append(jobs, batch.Job{Circuit: in.circuit, QPUs: in.qpus, Weights: in.weights, Constraints: in.constraints})
		positions = append(positions, i)
	}

	start := time.Now()
	results := h.pool.BindBatch(r.Context(), jobs)
	elapsed := time.Since(start)

	failed := 0
	for j, res := range results {
		i := positions[j]
		h.observe(res.Result, res.Err, elapsed/time.Duration(len(results)))
		if res.Err != nil {
			items[i].Error = res.Err.Error()
			failed++
			continue
		}
		items[i].Result = buildResponse(inputs[j], res.Result)
	}

	h.log.Debug().
		Int("requests", len(req.Requests)).
		Int("bound", len(jobs)-failed).
		Dur("duration", elapsed).
		Msg("Batch binding completed")

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": items,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"count":     len(items),
		},
	})
}

// resolve parses the circuit and picks the QPUs and weights for a request
func (h *Handler) resolve(req *BindRequest, current func() (*catalog.Snapshot, error)) (resolved, error) {
	var in resolved

	switch {
	case req.QASM != "" && req.Circuit != nil:
		return in, fmt.Errorf("%w: give either qasm or circuit, not both", errBadRequest)
	case req.QASM != "":
		parsed, err := h.parser.Parse(req.QASM)
		if err != nil {
			return in, err
		}
		// parsed descriptors may be shared through the cache; shots are per request
		c := *parsed
		in.circuit = &c
	case req.Circuit != nil:
		in.circuit = domain.NewCircuit(req.Circuit.QubitCount, req.Circuit.Gates, req.Circuit.InteractionPairs)
		in.circuit.Depth = req.Circuit.Depth
	default:
		return in, fmt.Errorf("%w: qasm or circuit is required", errBadRequest)
	}
	in.circuit.Shots = req.Shots
	in.constraints = req.Constraints

	if req.TopK < 0 {
		return in, fmt.Errorf("%w: top_k must not be negative", errBadRequest)
	}
	in.topK = req.TopK

	in.weights = h.defaultWeights
	if req.Weights != nil {
		in.weights = *req.Weights
	}

	if len(req.QPUs) > 0 {
		if len(req.QPUIDs) > 0 {
			return in, fmt.Errorf("%w: give either qpus or qpu_ids, not both", errBadRequest)
		}
		in.qpus = req.QPUs
		return in, nil
	}

	snap, err := current()
	if err != nil {
		return in, err
	}
	in.version = snap.Version
	in.qpus = snap.QPUs

	if len(req.QPUIDs) > 0 {
		qpus, unknown := snap.Subset(req.QPUIDs)
		if len(unknown) > 0 {
			return in, fmt.Errorf("%w: unknown qpu ids %v", errBadRequest, unknown)
		}
		in.qpus = qpus
	}
	return in, nil
}

func buildResponse(in resolved, result *domain.BindingResult) *BindResponse {
	return &BindResponse{
		RequestID:      uuid.NewString(),
		CatalogVersion: in.version,
		Selected:       result.Selected,
		Ranked:         result.Top(in.topK),
		Rejections:     result.Rejections,
		Circuit:        in.circuit,
	}
}

func (h *Handler) observe(result *domain.BindingResult, err error, elapsed time.Duration) {
	if h.observer != nil {
		h.observer.ObserveBinding(result, err, elapsed)
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// writeError maps binding errors to HTTP status codes
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, circuit.ErrParse),
		errors.Is(err, binding.ErrInvalidCircuitDescriptor),
		errors.Is(err, binding.ErrInvalidConfiguration),
		errors.Is(err, binding.ErrInvalidCatalog):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, catalog.ErrNoSnapshot):
		http.Error(w, "Catalog not loaded yet", http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "Request cancelled", http.StatusServiceUnavailable)
	default:
		h.log.Error().Err(err).Msg("Binding failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
