package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/qpubinder/internal/domain"
	"github.com/aristath/qpubinder/internal/modules/batch"
	"github.com/aristath/qpubinder/internal/modules/binding"
	"github.com/aristath/qpubinder/internal/modules/catalog"
	"github.com/aristath/qpubinder/internal/modules/circuit"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bellQASM = `OPENQASM 2.0;
qreg q[2];
creg c[2];
h q[0];
cx q[0], q[1];
measure q -> c;`

type countingObserver struct {
	outcomes []string
}

func (o *countingObserver) ObserveBinding(result *domain.BindingResult, err error, _ time.Duration) {
	switch {
	case err != nil:
		o.outcomes = append(o.outcomes, "error")
	case result.HasSelection():
		o.outcomes = append(o.outcomes, "selected")
	default:
		o.outcomes = append(o.outcomes, "none")
	}
}

func setupHandler(t *testing.T, publish bool) (http.Handler, *countingObserver) {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	store := catalog.NewStore()
	if publish {
		store.Publish("mock", catalog.MockQPUs())
	}
	engine := binding.NewEngine(binding.DefaultOptions(), logger)
	observer := &countingObserver{}
	handler := NewHandler(
		engine,
		circuit.NewParser(logger),
		store,
		batch.NewWorkerPool(engine, 2, logger),
		observer,
		domain.Weights{Fidelity: 1, Latency: 1, Cost: 1},
		logger,
	)

	router := chi.NewRouter()
	router.Route("/api", handler.RegisterRoutes)
	return router, observer
}

func post(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	bodyBytes, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(bodyBytes))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type bindEnvelope struct {
	Data BindResponse `json:"data"`
}

func TestHandleBind_QASMAgainstCatalog(t *testing.T) {
	router, observer := setupHandler(t, true)

	w := post(t, router, "/api/bindings", map[string]interface{}{"qasm": bellQASM})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response bindEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))

	_, err := uuid.Parse(response.Data.RequestID)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), response.Data.CatalogVersion)
	assert.NotEmpty(t, response.Data.Selected)
	assert.Equal(t, response.Data.Ranked[0].ID, response.Data.Selected)
	assert.Equal(t, domain.RejectUnavailable, response.Data.Rejections["sc-ring-8"].Code)
	// sc-line-5 has no h gate
	assert.Equal(t, domain.RejectUnsupportedGates, response.Data.Rejections["sc-line-5"].Code)
	assert.Equal(t, 2, response.Data.Circuit.QubitCount)
	assert.Equal(t, []string{"selected"}, observer.outcomes)
}

func TestHandleBind_InlineCircuitAndQPUs(t *testing.T) {
	router, _ := setupHandler(t, false)

	body := map[string]interface{}{
		"circuit": map[string]interface{}{
			"qubit_count":       3,
			"gates":             []string{"H", "CX"},
			"interaction_pairs": [][2]int{{0, 1}, {1, 2}},
		},
		"qpus": []map[string]interface{}{
			{"id": "QPU-1", "qubit_count": 2, "native_gates": []string{"h", "cx"}, "couplers": [][2]int{{0, 1}}, "available": true},
			{
				"id": "QPU-2", "qubit_count": 4, "native_gates": []string{"H", "CX", "X"},
				"couplers": [][2]int{{0, 1}, {1, 2}, {2, 3}}, "fidelity": map[string]float64{"H": 0.99, "CX": 0.95},
				"workload": 2, "cost_per_shot": 0.01, "available": true,
			},
		},
	}

	w := post(t, router, "/api/bindings", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response bindEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "QPU-2", response.Data.Selected)
	assert.Equal(t, uint64(0), response.Data.CatalogVersion)
	assert.Equal(t, domain.RejectInsufficientQubits, response.Data.Rejections["QPU-1"].Code)
}

func TestHandleBind_TopKAndSubset(t *testing.T) {
	router, _ := setupHandler(t, true)

	body := map[string]interface{}{
		"circuit": map[string]interface{}{"qubit_count": 2, "gates": []string{"cx"}},
		"top_k":   1,
		"qpu_ids": []string{"sc-grid-9", "ion-11"},
	}
	w := post(t, router, "/api/bindings", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response bindEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Len(t, response.Data.Ranked, 1)
	assert.Empty(t, response.Data.Rejections)

	body["qpu_ids"] = []string{"missing"}
	w = post(t, router, "/api/bindings", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleBind_ShotsAndConstraints(t *testing.T) {
	router, _ := setupHandler(t, true)

	body := map[string]interface{}{
		"qasm":  bellQASM,
		"shots": 50000,
		"constraints": []map[string]interface{}{
			{"name": "enough qubits", "property": "qubit_count", "operator": "ge", "value": 9},
		},
	}
	w := post(t, router, "/api/bindings", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response bindEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	// ion-11 caps shots at 10000
	assert.Equal(t, "sc-grid-9", response.Data.Selected)
	assert.Equal(t, domain.RejectExceedsLimits, response.Data.Rejections["ion-11"].Code)
	assert.Equal(t, 50000, response.Data.Circuit.Shots)
	assert.Positive(t, response.Data.Circuit.Depth)

	body["constraints"] = []map[string]interface{}{{"target": "qpu", "property": "colour", "value": "blue"}}
	w = post(t, router, "/api/bindings", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleBind_ShotsDoNotLeakThroughParseCache(t *testing.T) {
	logger := zerolog.Nop()
	store := catalog.NewStore()
	store.Publish("mock", catalog.MockQPUs())
	cache, err := circuit.NewCache(circuit.NewParser(logger), 8, logger)
	require.NoError(t, err)

	engine := binding.NewEngine(binding.DefaultOptions(), logger)
	handler := NewHandler(engine, cache, store, batch.NewWorkerPool(engine, 1, logger), nil,
		domain.Weights{Fidelity: 1, Latency: 1, Cost: 1}, logger)
	router := chi.NewRouter()
	router.Route("/api", handler.RegisterRoutes)

	w := post(t, router, "/api/bindings", map[string]interface{}{"qasm": bellQASM, "shots": 50000})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = post(t, router, "/api/bindings", map[string]interface{}{"qasm": bellQASM})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response bindEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Zero(t, response.Data.Circuit.Shots)
	assert.NotEqual(t, domain.RejectExceedsLimits, response.Data.Rejections["ion-11"].Code)

	hits, _ := cache.Stats()
	assert.Equal(t, uint64(1), hits)
}

func TestHandleBind_NoFeasibleQPU(t *testing.T) {
	router, observer := setupHandler(t, true)

	body := map[string]interface{}{
		"circuit": map[string]interface{}{"qubit_count": 50, "gates": []string{"h"}},
	}
	w := post(t, router, "/api/bindings", body)
	require.Equal(t, http.StatusOK, w.Code)

	var response bindEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Empty(t, response.Data.Selected)
	assert.Empty(t, response.Data.Ranked)
	assert.Len(t, response.Data.Rejections, len(catalog.MockQPUs()))
	assert.Equal(t, []string{"none"}, observer.outcomes)
}

func TestHandleBind_Errors(t *testing.T) {
	tests := []struct {
		name    string
		publish bool
		body    interface{}
		status  int
	}{
		{"missing circuit", true, map[string]interface{}{}, http.StatusBadRequest},
		{"both qasm and circuit", true, map[string]interface{}{"qasm": bellQASM, "circuit": map[string]interface{}{"qubit_count": 1}}, http.StatusBadRequest},
		{"unparseable qasm", true, map[string]interface{}{"qasm": "qreg q[1]; h r[0];"}, http.StatusBadRequest},
		{"invalid circuit", true, map[string]interface{}{"circuit": map[string]interface{}{"qubit_count": 0}}, http.StatusBadRequest},
		{"oversized register", true, map[string]interface{}{"qasm": "qreg q[100000000000]; h q;"}, http.StatusBadRequest},
		{"oversized inline qpu", true, map[string]interface{}{"qasm": bellQASM, "qpus": []map[string]interface{}{{"id": "a", "qubit_count": float64(1 << 40), "available": true}}}, http.StatusOK},
		{"negative shots", true, map[string]interface{}{"qasm": bellQASM, "shots": -1}, http.StatusBadRequest},
		{"invalid weights", true, map[string]interface{}{"qasm": bellQASM, "weights": map[string]float64{"fidelity": -1}}, http.StatusBadRequest},
		{"zero weights", true, map[string]interface{}{"qasm": bellQASM, "weights": map[string]float64{}}, http.StatusBadRequest},
		{"negative top_k", true, map[string]interface{}{"qasm": bellQASM, "top_k": -1}, http.StatusBadRequest},
		{"unknown field", true, map[string]interface{}{"qasm": bellQASM, "colour": "blue"}, http.StatusBadRequest},
		{"duplicate inline ids", true, map[string]interface{}{"qasm": bellQASM, "qpus": []map[string]interface{}{{"id": "a", "qubit_count": 2}, {"id": "a", "qubit_count": 2}}}, http.StatusBadRequest},
		{"catalog not loaded", false, map[string]interface{}{"qasm": bellQASM}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := setupHandler(t, tt.publish)
			w := post(t, router, "/api/bindings", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestHandleBind_MalformedJSON(t *testing.T) {
	router, _ := setupHandler(t, true)

	req := httptest.NewRequest("POST", "/api/bindings", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleBindBatch(t *testing.T) {
	router, observer := setupHandler(t, true)

	body := map[string]interface{}{
		"requests": []map[string]interface{}{
			{"qasm": bellQASM},
			{"qasm": "qreg q[1]; h r[0];"},
			{"circuit": map[string]interface{}{"qubit_count": 3, "gates": []string{"ccx"}, "interaction_pairs": [][2]int{{0, 1}, {1, 2}, {0, 2}}}},
			{"circuit": map[string]interface{}{"qubit_count": 1, "gates": []string{"x"}}, "weights": map[string]float64{}},
		},
	}

	w := post(t, router, "/api/bindings/batch", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response struct {
		Data []BatchItem `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Len(t, response.Data, 4)

	for i, item := range response.Data {
		assert.Equal(t, i, item.Index)
	}
	require.NotNil(t, response.Data[0].Result)
	assert.NotEmpty(t, response.Data[0].Result.Selected)

	assert.Nil(t, response.Data[1].Result)
	assert.Contains(t, response.Data[1].Error, "unknown register")

	require.NotNil(t, response.Data[2].Result)
	assert.Equal(t, "ion-11", response.Data[2].Result.Selected, "only the all-to-all device has ccx and a triangle")

	assert.Nil(t, response.Data[3].Result)
	assert.NotEmpty(t, response.Data[3].Error)

	// parse failures never reach the engine
	assert.Len(t, observer.outcomes, 3)
}

func TestHandleBindBatch_Limits(t *testing.T) {
	router, _ := setupHandler(t, true)

	w := post(t, router, "/api/bindings/batch", map[string]interface{}{"requests": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	requests := make([]map[string]interface{}, maxBatchSize+1)
	for i := range requests {
		requests[i] = map[string]interface{}{"qasm": bellQASM}
	}
	w = post(t, router, "/api/bindings/batch", map[string]interface{}{"requests": requests})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterRoutes(t *testing.T) {
	r := chi.NewRouter()
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	engine := binding.NewEngine(binding.DefaultOptions(), logger)
	handler := NewHandler(engine, circuit.NewParser(logger), catalog.NewStore(), batch.NewWorkerPool(engine, 1, logger), nil, domain.Weights{Fidelity: 1}, logger)

	assert.NotPanics(t, func() {
		handler.RegisterRoutes(r)
	})
}
