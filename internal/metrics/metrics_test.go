package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/qpubinder/internal/domain"
	"github.com/aristath/qpubinder/internal/modules/catalog"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveBinding(t *testing.T) {
	c := New()

	selected := &domain.BindingResult{
		Selected: "q1",
		Rejections: map[string]domain.Rejection{
			"q2": {Code: domain.RejectInsufficientQubits},
			"q3": {Code: domain.RejectUnsupportedGates, Missing: []string{"ccx"}},
			"q4": {Code: domain.RejectInsufficientQubits},
		},
	}
	none := &domain.BindingResult{
		Rejections: map[string]domain.Rejection{"q1": {Code: domain.RejectUnavailable}},
	}

	c.ObserveBinding(selected, nil, time.Millisecond)
	c.ObserveBinding(none, nil, time.Millisecond)
	c.ObserveBinding(nil, errors.New("invalid"), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.bindings.WithLabelValues(OutcomeSelected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.bindings.WithLabelValues(OutcomeNone)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.bindings.WithLabelValues(OutcomeError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.rejections.WithLabelValues(string(domain.RejectInsufficientQubits))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rejections.WithLabelValues(string(domain.RejectUnsupportedGates))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rejections.WithLabelValues(string(domain.RejectUnavailable))))
}

func TestSnapshotPublished(t *testing.T) {
	c := New()
	store := catalog.NewStore()
	store.Publish("mock", catalog.MockQPUs())
	snap := store.Publish("mock", catalog.MockQPUs())

	c.SnapshotPublished(snap)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.catalogVersion))
	assert.Equal(t, float64(len(catalog.MockQPUs())), testutil.ToFloat64(c.catalogQPUs))
}

func TestHandler(t *testing.T) {
	c := New()
	c.ObserveBinding(&domain.BindingResult{Selected: "q"}, nil, time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "qpubind_bindings_total")
	assert.Contains(t, body, "qpubind_binding_duration_seconds")
	assert.Contains(t, body, "go_goroutines")
}
