package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordIndexedIncrementsCounter(t *testing.T) {
	RecordIndexed("books", "books", "index", 3)
	got := testutil.ToFloat64(eventsIndexed.WithLabelValues("books", "books", "index"))
	assert.Equal(t, float64(3), got)
}

func TestSetEngineStateReportsGauge(t *testing.T) {
	SetEngineState("books", "books", int(3))
	got := testutil.ToFloat64(engineState.WithLabelValues("books", "books"))
	assert.Equal(t, float64(3), got)
}

func TestServeStatWritesSourceLines(t *testing.T) {
	s := &Server{Source: stubStatusSource{"books/books: Idle txmin_committed=42"}}
	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		s.serveStat(rec, nil)
	})
	assert.Equal(t, "books/books: Idle txmin_committed=42\n", rec.Body.String())
}

type stubStatusSource []string

func (s stubStatusSource) Statuses() []string { return s }

type discardResponseWriter struct{}

func (discardResponseWriter) Header() http.Header         { return http.Header{} }
func (discardResponseWriter) Write(b []byte) (int, error) { return len(b), nil }
func (discardResponseWriter) WriteHeader(int)              {}
