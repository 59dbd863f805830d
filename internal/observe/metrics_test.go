package observe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name string, attr attribute.KeyValue) int64 {
	t.Helper()
	m := findMetric(rm, name)
	if m == nil {
		t.Fatalf("metric %s not found", name)
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s is %T, want Sum[int64]", name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attr.Key); ok && v == attr.Value {
			total += dp.Value
		}
	}
	return total
}

func TestRecordFailureByCode(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.RecordFailure(ctx, "no_transcription_output")
	m.RecordFailure(ctx, "no_transcription_output")
	m.RecordFailure(ctx, "extraction_failed")

	rm := collect(t, reader)
	if got := sumFor(t, rm, "spendvoice.failures", attribute.String("code", "no_transcription_output")); got != 2 {
		t.Errorf("no_transcription_output = %d, want 2", got)
	}
	if got := sumFor(t, rm, "spendvoice.failures", attribute.String("code", "extraction_failed")); got != 1 {
		t.Errorf("extraction_failed = %d, want 1", got)
	}
}

func TestRecordExtraction(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.RecordExtraction(ctx, "groq/llama3-70b-8192", 300*time.Millisecond, nil)
	m.RecordExtraction(ctx, "groq/llama3-70b-8192", time.Second, errors.New("boom"))

	rm := collect(t, reader)
	if got := sumFor(t, rm, "spendvoice.extractions", attribute.String("status", "error")); got != 1 {
		t.Errorf("error extractions = %d, want 1", got)
	}
	h := findMetric(rm, "spendvoice.llm.duration")
	if h == nil {
		t.Fatal("llm duration histogram missing")
	}
	hist, ok := h.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 2 {
		t.Errorf("llm duration = %+v", h.Data)
	}
}

func TestRecordSTTAndGate(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.RecordSTT(ctx, "whisper", 2*time.Second)
	m.RecordGate(ctx, "timeout")
	m.Sessions.Add(ctx, 1)

	rm := collect(t, reader)
	if findMetric(rm, "spendvoice.stt.duration") == nil {
		t.Error("stt duration histogram missing")
	}
	if got := sumFor(t, rm, "spendvoice.gate.resolutions", attribute.String("reason", "timeout")); got != 1 {
		t.Errorf("timeout resolutions = %d, want 1", got)
	}
}

func TestDiscard(t *testing.T) {
	m := Discard()
	m.RecordFailure(context.Background(), "x")
	m.RecordSTT(context.Background(), "x", time.Second)
}

func TestMiddlewareRecordsDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
	if findMetric(collect(t, reader), "spendvoice.http.request.duration") == nil {
		t.Error("http duration histogram missing")
	}
}

func TestProviderHandlerExposesMetrics(t *testing.T) {
	p, err := InitProvider(context.Background(), "spendvoice-test", "dev")
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	defer p.Shutdown(context.Background())

	p.Metrics.RecordFailure(context.Background(), "model_unavailable")

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "spendvoice_failures") {
		t.Errorf("exposition missing spendvoice_failures:\n%s", body)
	}
}
