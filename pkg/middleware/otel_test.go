package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newRecordingProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, rec
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestOpenTelemetry_RecordsRequestSpan(t *testing.T) {
	tp, rec := newRecordingProvider(t)

	r := chi.NewRouter()
	r.Use(OpenTelemetry(
		WithTracerProvider(tp),
		WithIncludeSessionID(true),
		WithAttributeExtractor(func(*http.Request) []attribute.KeyValue {
			return []attribute.KeyValue{attribute.String("test.attr", "ok")}
		}),
	))
	var inner trace.Span
	r.Post("/UIDL/*", func(w http.ResponseWriter, r *http.Request) {
		inner = SpanFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/UIDL/main", nil)
	req.AddCookie(&http.Cookie{Name: "VANGOSESSION", Value: "sess-1"})
	r.ServeHTTP(httptest.NewRecorder(), req)

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "HTTP POST" {
		t.Errorf("span name = %q", span.Name())
	}
	if span.SpanKind() != trace.SpanKindServer {
		t.Errorf("span kind = %v", span.SpanKind())
	}
	if inner == nil || inner.SpanContext().SpanID() != span.SpanContext().SpanID() {
		t.Error("handler did not see the request span in its context")
	}

	want := map[attribute.Key]attribute.Value{
		"http.method":      attribute.StringValue("POST"),
		"http.route":       attribute.StringValue("/UIDL/*"),
		"http.status_code": attribute.IntValue(200),
		"vango.session_id": attribute.StringValue("sess-1"),
		"test.attr":        attribute.StringValue("ok"),
	}
	for key, v := range want {
		got, ok := spanAttr(span, key)
		if !ok || got != v {
			t.Errorf("attribute %s = %v (present %v), want %v", key, got.Emit(), ok, v.Emit())
		}
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", span.Status().Code)
	}
}

func TestOpenTelemetry_ServerErrorMarksSpan(t *testing.T) {
	tp, rec := newRecordingProvider(t)
	h := OpenTelemetry(WithTracerProvider(tp))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status().Code)
	}
	if got, _ := spanAttr(spans[0], "http.route"); got.AsString() != "unmatched" {
		t.Errorf("route = %q, want unmatched", got.AsString())
	}
}

func TestOpenTelemetry_FilterSkipsTracing(t *testing.T) {
	tp, rec := newRecordingProvider(t)
	called := false
	h := OpenTelemetry(
		WithTracerProvider(tp),
		WithRequestFilter(func(r *http.Request) bool { return r.URL.Path != "/healthz" }),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if SpanFromContext(r.Context()) != nil {
			t.Error("filtered request carries a span")
		}
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if !called {
		t.Fatal("next handler not called")
	}
	if n := len(rec.Ended()); n != 0 {
		t.Errorf("ended spans = %d, want 0", n)
	}
}

func TestSpanFromContext_NoSpan(t *testing.T) {
	if span := SpanFromContext(context.Background()); span != nil {
		t.Errorf("SpanFromContext(background) = %v, want nil", span)
	}
}
