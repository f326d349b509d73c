// Package metrics exposes compile and completion counters to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/semlogic/llm"
	"github.com/c360studio/semlogic/logic"
)

const namespace = "semlogic"

// Metrics implements compiler.Observer.
type Metrics struct {
	compiles         *prometheus.CounterVec
	compileDuration  prometheus.Histogram
	completionCalls  *prometheus.CounterVec
	completionErrors *prometheus.CounterVec
	codeRepairs      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		compiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compiles_total",
			Help:      "Compiles by outcome.",
		}, []string{"outcome"}),
		compileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compile_duration_seconds",
			Help:      "Wall time of one compile.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		completionCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_calls_total",
			Help:      "Completion calls by compiler stage.",
		}, []string{"stage"}),
		completionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_errors_total",
			Help:      "Failed completion calls by compiler stage.",
		}, []string{"stage"}),
		codeRepairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "code_repairs_total",
			Help:      "Code repair attempts by whether the repaired code parsed.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.compiles, m.compileDuration, m.completionCalls, m.completionErrors, m.codeRepairs)
	return m
}

// CompileFinished implements compiler.Observer.
func (m *Metrics) CompileFinished(outcome string, duration time.Duration) {
	m.compiles.WithLabelValues(outcome).Inc()
	m.compileDuration.Observe(duration.Seconds())
}

// CodeGenerated implements compiler.Observer.
func (m *Metrics) CodeGenerated(block logic.CodeBlock) {
	if !block.Repaired {
		return
	}
	result := "invalid"
	if block.Valid {
		result = "valid"
	}
	m.codeRepairs.WithLabelValues(result).Inc()
}

// InstrumentCompleter counts every call made through next by the stage its
// context carries.
func (m *Metrics) InstrumentCompleter(next llm.Completer) llm.Completer {
	return llm.CompleterFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		stage := llm.GetTraceContext(ctx).Stage
		if stage == "" {
			stage = "unknown"
		}
		m.completionCalls.WithLabelValues(stage).Inc()

		out, err := next.Complete(ctx, prompt, maxTokens)
		if err != nil {
			m.completionErrors.WithLabelValues(stage).Inc()
		}
		return out, err
	})
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
