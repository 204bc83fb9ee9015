// Package telemetry tracks execution counters for a session and mirrors
// them into Prometheus metrics on a private registry, so an optional
// metrics listener can expose them without touching the session logic.
package telemetry

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxErrors bounds the retained error list.
const maxErrors = 50

// Metrics is the session's mutable telemetry state. All methods are
// safe for concurrent use.
type Metrics struct {
	mu sync.Mutex

	totalExecutions     int
	successful          int
	failed              int
	totalSteps          int
	parametersExtracted int
	byAutomation        map[string]int
	byWorkflow          map[string]int
	errors              []string

	reg            *prometheus.Registry
	promExecutions *prometheus.CounterVec
	promSteps      prometheus.Counter
	promParams     prometheus.Counter
	promAutomation *prometheus.CounterVec
	promWorkflow   *prometheus.CounterVec
}

// New returns Metrics with its own Prometheus registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		byAutomation: make(map[string]int),
		byWorkflow:   make(map[string]int),
		reg:          reg,
		promExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "executions_total",
			Help:      "Automation executions by outcome.",
		}, []string{"outcome"}),
		promSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "workflow_steps_total",
			Help:      "Workflow steps attempted.",
		}),
		promParams: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "parameters_extracted_total",
			Help:      "Requests for which parameter extraction produced a non-empty bag.",
		}),
		promAutomation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "automation_runs_total",
			Help:      "Runs per automation name.",
		}, []string{"automation"}),
		promWorkflow: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "workflow_runs_total",
			Help:      "Runs per workflow name.",
		}, []string{"workflow"}),
	}
	reg.MustRegister(m.promExecutions, m.promSteps, m.promParams, m.promAutomation, m.promWorkflow)
	return m
}

// RecordExecution counts one completed automation execution.
func (m *Metrics) RecordExecution(automation string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalExecutions++
	if success {
		m.successful++
		m.promExecutions.WithLabelValues("success").Inc()
	} else {
		m.failed++
		m.promExecutions.WithLabelValues("failed").Inc()
	}
	if automation != "" {
		m.byAutomation[automation]++
		m.promAutomation.WithLabelValues(automation).Inc()
	}
}

// RecordStep counts one attempted workflow step.
func (m *Metrics) RecordStep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalSteps++
	m.promSteps.Inc()
}

// RecordWorkflow counts one chain run under its workflow name.
func (m *Metrics) RecordWorkflow(name string) {
	if name == "" {
		name = "unnamed"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byWorkflow[name]++
	m.promWorkflow.WithLabelValues(name).Inc()
}

// RecordParameters counts a request whose extraction produced parameters.
func (m *Metrics) RecordParameters() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parametersExtracted++
	m.promParams.Inc()
}

// RecordError retains an error message, dropping the oldest past the cap.
func (m *Metrics) RecordError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
	if len(m.errors) > maxErrors {
		m.errors = m.errors[len(m.errors)-maxErrors:]
	}
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	TotalExecutions     int
	Successful          int
	Failed              int
	TotalSteps          int
	ParametersExtracted int
	ByAutomation        map[string]int
	ByWorkflow          map[string]int
	Errors              []string
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		TotalExecutions:     m.totalExecutions,
		Successful:          m.successful,
		Failed:              m.failed,
		TotalSteps:          m.totalSteps,
		ParametersExtracted: m.parametersExtracted,
		ByAutomation:        make(map[string]int, len(m.byAutomation)),
		ByWorkflow:          make(map[string]int, len(m.byWorkflow)),
		Errors:              append([]string(nil), m.errors...),
	}
	for k, v := range m.byAutomation {
		s.ByAutomation[k] = v
	}
	for k, v := range m.byWorkflow {
		s.ByWorkflow[k] = v
	}
	return s
}

// Reset zeroes the session counters. The Prometheus side is cumulative
// and intentionally left alone.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalExecutions = 0
	m.successful = 0
	m.failed = 0
	m.totalSteps = 0
	m.parametersExtracted = 0
	m.byAutomation = make(map[string]int)
	m.byWorkflow = make(map[string]int)
	m.errors = nil
}

// Insights derives human-readable observations from the counters.
func (m *Metrics) Insights() []string {
	s := m.Snapshot()
	var out []string
	if s.TotalExecutions == 0 {
		return []string{"no executions recorded this session"}
	}
	rate := float64(s.Successful) / float64(s.TotalExecutions) * 100
	out = append(out, fmt.Sprintf("success rate: %.0f%% (%d of %d)", rate, s.Successful, s.TotalExecutions))
	if name, count := topOf(s.ByAutomation); name != "" {
		out = append(out, fmt.Sprintf("most used automation: %s (%d runs)", name, count))
	}
	if name, count := topOf(s.ByWorkflow); name != "" {
		out = append(out, fmt.Sprintf("most run workflow: %s (%d runs)", name, count))
	}
	if s.TotalSteps > 0 {
		out = append(out, fmt.Sprintf("workflow steps attempted: %d", s.TotalSteps))
	}
	if len(s.Errors) > 0 {
		out = append(out, fmt.Sprintf("errors this session: %d (latest: %s)", len(s.Errors), s.Errors[len(s.Errors)-1]))
	}
	return out
}

// topOf picks the highest-count key, ties broken alphabetically so the
// output is stable.
func topOf(counts map[string]int) (string, int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best, bestCount := "", 0
	for _, k := range keys {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	return best, bestCount
}

// Handler serves the Prometheus exposition format for this session's
// private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
