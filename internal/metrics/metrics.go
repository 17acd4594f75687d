// Package metrics exposes DID store activity as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/elastos/Elastos.DID.JS.SDK-sub002/pkg/storage"
)

var _ storage.Recorder = (*StoreMetrics)(nil)

// StoreMetrics implements storage.Recorder and counts password lockouts
// reported by the didstore layer.
type StoreMetrics struct {
	registry *prometheus.Registry

	OperationsTotal        *prometheus.CounterVec
	PasswordChangesTotal   *prometheus.CounterVec
	PasswordChangeDuration prometheus.Histogram
	ReEncryptedFiles       prometheus.Counter
	RecoveriesTotal        *prometheus.CounterVec
	PasswordFailuresTotal  *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *StoreMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &StoreMetrics{
		registry: reg,

		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "didstore_operations_total",
				Help: "Storage operations by name and result",
			},
			[]string{"op", "result"},
		),

		PasswordChangesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "didstore_password_changes_total",
				Help: "Store password changes by result",
			},
			[]string{"result"},
		),

		PasswordChangeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "didstore_password_change_duration_seconds",
				Help:    "Time spent re-encrypting and committing the journal",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
		),

		ReEncryptedFiles: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "didstore_reencrypted_files_total",
				Help: "Secret files rewritten by committed password changes",
			},
		),

		RecoveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "didstore_recoveries_total",
				Help: "Interrupted password changes handled on open",
			},
			[]string{"action"},
		),

		PasswordFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "didstore_password_failures_total",
				Help: "Rejected store passwords by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (m *StoreMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *StoreMetrics) ObserveOperation(op string, err error) {
	m.OperationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
}

func (m *StoreMetrics) ObservePasswordChange(result string, duration time.Duration, reEncrypted int) {
	m.PasswordChangesTotal.WithLabelValues(result).Inc()
	m.PasswordChangeDuration.Observe(duration.Seconds())
	if result == "ok" && reEncrypted > 0 {
		m.ReEncryptedFiles.Add(float64(reEncrypted))
	}
}

func (m *StoreMetrics) ObserveRecovery(action string) {
	m.RecoveriesTotal.WithLabelValues(action).Inc()
}

// ObservePasswordFailure records a wrong password ("wrong") or a rejected
// attempt while locked out ("locked").
func (m *StoreMetrics) ObservePasswordFailure(outcome string) {
	m.PasswordFailuresTotal.WithLabelValues(outcome).Inc()
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
func (m *StoreMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
