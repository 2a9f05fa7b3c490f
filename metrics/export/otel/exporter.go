package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Instrument names. Counters are "gosession.<operation>" with an outcome
// attribute, e.g. gosession.login{gosession.outcome="failure"}.
const (
	instrumentPrefix     = "gosession."
	latencyBucketName    = "gosession.authority.latency.bucket"
	latencyCountName     = "gosession.authority.latency.count"
	auditDroppedName     = "gosession.audit.dropped"
	outcomeKey           = attribute.Key("gosession.outcome")
	boundKey             = attribute.Key("le")
	operationDescription = "Session manager operations by outcome."
)

type metricsSource interface {
	MetricsSnapshot() goSession.MetricsSnapshot
	AuditDropped() uint64
}

// outcomeSlot is one counter slot observed on its operation's instrument.
type outcomeSlot struct {
	id    goSession.MetricID
	attrs metric.MeasurementOption
}

type operationCounter struct {
	instrument metric.Int64ObservableCounter
	slots      []outcomeSlot
}

// OTelExporter publishes session manager metrics as OTel observable
// instruments: one counter per operation keyed by outcome, and the authority
// latency histogram as a cumulative bucket gauge keyed by upper bound.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	operations   []operationCounter
	bounds       []metric.MeasurementOption
	buckets      metric.Int64ObservableGauge
	count        metric.Int64ObservableGauge
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments on meter that read from m.
func NewOTelExporter(meter metric.Meter, m *goSession.Manager) (*OTelExporter, error) {
	if m == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, m)
}

// NewOTelExporterFromSource registers instruments over any snapshot source.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var observables []metric.Observable

	byOperation := make(map[string]int)
	for _, def := range internaldefs.CounterDefs {
		idx, ok := byOperation[def.Operation]
		if !ok {
			name := instrumentPrefix + def.Operation
			ins, err := meter.Int64ObservableCounter(name,
				metric.WithDescription(operationDescription),
				metric.WithUnit("{operation}"),
			)
			if err != nil {
				return nil, fmt.Errorf("create observable counter %s: %w", name, err)
			}
			idx = len(e.operations)
			byOperation[def.Operation] = idx
			e.operations = append(e.operations, operationCounter{instrument: ins})
			observables = append(observables, ins)
		}
		e.operations[idx].slots = append(e.operations[idx].slots, outcomeSlot{
			id:    def.ID,
			attrs: metric.WithAttributes(outcomeKey.String(def.Outcome)),
		})
	}

	var err error
	e.buckets, err = meter.Int64ObservableGauge(latencyBucketName,
		metric.WithDescription("Cumulative count of authority calls at or below the le bound, in seconds."),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create latency bucket gauge: %w", err)
	}
	e.count, err = meter.Int64ObservableGauge(latencyCountName,
		metric.WithDescription("Total authority calls observed."),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create latency count gauge: %w", err)
	}
	for _, le := range internaldefs.HistogramBounds {
		e.bounds = append(e.bounds, metric.WithAttributes(boundKey.String(le)))
	}

	e.auditDropped, err = meter.Int64ObservableCounter(auditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	observables = append(observables, e.buckets, e.count, e.auditDropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

// observe reads one snapshot per collection so every instrument reports the
// same instant.
func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, op := range e.operations {
		for _, slot := range op.slots {
			o.ObserveInt64(op.instrument, int64(snapshot.Counters[slot.id]), slot.attrs)
		}
	}

	cumulative := internaldefs.CumulativeBuckets(
		internaldefs.NormalizeBuckets(snapshot.Histograms[goSession.MetricAuthorityLatency]),
	)
	for i, attrs := range e.bounds {
		o.ObserveInt64(e.buckets, int64(cumulative[i]), attrs)
	}
	o.ObserveInt64(e.count, int64(cumulative[len(cumulative)-1]))
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
