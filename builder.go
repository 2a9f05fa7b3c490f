package goSession

import (
	"errors"
	"log/slog"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/session"
)

// Builder assembles a [Manager]. Configure it during initialization, call
// Build once, and discard it.
type Builder struct {
	config Config
	kv     session.KV

	authority Authority
	push      PushRegistrar
	auditSink AuditSink
	logger    *slog.Logger

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithKV sets the durable backend. The Manager takes ownership and closes it
// on [Manager.Close].
func (b *Builder) WithKV(kv session.KV) *Builder {
	b.kv = kv
	return b
}

// WithAuthority sets the remote session authority client.
func (b *Builder) WithAuthority(a Authority) *Builder {
	b.authority = a
	return b
}

// WithPushRegistrar sets the collaborator that registers device push tokens.
// Optional.
func (b *Builder) WithPushRegistrar(p PushRegistrar) *Builder {
	b.push = p
	return b
}

// WithAuditSink routes audit events to sink. Ignored when Config.Audit is
// disabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the operational logger. Defaults to a discarding logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the authority latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the wiring and returns a ready Manager. The Manager starts
// in the initializing state; call [Manager.RecoverSession] next.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.kv == nil {
		return nil, errors.New("session kv backend required")
	}
	if b.authority == nil {
		return nil, errors.New("authority required")
	}

	cfg := cloneConfig(b.config)
	if cfg.Audit.Enabled && cfg.Audit.BufferSize <= 0 {
		return nil, errors.New("audit.buffer_size must be > 0 when audit is enabled")
	}

	logger := b.logger
	if logger == nil {
		logger = discardLogger()
	}

	m := &Manager{
		config:       cfg,
		store:        session.NewStore(b.kv, cfg.Store.KeyPrefix),
		authority:    b.authority,
		push:         b.push,
		logger:       logger,
		metrics:      NewMetrics(cfg.Metrics),
		initializing: true,
		initCh:       make(chan struct{}),
		subs:         make(map[uint64]func(State)),
	}
	m.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	m.flows = m.buildFlows()

	b.built = true
	return m, nil
}
