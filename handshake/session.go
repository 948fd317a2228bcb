// Package handshake drives one collector and one verifier through a
// complete connection lifecycle, routing their messages through the
// exchange engine until the verifier recommends an access decision.
package handshake

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/machinefabric/tncharness-go/exchange"
	"github.com/machinefabric/tncharness-go/plugin"
	"github.com/machinefabric/tncharness-go/tnc"
	"github.com/machinefabric/tncharness-go/wire"
)

// Tracer receives one frame per protocol call
type Tracer interface {
	Record(frame *wire.Frame) error
}

// Options configures a session
type Options struct {
	ConnectionID tnc.ConnectionID
	CollectorID  tnc.LocalID
	VerifierID   tnc.LocalID
	Limits       exchange.Limits
	// MaxRoundTrips bounds collector/verifier round trips; 0 is unbounded
	MaxRoundTrips int
	// HealthType is used when a health message falls back to basic receive
	HealthType tnc.MessageType
	// TraceID identifies the session in logs and transcripts; zero picks a random one
	TraceID uuid.UUID
	Logger  logrus.FieldLogger
	Metrics *exchange.Metrics
	Tracer  Tracer
}

// side is the harness's view of one plugin
type side struct {
	kind         tnc.Side
	id           tnc.LocalID
	caps         plugin.Capabilities
	registration exchange.Registration
	initialized  bool
}

func (s *side) destination() exchange.Destination {
	return exchange.Destination{
		Side:         s.kind,
		LocalID:      s.id,
		Capabilities: s.caps,
		Registration: &s.registration,
	}
}

// Session owns all state of one connection: the message queue, both
// plugins' registrations and the recommendation reported so far.
// A Session is not safe for concurrent use.
type Session struct {
	opts    Options
	traceID uuid.UUID
	log     logrus.FieldLogger
	metrics *exchange.Metrics
	tracer  Tracer

	queue     *exchange.Queue
	router    *exchange.Router
	collector side
	verifier  side

	recommendation tnc.Recommendation
	provided       bool
	retryRequested bool
	closed         bool
	traceFailed    bool
}

// NewSession creates a session
func NewSession(opts Options) *Session {
	traceID := opts.TraceID
	if traceID == uuid.Nil {
		traceID = uuid.New()
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithFields(logrus.Fields{
		"trace_id":      traceID.String(),
		"connection_id": opts.ConnectionID,
	})

	queue := exchange.NewQueue(opts.Limits)
	queue.SetMetrics(opts.Metrics)
	router := exchange.NewRouter(log, opts.Metrics)
	router.HealthType = opts.HealthType

	return &Session{
		opts:           opts,
		traceID:        traceID,
		log:            log,
		metrics:        opts.Metrics,
		tracer:         opts.Tracer,
		queue:          queue,
		router:         router,
		collector:      side{kind: tnc.SideCollector, id: opts.CollectorID},
		verifier:       side{kind: tnc.SideVerifier, id: opts.VerifierID},
		recommendation: tnc.DefaultRecommendation(),
	}
}

// TraceID returns the session's trace id
func (s *Session) TraceID() uuid.UUID {
	return s.traceID
}

// Queue exposes the session's message queue
func (s *Session) Queue() *exchange.Queue {
	return s.queue
}

// Recommendation returns the last recommendation and whether the verifier
// provided one
func (s *Session) Recommendation() (tnc.Recommendation, bool) {
	return s.recommendation, s.provided
}

// RetryRequested reports whether either plugin asked for a handshake retry
func (s *Session) RetryRequested() bool {
	return s.retryRequested
}

// Registration returns the registration held for side k
func (s *Session) Registration(k tnc.Side) *exchange.Registration {
	return &s.sideOf(k).registration
}

func (s *Session) sideOf(k tnc.Side) *side {
	if k == tnc.SideVerifier {
		return &s.verifier
	}
	return &s.collector
}

func (s *Session) sideLog(sd *side) logrus.FieldLogger {
	return s.log.WithFields(logrus.Fields{"side": sd.kind.String(), "plugin_id": sd.id})
}

// trace records a frame; a failing tracer is reported once and then ignored
func (s *Session) trace(frame *wire.Frame) {
	if s.tracer == nil || s.traceFailed {
		return
	}
	frame.SetTraceID(s.traceID)
	if err := s.tracer.Record(frame); err != nil {
		s.traceFailed = true
		s.log.WithError(err).Warn("transcript recording failed, disabling")
	}
}

func (s *Session) call(sd *side, kind wire.Kind) *wire.Frame {
	return wire.NewCall(kind, sd.kind, sd.id, s.opts.ConnectionID)
}

// release drops everything the session holds
func (s *Session) release() {
	s.queue.Reset()
	s.collector.registration.Release()
	s.verifier.registration.Release()
	s.closed = true
}
