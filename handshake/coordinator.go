package handshake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/machinefabric/tncharness-go/plugin"
	"github.com/machinefabric/tncharness-go/tnc"
	"github.com/machinefabric/tncharness-go/wire"
)

// Phase is the coordinator's position in the connection lifecycle
type Phase int

const (
	PhaseCreated Phase = iota
	PhaseHandshaking
	PhaseResolved
	PhaseDeleted
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseHandshaking:
		return "handshaking"
	case PhaseResolved:
		return "resolved"
	case PhaseDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// Result describes a finished connection
type Result struct {
	TraceID      uuid.UUID
	ConnectionID tnc.ConnectionID
	// State is the resolved access state, or StateDelete when the
	// connection ended without one
	State          tnc.ConnectionState
	Resolved       bool
	Recommendation tnc.Recommendation
	// Solicited is set when the recommendation had to be asked for
	Solicited      bool
	RetryRequested bool
	Rounds         int
	Delivered      int
	Dropped        int
}

// Coordinator runs the handshake state machine for one collector and one
// verifier
type Coordinator struct {
	session   *Session
	collector plugin.Collector
	verifier  plugin.Verifier
	phase     Phase
}

// NewCoordinator creates a coordinator with a fresh session
func NewCoordinator(collector plugin.Collector, verifier plugin.Verifier, opts Options) *Coordinator {
	return &Coordinator{
		session:   NewSession(opts),
		collector: collector,
		verifier:  verifier,
		phase:     PhaseCreated,
	}
}

// Session returns the coordinator's session
func (c *Coordinator) Session() *Session {
	return c.session
}

// Phase returns the current lifecycle phase
func (c *Coordinator) Phase() Phase {
	return c.phase
}

// Run drives the connection from creation to deletion:
//
//  1. initialize and bind both plugins
//  2. notify Create and Handshake, begin the handshake on the collector
//  3. alternate delivery rounds verifier, collector until the queue drains
//  4. solicit a recommendation unless one was provided, notify the result
//  5. notify Delete and terminate both plugins
//
// Local ids at or above PluginIDAny are rejected before any plugin is
// called. Initialization failures abort before any notification. A failed
// solicitation or a canceled context ends the connection unresolved; the
// plugins are still notified of Delete and terminated. The returned Result
// is never nil.
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	s := c.session
	res := &Result{TraceID: s.traceID, ConnectionID: s.opts.ConnectionID, State: tnc.StateCreate}
	if c.phase != PhaseCreated {
		return res, tnc.NewError(tnc.ErrorTypeIllegalOperation, "handshake already ran")
	}
	if err := ctx.Err(); err != nil {
		return res, tnc.Errorf(tnc.ErrorTypeCanceled, "before start: %v", err)
	}
	if err := c.checkIDs(); err != nil {
		return res, err
	}

	s.trace(wire.NewHello(s.traceID, c.helloMeta()))

	if err := c.initialize(); err != nil {
		s.log.WithError(err).Error("plugin initialization failed")
		c.terminate()
		c.finish(res, err)
		return res, err
	}

	c.notify(tnc.StateCreate)
	c.notify(tnc.StateHandshake)
	c.phase = PhaseHandshaking
	res.State = tnc.StateHandshake

	s.queue.Clear()
	c.beginHandshake()
	c.batchEnding(&s.collector)

	runErr := c.exchange(ctx, res)
	s.queue.Clear()

	if runErr == nil {
		rec, err := c.recommend(res)
		if err != nil {
			runErr = err
		} else {
			res.Recommendation = rec
			res.State = rec.State()
			res.Resolved = true
			c.phase = PhaseResolved
			s.log.WithFields(logrus.Fields{
				"action":     rec.Action.String(),
				"evaluation": rec.Evaluation.String(),
				"state":      res.State.String(),
			}).Info("recommendation resolved")
			c.notify(res.State)
		}
	}
	if runErr != nil {
		s.log.WithError(runErr).Error("handshake ended without an access decision")
	}

	c.notify(tnc.StateDelete)
	c.terminate()
	c.finish(res, runErr)
	return res, runErr
}

// checkIDs rejects local ids that collide with the any-plugin sentinel
func (c *Coordinator) checkIDs() error {
	o := c.session.opts
	if o.CollectorID >= tnc.PluginIDAny || o.VerifierID >= tnc.PluginIDAny {
		return tnc.Errorf(tnc.ErrorTypeInvalidParameter, "plugin ids must be below %#x, got collector %#x verifier %#x",
			uint32(tnc.PluginIDAny), uint32(o.CollectorID), uint32(o.VerifierID))
	}
	return nil
}

func (c *Coordinator) helloMeta() map[string]uint64 {
	o := c.session.opts
	return map[string]uint64{
		"interface_version": uint64(tnc.Version1),
		"collector_id":      uint64(o.CollectorID),
		"verifier_id":       uint64(o.VerifierID),
		"max_messages":      uint64(o.Limits.MaxMessages),
		"max_message_size":  uint64(o.Limits.MaxMessageSize),
		"max_active_bytes":  uint64(o.Limits.MaxActiveBytes),
		"max_round_trips":   uint64(o.MaxRoundTrips),
	}
}

func (c *Coordinator) initialize() error {
	s := c.session
	if err := c.initPlugin(&s.collector, c.collector); err != nil {
		return err
	}
	if b, ok := c.collector.(plugin.CollectorBinder); ok {
		h := &host{s: s, sd: &s.collector}
		if err := c.bind(&s.collector, func() error { return b.BindCollectorHost(s.collector.id, h) }); err != nil {
			return err
		}
	}

	if err := c.initPlugin(&s.verifier, c.verifier); err != nil {
		return err
	}
	if b, ok := c.verifier.(plugin.VerifierBinder); ok {
		h := &verifierHost{host{s: s, sd: &s.verifier}}
		if err := c.bind(&s.verifier, func() error { return b.BindVerifierHost(s.verifier.id, h) }); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) initPlugin(sd *side, p plugin.Plugin) error {
	s := c.session
	frame := s.call(sd, wire.KindInitialize)
	frame.MinVersion = tnc.Version1
	frame.MaxVersion = tnc.Version1

	var version tnc.Version
	err := s.invoke(sd, frame, logrus.Fields{"min_version": tnc.Version1, "max_version": tnc.Version1}, func() error {
		var err error
		version, err = p.Initialize(sd.id, tnc.Version1, tnc.Version1)
		return err
	})

	switch {
	case err != nil && errors.Is(err, tnc.ErrVersionMismatch):
		return err
	case err != nil:
		return tnc.Errorf(tnc.ErrorTypeInitialization, "%s %d: %v", sd.kind, sd.id, err)
	case version < tnc.Version1 || version > tnc.Version1:
		sd.initialized = true
		return tnc.Errorf(tnc.ErrorTypeVersionMismatch, "%s %d negotiated version %d, supported %d..%d",
			sd.kind, sd.id, version, tnc.Version1, tnc.Version1)
	}

	sd.initialized = true
	sd.caps = s.instrument(sd, plugin.Resolve(p))
	s.sideLog(sd).WithFields(logrus.Fields{
		"version":      version,
		"capabilities": strings.Join(sd.caps.Names(), ","),
	}).Info("plugin initialized")
	return nil
}

func (c *Coordinator) bind(sd *side, fn func() error) error {
	frame := c.session.call(sd, wire.KindBindHost)
	if err := c.session.invoke(sd, frame, nil, fn); err != nil {
		return tnc.Errorf(tnc.ErrorTypeInitialization, "%s %d rejected host binding: %v", sd.kind, sd.id, err)
	}
	return nil
}

// pluginFailed logs and counts a non-fatal plugin error
func (c *Coordinator) pluginFailed(sd *side, kind wire.Kind, err error) {
	if err == nil {
		return
	}
	c.session.metrics.PluginError(sd.kind.String(), strings.ToLower(kind.String()))
	c.session.sideLog(sd).WithError(err).Warnf("> %s failed", kind)
}

func (c *Coordinator) notify(state tnc.ConnectionState) {
	s := c.session
	for _, sd := range []*side{&s.collector, &s.verifier} {
		if fn := sd.caps.NotifyConnectionChange; fn != nil {
			c.pluginFailed(sd, wire.KindNotifyConnectionChange, fn(sd.id, s.opts.ConnectionID, state))
		}
	}
}

func (c *Coordinator) batchEnding(sd *side) {
	if fn := sd.caps.BatchEnding; fn != nil {
		c.pluginFailed(sd, wire.KindBatchEnding, fn(sd.id, c.session.opts.ConnectionID))
	}
}

func (c *Coordinator) beginHandshake() {
	s := c.session
	sd := &s.collector
	err := s.invoke(sd, s.call(sd, wire.KindBeginHandshake), nil, func() error {
		return c.collector.BeginHandshake(sd.id, s.opts.ConnectionID)
	})
	c.pluginFailed(sd, wire.KindBeginHandshake, err)
}

// exchange alternates delivery rounds until no side has anything to say
func (c *Coordinator) exchange(ctx context.Context, res *Result) error {
	s := c.session
	for !s.queue.IsEmpty() {
		if err := ctx.Err(); err != nil {
			return tnc.Errorf(tnc.ErrorTypeCanceled, "after %d rounds: %v", res.Rounds, err)
		}
		if s.opts.MaxRoundTrips > 0 && res.Rounds >= s.opts.MaxRoundTrips {
			s.log.WithFields(logrus.Fields{
				"rounds":  res.Rounds,
				"pending": s.queue.ActiveCount(),
			}).Warn("max round trips reached, discarding pending messages")
			break
		}
		res.Rounds++
		s.metrics.Round()

		c.deliver(&s.verifier, res)
		if s.queue.IsEmpty() {
			break
		}
		c.deliver(&s.collector, res)
	}
	return nil
}

func (c *Coordinator) deliver(sd *side, res *Result) {
	s := c.session
	s.queue.Swap()
	report := s.router.Deliver(s.queue, sd.destination(), s.opts.ConnectionID)
	res.Delivered += report.Delivered()
	res.Dropped += report.Dropped()
	c.batchEnding(sd)
}

func (c *Coordinator) recommend(res *Result) (tnc.Recommendation, error) {
	s := c.session
	if rec, ok := s.Recommendation(); ok {
		return rec, nil
	}

	res.Solicited = true
	sd := &s.verifier
	err := s.invoke(sd, s.call(sd, wire.KindSolicitRecommendation), nil, func() error {
		return c.verifier.SolicitRecommendation(sd.id, s.opts.ConnectionID)
	})
	if err != nil {
		c.pluginFailed(sd, wire.KindSolicitRecommendation, err)
		return tnc.DefaultRecommendation(), tnc.Errorf(tnc.ErrorTypeRecommendationFailure, "%s %d: %v", sd.kind, sd.id, err)
	}

	rec, _ := s.Recommendation()
	return rec, nil
}

func (c *Coordinator) terminate() {
	s := c.session
	for _, sd := range []*side{&s.collector, &s.verifier} {
		if !sd.initialized {
			continue
		}
		var p plugin.Plugin = c.collector
		if sd.kind == tnc.SideVerifier {
			p = c.verifier
		}
		err := s.invoke(sd, s.call(sd, wire.KindTerminate), nil, func() error {
			return p.Terminate(sd.id)
		})
		c.pluginFailed(sd, wire.KindTerminate, err)
		sd.initialized = false
	}
}

// finish records the outcome and releases the session
func (c *Coordinator) finish(res *Result, err error) {
	s := c.session
	if !res.Resolved {
		res.State = tnc.StateDelete
	}
	res.RetryRequested = s.retryRequested

	s.trace(wire.NewResult(s.opts.ConnectionID, res.State, res.Recommendation, err))
	s.metrics.Handshake(outcomeLabel(res, err))
	s.release()
	c.phase = PhaseDeleted

	s.log.WithFields(logrus.Fields{
		"state":     res.State.String(),
		"resolved":  res.Resolved,
		"rounds":    res.Rounds,
		"delivered": res.Delivered,
		"dropped":   res.Dropped,
	}).Info("connection deleted")
}

func outcomeLabel(res *Result, err error) string {
	if res.Resolved {
		switch res.State {
		case tnc.StateAccessAllowed:
			return "allowed"
		case tnc.StateAccessIsolated:
			return "isolated"
		default:
			return "denied"
		}
	}
	switch {
	case errors.Is(err, tnc.ErrVersionMismatch), errors.Is(err, tnc.ErrInitialization):
		return "init_failed"
	case errors.Is(err, tnc.ErrCanceled):
		return "canceled"
	default:
		return "unresolved"
	}
}
