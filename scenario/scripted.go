package scenario

import (
	"errors"
	"fmt"

	"github.com/machinefabric/tncharness-go/exchange"
	"github.com/machinefabric/tncharness-go/plugin"
	"github.com/machinefabric/tncharness-go/tnc"
)

var errBindRefused = errors.New("scripted plugin refuses host binding")

var defaultCapabilities = []string{"connection_events", "basic", "batch_ending"}

// scripted is the behavior shared by both scripted roles
type scripted struct {
	spec     PluginSpec
	host     plugin.Host
	verifier plugin.VerifierHost

	states   []tnc.ConnectionState
	received []exchange.Message
}

func (p *scripted) Initialize(id tnc.LocalID, min, max tnc.Version) (tnc.Version, error) {
	if p.spec.Versions == nil {
		return tnc.Version1, nil
	}
	lo, hi := tnc.Version(p.spec.Versions.Min), tnc.Version(p.spec.Versions.Max)
	if lo < min {
		lo = min
	}
	if hi > max {
		hi = max
	}
	if lo > hi {
		return 0, tnc.Errorf(tnc.ErrorTypeVersionMismatch, "plugin supports %d..%d, harness offers %d..%d",
			p.spec.Versions.Min, p.spec.Versions.Max, min, max)
	}
	return hi, nil
}

func (p *scripted) Terminate(tnc.LocalID) error {
	p.host = nil
	p.verifier = nil
	return nil
}

func (p *scripted) bind(id tnc.LocalID, h plugin.Host) error {
	if p.spec.FailBind {
		return errBindRefused
	}
	p.host = h
	if len(p.spec.BasicTypes) > 0 {
		types := make([]tnc.MessageType, len(p.spec.BasicTypes))
		for i, t := range p.spec.BasicTypes {
			types[i] = tnc.MessageType(t)
		}
		if err := h.ReportMessageTypes(id, types); err != nil {
			return err
		}
	}
	if len(p.spec.ExtendedTypes) > 0 {
		vendors := make([]tnc.VendorID, len(p.spec.ExtendedTypes))
		subtypes := make([]tnc.Subtype, len(p.spec.ExtendedTypes))
		for i, e := range p.spec.ExtendedTypes {
			vendors[i] = tnc.VendorID(e.Vendor)
			subtypes[i] = tnc.Subtype(e.Subtype)
		}
		if err := h.ReportMessageTypesLong(id, vendors, subtypes); err != nil {
			return err
		}
	}
	return nil
}

// Capabilities exposes exactly the slots the scenario lists
func (p *scripted) Capabilities() plugin.Capabilities {
	names := p.spec.Capabilities
	if names == nil {
		names = defaultCapabilities
	}

	var caps plugin.Capabilities
	for _, name := range names {
		switch name {
		case "connection_events":
			caps.NotifyConnectionChange = p.notify
		case "basic":
			caps.ReceiveBasic = p.receiveBasic
		case "health":
			caps.ReceiveHealth = p.receiveHealth
		case "extended":
			caps.ReceiveExtended = p.receiveExtended
		case "batch_ending":
			caps.BatchEnding = func(tnc.LocalID, tnc.ConnectionID) error { return nil }
		}
	}
	return caps
}

// States returns the connection states the plugin was notified of
func (p *scripted) States() []tnc.ConnectionState {
	return p.states
}

// Received returns every message handed to the plugin
func (p *scripted) Received() []exchange.Message {
	return p.received
}

func (p *scripted) notify(_ tnc.LocalID, _ tnc.ConnectionID, state tnc.ConnectionState) error {
	p.states = append(p.states, state)
	return nil
}

func (p *scripted) receiveBasic(id tnc.LocalID, cid tnc.ConnectionID, payload []byte, mt tnc.MessageType) error {
	return p.react(id, cid, exchange.NewBasic(mt, payload))
}

func (p *scripted) receiveHealth(id tnc.LocalID, cid tnc.ConnectionID, payload []byte) error {
	return p.react(id, cid, exchange.NewHealth(payload))
}

func (p *scripted) receiveExtended(id tnc.LocalID, cid tnc.ConnectionID, flags tnc.Flags, payload []byte,
	vendor tnc.VendorID, subtype tnc.Subtype, source, dest tnc.LocalID) error {
	return p.react(id, cid, exchange.NewExtended(flags, vendor, subtype, payload, source, dest))
}

// react runs the first rule matching msg
func (p *scripted) react(id tnc.LocalID, cid tnc.ConnectionID, msg exchange.Message) error {
	msg.Payload = append([]byte(nil), msg.Payload...)
	p.received = append(p.received, msg)

	for i := range p.spec.Rules {
		rule := &p.spec.Rules[i]
		if !rule.Match.matches(msg) {
			continue
		}
		if err := p.sendAll(id, cid, rule.Send); err != nil {
			return err
		}
		if rule.Recommend != nil {
			return p.recommend(id, cid, rule.Recommend)
		}
		return nil
	}
	return nil
}

func (p *scripted) recommend(id tnc.LocalID, cid tnc.ConnectionID, spec *RecommendSpec) error {
	if spec.Fail {
		return tnc.NewError(tnc.ErrorTypeRecommendationFailure, "scripted failure")
	}
	if p.verifier == nil {
		return tnc.NewError(tnc.ErrorTypeIllegalOperation, "only verifiers provide recommendations")
	}
	rec, err := spec.Recommendation()
	if err != nil {
		return err
	}
	return p.verifier.ProvideRecommendation(id, cid, rec.Action, rec.Evaluation)
}

func (p *scripted) sendAll(id tnc.LocalID, cid tnc.ConnectionID, sends []SendSpec) error {
	if len(sends) > 0 && p.host == nil {
		return tnc.NewError(tnc.ErrorTypeIllegalOperation, "plugin is not bound to a host")
	}
	for _, s := range sends {
		if err := p.send(id, cid, s); err != nil {
			return err
		}
	}
	return nil
}

func (p *scripted) send(id tnc.LocalID, cid tnc.ConnectionID, s SendSpec) error {
	payload := []byte(s.Payload)
	switch s.Category {
	case "basic":
		mt := tnc.MessageType(s.Type)
		if mt == 0 {
			mt = tnc.NewMessageType(tnc.VendorID(s.Vendor), tnc.Subtype(s.Subtype))
		}
		return p.host.SendMessage(id, cid, payload, mt)
	case "health":
		return p.host.SendHealthMessage(id, cid, payload)
	case "extended":
		flags := tnc.Flags(s.Flags)
		if s.Exclusive {
			flags |= tnc.FlagExclusive
		}
		return p.host.SendMessageLong(id, cid, flags, payload, tnc.VendorID(s.Vendor), tnc.Subtype(s.Subtype), tnc.LocalID(s.Dest))
	}
	return fmt.Errorf("unknown message category %q", s.Category)
}

// Collector is a scripted collector
type Collector struct {
	scripted
}

var (
	_ plugin.Collector       = (*Collector)(nil)
	_ plugin.CollectorBinder = (*Collector)(nil)
	_ plugin.Describer       = (*Collector)(nil)
)

func newCollector(spec PluginSpec) *Collector {
	return &Collector{scripted{spec: spec}}
}

// BindCollectorHost registers the scripted message types
func (c *Collector) BindCollectorHost(id tnc.LocalID, h plugin.Host) error {
	return c.bind(id, h)
}

// BeginHandshake sends the scripted opening messages
func (c *Collector) BeginHandshake(id tnc.LocalID, cid tnc.ConnectionID) error {
	return c.sendAll(id, cid, c.spec.OnBeginHandshake)
}

// Verifier is a scripted verifier
type Verifier struct {
	scripted
	solicited int
}

var (
	_ plugin.Verifier       = (*Verifier)(nil)
	_ plugin.VerifierBinder = (*Verifier)(nil)
	_ plugin.Describer      = (*Verifier)(nil)
)

func newVerifier(spec PluginSpec) *Verifier {
	return &Verifier{scripted: scripted{spec: spec}}
}

// BindVerifierHost registers the scripted message types
func (v *Verifier) BindVerifierHost(id tnc.LocalID, h plugin.VerifierHost) error {
	if err := v.bind(id, h); err != nil {
		return err
	}
	v.verifier = h
	return nil
}

// SolicitRecommendation provides the scripted recommendation, if any
func (v *Verifier) SolicitRecommendation(id tnc.LocalID, cid tnc.ConnectionID) error {
	v.solicited++
	if v.spec.Solicit == nil {
		return nil
	}
	return v.recommend(id, cid, v.spec.Solicit)
}

// Solicited returns how often a recommendation was asked for
func (v *Verifier) Solicited() int {
	return v.solicited
}
