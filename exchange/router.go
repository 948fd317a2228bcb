package exchange

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/machinefabric/tncharness-go/plugin"
	"github.com/machinefabric/tncharness-go/tnc"
)

// Path is the receive call a message was delivered through
type Path int

const (
	PathNone Path = iota
	PathBasic
	PathHealth
	PathHealthAsBasic
	PathExtended
	PathExtendedAsBasic
)

func (p Path) String() string {
	switch p {
	case PathNone:
		return "none"
	case PathBasic:
		return "basic"
	case PathHealth:
		return "health"
	case PathHealthAsBasic:
		return "health_as_basic"
	case PathExtended:
		return "extended"
	case PathExtendedAsBasic:
		return "extended_as_basic"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// DropReason explains why a message was not delivered
type DropReason int

const (
	DropNone DropReason = iota
	DropNotRegistered
	DropNoReceiver
	DropExclusiveMismatch
)

func (r DropReason) String() string {
	switch r {
	case DropNone:
		return "none"
	case DropNotRegistered:
		return "not_registered"
	case DropNoReceiver:
		return "no_receiver"
	case DropExclusiveMismatch:
		return "exclusive_mismatch"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// Destination is the plugin a snapshot is delivered to
type Destination struct {
	Side         tnc.Side
	LocalID      tnc.LocalID
	Capabilities plugin.Capabilities
	Registration *Registration
}

// Outcome records what happened to one snapshot message
type Outcome struct {
	Index    int
	Category Category
	Path     Path
	Drop     DropReason
	// Err is set when the receive call failed or no receive call exists
	Err error
	// Absent is set when the preferred receive call was missing and the
	// message fell back to basic receive
	Absent error
}

// Delivered reports whether a receive call was made
func (o Outcome) Delivered() bool {
	return o.Path != PathNone
}

// Report collects the outcomes of one delivery pass
type Report struct {
	Side       tnc.Side
	Generation uint64
	Outcomes   []Outcome
}

// Delivered counts messages handed to the plugin
func (r Report) Delivered() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Delivered() {
			n++
		}
	}
	return n
}

// Dropped counts messages not handed to the plugin
func (r Report) Dropped() int {
	return len(r.Outcomes) - r.Delivered()
}

// Router hands every snapshot message to a destination plugin through the
// first receive path the plugin supports:
//
//	basic:    basic receive, if the type is registered
//	health:   health receive; else basic receive with HealthType
//	extended: exclusive filter; then extended receive if the extended type is
//	          registered; else basic receive with the packed type
type Router struct {
	// HealthType is matched against basic registrations when a health
	// message falls back to basic receive
	HealthType tnc.MessageType

	log     logrus.FieldLogger
	metrics *Metrics
}

// NewRouter creates a router. A nil logger uses the logrus standard logger.
func NewRouter(log logrus.FieldLogger, metrics *Metrics) *Router {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Router{log: log, metrics: metrics}
}

// Deliver makes one pass over the queue snapshot, in order, handing each
// message to dst at most once. Plugin errors are recorded, never returned.
// Plugins may enqueue while Deliver runs; those messages go to the active
// generation and are not part of this pass.
func (r *Router) Deliver(q *Queue, dst Destination, cid tnc.ConnectionID) Report {
	n := q.Count()
	side := dst.Side.String()
	report := Report{Side: dst.Side, Generation: q.Generation(), Outcomes: make([]Outcome, 0, n)}
	r.metrics.batch(side, n)

	reg := dst.Registration
	if reg == nil {
		reg = &Registration{}
	}

	for i := 0; i < n; i++ {
		msg, ok := q.Get(i)
		if !ok {
			break
		}
		out := r.deliverOne(&msg, dst, reg, cid)
		out.Index = i
		out.Category = msg.Category
		r.record(side, dst, &msg, out)
		report.Outcomes = append(report.Outcomes, out)
	}
	return report
}

func (r *Router) deliverOne(m *Message, dst Destination, reg *Registration, cid tnc.ConnectionID) Outcome {
	caps := dst.Capabilities
	switch m.Category {
	case CategoryBasic:
		return r.deliverBasic(m.Payload, m.Type, dst, reg, cid, PathBasic)

	case CategoryHealth:
		if caps.ReceiveHealth != nil {
			return Outcome{Path: PathHealth, Err: caps.ReceiveHealth(dst.LocalID, cid, m.Payload)}
		}
		out := r.deliverBasic(m.Payload, r.HealthType, dst, reg, cid, PathHealthAsBasic)
		out.Absent = tnc.Errorf(tnc.ErrorTypeCapabilityAbsent, "%s %d has no health receive call", dst.Side, dst.LocalID)
		return out

	case CategoryExtended:
		if m.Flags.Exclusive() && (m.DestID == tnc.PluginIDAny || m.DestID != dst.LocalID) {
			return Outcome{Drop: DropExclusiveMismatch}
		}
		if caps.ReceiveExtended != nil {
			if !reg.AcceptsExtended(m.Vendor, m.Subtype) {
				return Outcome{Drop: DropNotRegistered}
			}
			err := caps.ReceiveExtended(dst.LocalID, cid, m.Flags, m.Payload, m.Vendor, m.Subtype, m.SourceID, m.DestID)
			return Outcome{Path: PathExtended, Err: err}
		}
		out := r.deliverBasic(m.Payload, m.CombinedType(), dst, reg, cid, PathExtendedAsBasic)
		out.Absent = tnc.Errorf(tnc.ErrorTypeCapabilityAbsent, "%s %d has no extended receive call", dst.Side, dst.LocalID)
		return out
	}

	return Outcome{Drop: DropNoReceiver, Err: tnc.Errorf(tnc.ErrorTypeUnsupportedDeliveryPath, "message category %s", m.Category)}
}

func (r *Router) deliverBasic(payload []byte, mt tnc.MessageType, dst Destination, reg *Registration, cid tnc.ConnectionID, path Path) Outcome {
	if dst.Capabilities.ReceiveBasic == nil {
		return Outcome{
			Drop: DropNoReceiver,
			Err:  tnc.Errorf(tnc.ErrorTypeUnsupportedDeliveryPath, "%s %d has no receive call for type %s", dst.Side, dst.LocalID, mt),
		}
	}
	if !reg.AcceptsBasic(mt) {
		return Outcome{Drop: DropNotRegistered}
	}
	return Outcome{Path: path, Err: dst.Capabilities.ReceiveBasic(dst.LocalID, cid, payload, mt)}
}

func (r *Router) record(side string, dst Destination, m *Message, out Outcome) {
	fields := logrus.Fields{
		"side":      side,
		"plugin_id": dst.LocalID,
		"category":  m.Category.String(),
		"index":     out.Index,
		"bytes":     len(m.Payload),
	}
	if m.Category == CategoryExtended {
		fields["vendor_id"] = m.Vendor
		fields["subtype"] = m.Subtype
		fields["dest_id"] = m.DestID
	} else if m.Category == CategoryBasic {
		fields["message_type"] = m.Type.String()
	}
	entry := r.log.WithFields(fields)
	if out.Absent != nil {
		entry.WithError(out.Absent).Debug("falling back to basic receive")
	}

	if out.Delivered() {
		r.metrics.delivered(side, m.Category, out.Path)
		if out.Err != nil {
			r.metrics.PluginError(side, "receive_"+out.Path.String())
			entry.WithError(out.Err).WithField("path", out.Path.String()).Warn("receive call failed")
			return
		}
		entry.WithField("path", out.Path.String()).Debug("message delivered")
		return
	}

	r.metrics.dropped(side, m.Category, out.Drop)
	if out.Err != nil {
		entry.WithError(out.Err).Warn("message not delivered")
		return
	}
	entry.WithField("reason", out.Drop.String()).Debug("message not delivered")
}
