package handshake

import (
	"github.com/sirupsen/logrus"

	"github.com/machinefabric/tncharness-go/exchange"
	"github.com/machinefabric/tncharness-go/plugin"
	"github.com/machinefabric/tncharness-go/tnc"
	"github.com/machinefabric/tncharness-go/wire"
)

// host serves the plugin.Host calls of one side
type host struct {
	s  *Session
	sd *side
}

// verifierHost adds ProvideRecommendation for the verifier side
type verifierHost struct {
	host
}

var (
	_ plugin.Host         = (*host)(nil)
	_ plugin.VerifierHost = (*verifierHost)(nil)
)

func (h *host) check(id tnc.LocalID) error {
	if h.s.closed {
		return tnc.NewError(tnc.ErrorTypeIllegalOperation, "session is closed")
	}
	if id != h.sd.id {
		return tnc.Errorf(tnc.ErrorTypeInvalidParameter, "unknown %s id %d", h.sd.kind, id)
	}
	return nil
}

// finish traces the frame with the call's result and logs it
func (h *host) finish(frame *wire.Frame, fields logrus.Fields, err error) error {
	frame.Result = tnc.ResultOf(err)
	h.s.trace(frame)

	entry := h.s.sideLog(h.sd).WithFields(fields)
	if err != nil {
		entry.WithError(err).Warnf("< %s rejected", frame.Kind)
		return err
	}
	entry.Infof("< %s", frame.Kind)
	return nil
}

func (h *host) ReportMessageTypes(id tnc.LocalID, types []tnc.MessageType) error {
	frame := h.s.call(h.sd, wire.KindReportMessageTypes)
	frame.Types = types
	err := h.check(id)
	if err == nil {
		h.sd.registration.ReportBasic(types)
	}
	return h.finish(frame, logrus.Fields{"count": len(types)}, err)
}

func (h *host) ReportMessageTypesLong(id tnc.LocalID, vendors []tnc.VendorID, subtypes []tnc.Subtype) error {
	frame := h.s.call(h.sd, wire.KindReportMessageTypesLong)
	frame.Vendors = vendors
	frame.Subtypes = subtypes
	err := h.check(id)
	if err == nil {
		err = h.sd.registration.ReportExtended(vendors, subtypes)
	}
	return h.finish(frame, logrus.Fields{"count": len(vendors)}, err)
}

func (h *host) SendMessage(id tnc.LocalID, cid tnc.ConnectionID, payload []byte, mt tnc.MessageType) error {
	frame := h.s.call(h.sd, wire.KindSendMessage)
	frame.MessageType = mt
	frame.Payload = payload
	err := h.check(id)
	if err == nil {
		err = h.s.queue.Enqueue(exchange.NewBasic(mt, payload))
	}
	return h.finish(frame, logrus.Fields{"message_type": mt.String(), "bytes": len(payload)}, err)
}

func (h *host) SendHealthMessage(id tnc.LocalID, cid tnc.ConnectionID, payload []byte) error {
	frame := h.s.call(h.sd, wire.KindSendHealthMessage)
	frame.Payload = payload
	err := h.check(id)
	if err == nil {
		err = h.s.queue.Enqueue(exchange.NewHealth(payload))
	}
	return h.finish(frame, logrus.Fields{"bytes": len(payload)}, err)
}

func (h *host) SendMessageLong(id tnc.LocalID, cid tnc.ConnectionID, flags tnc.Flags, payload []byte,
	vendor tnc.VendorID, subtype tnc.Subtype, dest tnc.LocalID) error {
	frame := h.s.call(h.sd, wire.KindSendMessageLong)
	frame.Flags = flags
	frame.Payload = payload
	frame.VendorID = vendor
	frame.Subtype = subtype
	frame.SourceID = id
	frame.DestID = dest
	err := h.check(id)
	if err == nil {
		err = h.s.queue.Enqueue(exchange.NewExtended(flags, vendor, subtype, payload, id, dest))
	}
	fields := logrus.Fields{
		"vendor_id": vendor,
		"subtype":   subtype,
		"dest_id":   dest,
		"exclusive": flags.Exclusive(),
		"bytes":     len(payload),
	}
	return h.finish(frame, fields, err)
}

// RequestHandshakeRetry is accepted and recorded; the harness runs a single
// handshake per session and never retries.
func (h *host) RequestHandshakeRetry(id tnc.LocalID, cid tnc.ConnectionID, reason tnc.RetryReason) error {
	frame := h.s.call(h.sd, wire.KindRequestHandshakeRetry)
	frame.Reason = reason
	err := h.check(id)
	if err == nil {
		h.s.retryRequested = true
	}
	return h.finish(frame, logrus.Fields{"reason": reason}, err)
}

func (h *verifierHost) ProvideRecommendation(id tnc.LocalID, cid tnc.ConnectionID, action tnc.Action, evaluation tnc.Evaluation) error {
	frame := h.s.call(h.sd, wire.KindProvideRecommendation)
	frame.Action = action
	frame.Evaluation = evaluation
	err := h.check(id)
	if err == nil {
		h.s.recommendation = tnc.Recommendation{Action: action, Evaluation: evaluation}
		h.s.provided = true
	}
	return h.finish(frame, logrus.Fields{"action": action.String(), "evaluation": evaluation.String()}, err)
}
