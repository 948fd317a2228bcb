package handshake

import (
	"github.com/sirupsen/logrus"

	"github.com/machinefabric/tncharness-go/plugin"
	"github.com/machinefabric/tncharness-go/tnc"
	"github.com/machinefabric/tncharness-go/wire"
)

// invoke records and logs a harness-to-plugin call, then makes it
func (s *Session) invoke(sd *side, frame *wire.Frame, fields logrus.Fields, fn func() error) error {
	s.trace(frame)
	s.sideLog(sd).WithFields(fields).Infof("> %s", frame.Kind)
	return fn()
}

// instrument wraps every present capability slot so each call is traced
// and logged. Absent slots stay nil.
func (s *Session) instrument(sd *side, caps plugin.Capabilities) plugin.Capabilities {
	var out plugin.Capabilities

	if fn := caps.NotifyConnectionChange; fn != nil {
		out.NotifyConnectionChange = func(id tnc.LocalID, cid tnc.ConnectionID, state tnc.ConnectionState) error {
			frame := s.call(sd, wire.KindNotifyConnectionChange)
			frame.State = state
			return s.invoke(sd, frame, logrus.Fields{"state": state.String()}, func() error {
				return fn(id, cid, state)
			})
		}
	}

	if fn := caps.ReceiveBasic; fn != nil {
		out.ReceiveBasic = func(id tnc.LocalID, cid tnc.ConnectionID, payload []byte, mt tnc.MessageType) error {
			frame := s.call(sd, wire.KindReceiveMessage)
			frame.MessageType = mt
			frame.Payload = payload
			fields := logrus.Fields{"message_type": mt.String(), "bytes": len(payload)}
			return s.invoke(sd, frame, fields, func() error {
				return fn(id, cid, payload, mt)
			})
		}
	}

	if fn := caps.ReceiveHealth; fn != nil {
		out.ReceiveHealth = func(id tnc.LocalID, cid tnc.ConnectionID, payload []byte) error {
			frame := s.call(sd, wire.KindReceiveHealthMessage)
			frame.Payload = payload
			return s.invoke(sd, frame, logrus.Fields{"bytes": len(payload)}, func() error {
				return fn(id, cid, payload)
			})
		}
	}

	if fn := caps.ReceiveExtended; fn != nil {
		out.ReceiveExtended = func(id tnc.LocalID, cid tnc.ConnectionID, flags tnc.Flags, payload []byte,
			vendor tnc.VendorID, subtype tnc.Subtype, source, dest tnc.LocalID) error {
			frame := s.call(sd, wire.KindReceiveMessageLong)
			frame.Flags = flags
			frame.Payload = payload
			frame.VendorID = vendor
			frame.Subtype = subtype
			frame.SourceID = source
			frame.DestID = dest
			fields := logrus.Fields{
				"vendor_id": vendor,
				"subtype":   subtype,
				"source_id": source,
				"dest_id":   dest,
				"bytes":     len(payload),
			}
			return s.invoke(sd, frame, fields, func() error {
				return fn(id, cid, flags, payload, vendor, subtype, source, dest)
			})
		}
	}

	if fn := caps.BatchEnding; fn != nil {
		out.BatchEnding = func(id tnc.LocalID, cid tnc.ConnectionID) error {
			frame := s.call(sd, wire.KindBatchEnding)
			return s.invoke(sd, frame, nil, func() error {
				return fn(id, cid)
			})
		}
	}

	return out
}
