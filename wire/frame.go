// Package wire encodes IF-IMC/IF-IMV calls as length-prefixed CBOR frames.
//
// A transcript is a HELLO frame followed by one frame per protocol call, in
// call order, and a closing RESULT frame. Frames carry enough information to
// replay or reimplement the exchange over a real transport.
package wire

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/machinefabric/tncharness-go/tnc"
)

// ProtocolVersion of the frame layout
const ProtocolVersion uint8 = 1

// Default maximum frame size (3.5 MB)
const DefaultMaxFrame int = 3_670_016

// Hard limit on frame size (16 MB)
const MaxFrameHardLimit int = 16_777_216

// Kind is the protocol call a frame records
type Kind uint8

const (
	KindHello                  Kind = 0
	KindInitialize             Kind = 1
	KindBindHost               Kind = 2
	KindNotifyConnectionChange Kind = 3
	KindBeginHandshake         Kind = 4
	KindReceiveMessage         Kind = 5
	KindReceiveHealthMessage   Kind = 6
	KindReceiveMessageLong     Kind = 7
	KindBatchEnding            Kind = 8
	KindSolicitRecommendation  Kind = 9
	KindTerminate              Kind = 10
	KindReportMessageTypes     Kind = 11
	KindReportMessageTypesLong Kind = 12
	KindSendMessage            Kind = 13
	KindSendHealthMessage      Kind = 14
	KindSendMessageLong        Kind = 15
	KindRequestHandshakeRetry  Kind = 16
	KindProvideRecommendation  Kind = 17
	KindResult                 Kind = 18
)

var kindNames = map[Kind]string{
	KindHello:                  "HELLO",
	KindInitialize:             "INITIALIZE",
	KindBindHost:               "BIND_HOST",
	KindNotifyConnectionChange: "NOTIFY_CONNECTION_CHANGE",
	KindBeginHandshake:         "BEGIN_HANDSHAKE",
	KindReceiveMessage:         "RECEIVE_MESSAGE",
	KindReceiveHealthMessage:   "RECEIVE_HEALTH_MESSAGE",
	KindReceiveMessageLong:     "RECEIVE_MESSAGE_LONG",
	KindBatchEnding:            "BATCH_ENDING",
	KindSolicitRecommendation:  "SOLICIT_RECOMMENDATION",
	KindTerminate:              "TERMINATE",
	KindReportMessageTypes:     "REPORT_MESSAGE_TYPES",
	KindReportMessageTypesLong: "REPORT_MESSAGE_TYPES_LONG",
	KindSendMessage:            "SEND_MESSAGE",
	KindSendHealthMessage:      "SEND_HEALTH_MESSAGE",
	KindSendMessageLong:        "SEND_MESSAGE_LONG",
	KindRequestHandshakeRetry:  "REQUEST_HANDSHAKE_RETRY",
	KindProvideRecommendation:  "PROVIDE_RECOMMENDATION",
	KindResult:                 "RESULT",
}

// String returns the kind name
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
}

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// FromPlugin reports whether the call goes from a plugin to the harness
func (k Kind) FromPlugin() bool {
	return k >= KindReportMessageTypes && k <= KindProvideRecommendation
}

// Frame is one recorded call. Fields that do not apply to Kind are left zero.
type Frame struct {
	Version      uint8               `cbor:"version"`
	Kind         Kind                `cbor:"kind"`
	Seq          uint64              `cbor:"seq"`
	TraceID      []byte              `cbor:"trace_id,omitempty"`
	Side         string              `cbor:"side,omitempty"`
	LocalID      tnc.LocalID         `cbor:"local_id,omitempty"`
	ConnectionID tnc.ConnectionID    `cbor:"connection_id,omitempty"`
	State        tnc.ConnectionState `cbor:"state,omitempty"`
	MessageType  tnc.MessageType     `cbor:"message_type,omitempty"`
	Flags        tnc.Flags           `cbor:"flags,omitempty"`
	VendorID     tnc.VendorID        `cbor:"vendor_id,omitempty"`
	Subtype      tnc.Subtype         `cbor:"subtype,omitempty"`
	SourceID     tnc.LocalID         `cbor:"source_id,omitempty"`
	DestID       tnc.LocalID         `cbor:"dest_id,omitempty"`
	Action       tnc.Action          `cbor:"action,omitempty"`
	Evaluation   tnc.Evaluation      `cbor:"evaluation,omitempty"`
	Reason       tnc.RetryReason     `cbor:"reason,omitempty"`
	MinVersion   tnc.Version         `cbor:"min_version,omitempty"`
	MaxVersion   tnc.Version         `cbor:"max_version,omitempty"`
	Types        []tnc.MessageType   `cbor:"types,omitempty"`
	Vendors      []tnc.VendorID      `cbor:"vendors,omitempty"`
	Subtypes     []tnc.Subtype       `cbor:"subtypes,omitempty"`
	Payload      []byte              `cbor:"payload,omitempty"`
	Result       tnc.Result          `cbor:"result,omitempty"`
	Message      string              `cbor:"message,omitempty"`
	Meta         map[string]uint64   `cbor:"meta,omitempty"`
}

func newFrame(kind Kind) *Frame {
	return &Frame{Version: ProtocolVersion, Kind: kind}
}

// NewHello creates the transcript header frame
func NewHello(traceID uuid.UUID, meta map[string]uint64) *Frame {
	f := newFrame(KindHello)
	f.TraceID = traceIDBytes(traceID)
	f.Meta = meta
	return f
}

// NewCall creates a frame for a call made by or to the plugin on side
func NewCall(kind Kind, side tnc.Side, id tnc.LocalID, cid tnc.ConnectionID) *Frame {
	f := newFrame(kind)
	f.Side = side.String()
	f.LocalID = id
	f.ConnectionID = cid
	return f
}

// NewResult creates the closing frame of a transcript
func NewResult(cid tnc.ConnectionID, state tnc.ConnectionState, rec tnc.Recommendation, err error) *Frame {
	f := newFrame(KindResult)
	f.ConnectionID = cid
	f.State = state
	f.Action = rec.Action
	f.Evaluation = rec.Evaluation
	f.Result = tnc.ResultOf(err)
	if err != nil {
		f.Message = err.Error()
	}
	return f
}

// SetTraceID stamps the frame with a trace id
func (f *Frame) SetTraceID(id uuid.UUID) {
	f.TraceID = traceIDBytes(id)
}

// TraceUUID returns the frame's trace id
func (f *Frame) TraceUUID() (uuid.UUID, error) {
	if len(f.TraceID) != 16 {
		return uuid.Nil, errors.New("trace id must be exactly 16 bytes")
	}
	return uuid.FromBytes(f.TraceID)
}

func traceIDBytes(id uuid.UUID) []byte {
	b, _ := id.MarshalBinary()
	return b
}
