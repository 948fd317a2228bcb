package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machinefabric/tncharness-go/tnc"
)

func TestSendMessageLongFrameRoundtrip(t *testing.T) {
	original := NewCall(KindSendMessageLong, tnc.SideCollector, 0, 3)
	original.Flags = tnc.FlagExclusive
	original.VendorID = 0x1234
	original.Subtype = 9
	original.SourceID = 0
	original.DestID = 7
	original.Payload = []byte("payload")

	encoded, err := EncodeFrame(original)
	require.NoError(t, err)
	decoded, err := DecodeFrame(encoded)
	require.NoError(t, err)

	assert.Equal(t, KindSendMessageLong, decoded.Kind)
	assert.Equal(t, "collector", decoded.Side)
	assert.Equal(t, tnc.ConnectionID(3), decoded.ConnectionID)
	assert.True(t, decoded.Flags.Exclusive())
	assert.Equal(t, tnc.VendorID(0x1234), decoded.VendorID)
	assert.Equal(t, tnc.Subtype(9), decoded.Subtype)
	assert.Equal(t, tnc.LocalID(7), decoded.DestID)
	assert.Equal(t, []byte("payload"), decoded.Payload)
}

func TestReportMessageTypesLongFrameRoundtrip(t *testing.T) {
	original := NewCall(KindReportMessageTypesLong, tnc.SideVerifier, 2, 0)
	original.Vendors = []tnc.VendorID{tnc.VendorAny, 0x5597}
	original.Subtypes = []tnc.Subtype{1, tnc.SubtypeAny}

	encoded, err := EncodeFrame(original)
	require.NoError(t, err)
	decoded, err := DecodeFrame(encoded)
	require.NoError(t, err)

	assert.Equal(t, "verifier", decoded.Side)
	assert.Equal(t, tnc.LocalID(2), decoded.LocalID)
	assert.Equal(t, original.Vendors, decoded.Vendors)
	assert.Equal(t, original.Subtypes, decoded.Subtypes)
}

func TestResultFrameCarriesError(t *testing.T) {
	err := tnc.NewError(tnc.ErrorTypeRecommendationFailure, "verifier refused")
	f := NewResult(0, tnc.StateDelete, tnc.DefaultRecommendation(), err)

	encoded, encErr := EncodeFrame(f)
	require.NoError(t, encErr)
	decoded, decErr := DecodeFrame(encoded)
	require.NoError(t, decErr)

	assert.Equal(t, KindResult, decoded.Kind)
	assert.Equal(t, tnc.StateDelete, decoded.State)
	assert.Equal(t, tnc.ActionNoRecommendation, decoded.Action)
	assert.Equal(t, tnc.ResultOther, decoded.Result)
	assert.Equal(t, "recommendation failed: verifier refused", decoded.Message)
}

func TestDecodeRejectsUnknownVersionAndKind(t *testing.T) {
	f := NewCall(KindBatchEnding, tnc.SideCollector, 0, 0)
	f.Version = 9
	_, err := EncodeFrame(f)
	require.NoError(t, err)
	encoded, _ := EncodeFrame(f)
	_, err = DecodeFrame(encoded)
	assert.Error(t, err)

	bad := &Frame{Version: ProtocolVersion, Kind: 200}
	_, err = EncodeFrame(bad)
	assert.Error(t, err)
}

func TestKindNames(t *testing.T) {
	assert.Equal(t, "HELLO", KindHello.String())
	assert.Equal(t, "SEND_MESSAGE_LONG", KindSendMessageLong.String())
	assert.Equal(t, "UNKNOWN(99)", Kind(99).String())
	assert.True(t, KindProvideRecommendation.FromPlugin())
	assert.False(t, KindReceiveMessage.FromPlugin())
}

func TestFrameRoundtripOverStream(t *testing.T) {
	var buf bytes.Buffer

	f1 := NewCall(KindBeginHandshake, tnc.SideCollector, 0, 0)
	f2 := NewCall(KindSendMessage, tnc.SideCollector, 0, 0)
	f2.MessageType = tnc.NewMessageType(tnc.VendorTCGNew, 254)
	f2.Payload = []byte("OK\x00")

	require.NoError(t, writeFrame(&buf, f1, DefaultMaxFrame))
	require.NoError(t, writeFrame(&buf, f2, DefaultMaxFrame))

	r1, err := readFrame(&buf, DefaultMaxFrame)
	require.NoError(t, err)
	assert.Equal(t, KindBeginHandshake, r1.Kind)

	r2, err := readFrame(&buf, DefaultMaxFrame)
	require.NoError(t, err)
	assert.Equal(t, f2.MessageType, r2.MessageType)
	assert.Equal(t, []byte("OK\x00"), r2.Payload)

	_, err = readFrame(&buf, DefaultMaxFrame)
	assert.True(t, errors.Is(err, io.EOF))
}

func TestWriteFrameEnforcesLimit(t *testing.T) {
	var buf bytes.Buffer
	f := NewCall(KindSendMessage, tnc.SideCollector, 0, 0)
	f.Payload = bytes.Repeat([]byte("x"), 64)
	assert.Error(t, writeFrame(&buf, f, 16))
	assert.Equal(t, 0, buf.Len(), "nothing written on limit violation")
}

func TestReadFrameEnforcesLimit(t *testing.T) {
	var buf bytes.Buffer
	var lengthBuf [4]byte
	binary.BigEndian.PutUint32(lengthBuf[:], 1024)
	buf.Write(lengthBuf[:])

	_, err := readFrame(&buf, 100)
	assert.Error(t, err)
}

func TestReadFrameTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	var lengthBuf [4]byte
	binary.BigEndian.PutUint32(lengthBuf[:], 10)
	buf.Write(lengthBuf[:])
	buf.Write([]byte{0xa1})

	_, err := readFrame(&buf, DefaultMaxFrame)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestRecorderTranscript(t *testing.T) {
	var buf bytes.Buffer
	traceID := uuid.New()
	rec := NewRecorder(&buf, traceID)

	require.NoError(t, rec.Record(NewHello(uuid.Nil, nil)))
	require.NoError(t, rec.Record(NewCall(KindInitialize, tnc.SideCollector, 0, 0)))
	require.NoError(t, rec.Record(NewResult(0, tnc.StateAccessAllowed, tnc.Recommendation{}, nil)))

	frames, err := ReadTranscript(&buf)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	for i, f := range frames {
		assert.Equal(t, uint64(i), f.Seq)
		id, err := f.TraceUUID()
		require.NoError(t, err)
		assert.Equal(t, traceID, id, "recorder stamps its own trace id")
	}
	assert.Equal(t, KindHello, frames[0].Kind)
	assert.Equal(t, uint64(DefaultMaxFrame), frames[0].Meta["max_frame"])
	assert.Equal(t, tnc.StateAccessAllowed, frames[2].State)
}

func TestRecorderRequiresHelloFirst(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf, uuid.New())
	err := rec.Record(NewCall(KindInitialize, tnc.SideCollector, 0, 0))
	assert.True(t, errors.Is(err, ErrNoHello))
	assert.Equal(t, 0, buf.Len())

	require.NoError(t, rec.Record(NewHello(uuid.Nil, nil)))
}

func TestRecorderLimitTravelsInHello(t *testing.T) {
	_, err := NewRecorderWithLimits(&bytes.Buffer{}, uuid.New(), Limits{MaxFrame: MaxFrameHardLimit + 1})
	assert.Error(t, err)

	var buf bytes.Buffer
	rec, err := NewRecorderWithLimits(&buf, uuid.New(), Limits{MaxFrame: 256})
	require.NoError(t, err)
	require.NoError(t, rec.Record(NewHello(uuid.Nil, map[string]uint64{"collector_id": 1})))

	big := NewCall(KindSendMessage, tnc.SideCollector, 0, 0)
	big.Payload = bytes.Repeat([]byte("x"), 512)
	assert.Error(t, rec.Record(big))
	require.NoError(t, rec.Record(NewCall(KindBatchEnding, tnc.SideCollector, 0, 0)))

	tr := NewTranscriptReader(&buf)
	hello, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), hello.Meta["collector_id"])
	assert.Equal(t, Limits{MaxFrame: 256}, tr.Limits())
	assert.Equal(t, rec.TraceID(), tr.TraceID())

	next, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next.Seq, "a rejected frame does not consume a sequence number")

	_, err = tr.Next()
	assert.Equal(t, io.EOF, err)
}

func TestTranscriptReaderAppliesAnnouncedLimit(t *testing.T) {
	var buf bytes.Buffer
	traceID := uuid.New()
	hello := NewHello(traceID, map[string]uint64{"max_frame": 64})
	require.NoError(t, writeFrame(&buf, hello, DefaultMaxFrame))

	big := NewCall(KindSendMessage, tnc.SideCollector, 0, 0)
	big.Seq = 1
	big.SetTraceID(traceID)
	big.Payload = bytes.Repeat([]byte("x"), 128)
	require.NoError(t, writeFrame(&buf, big, DefaultMaxFrame))

	frames, err := ReadTranscript(&buf)
	assert.Error(t, err)
	assert.Len(t, frames, 1)
}

func TestReadTranscriptRequiresHello(t *testing.T) {
	var buf bytes.Buffer
	f := NewCall(KindInitialize, tnc.SideCollector, 0, 0)
	f.SetTraceID(uuid.New())
	require.NoError(t, writeFrame(&buf, f, DefaultMaxFrame))

	_, err := ReadTranscript(&buf)
	assert.EqualError(t, err, "expected HELLO frame")

	_, err = ReadTranscript(&bytes.Buffer{})
	assert.True(t, errors.Is(err, ErrNoHello))
}

func TestReadTranscriptRejectsForeignTrace(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRecorder(&buf, uuid.New()).Record(NewHello(uuid.Nil, nil)))
	other := NewRecorder(&buf, uuid.New())
	require.NoError(t, other.Record(NewHello(uuid.Nil, nil)))

	frames, err := ReadTranscript(&buf)
	assert.Error(t, err)
	assert.Len(t, frames, 1)
}
