package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// metaMaxFrame is the HELLO meta key carrying the transcript's frame limit
const metaMaxFrame = "max_frame"

// ErrNoHello is returned when a transcript does not start with HELLO
var ErrNoHello = errors.New("expected HELLO frame")

// Limits bounds the size of a single transcript frame. A zero MaxFrame
// means DefaultMaxFrame.
type Limits struct {
	MaxFrame int
}

// DefaultLimits returns the default frame limits
func DefaultLimits() Limits {
	return Limits{MaxFrame: DefaultMaxFrame}
}

// Validate rejects limits above the hard limit
func (l Limits) Validate() error {
	if l.MaxFrame < 0 || l.MaxFrame > MaxFrameHardLimit {
		return fmt.Errorf("max_frame %d outside 0..%d", l.MaxFrame, MaxFrameHardLimit)
	}
	return nil
}

func (l Limits) maxFrame() int {
	if l.MaxFrame == 0 {
		return DefaultMaxFrame
	}
	return l.MaxFrame
}

// limitsFromHello reads the frame limit a transcript announced. Values
// above the hard limit are clamped.
func limitsFromHello(hello *Frame) Limits {
	v, ok := hello.Meta[metaMaxFrame]
	if !ok || v == 0 {
		return DefaultLimits()
	}
	if v > uint64(MaxFrameHardLimit) {
		v = uint64(MaxFrameHardLimit)
	}
	return Limits{MaxFrame: int(v)}
}

// writeFrame writes one frame behind a 4-byte big-endian length
func writeFrame(w io.Writer, frame *Frame, limit int) error {
	body, err := EncodeFrame(frame)
	if err != nil {
		return err
	}
	if len(body) > limit {
		return fmt.Errorf("%s frame of %d bytes exceeds max_frame %d", frame.Kind, len(body), limit)
	}

	buf := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[4:], body)
	_, err = w.Write(buf)
	return err
}

// readFrame reads one length-prefixed frame. It returns io.EOF only when
// the stream ends cleanly between frames.
func readFrame(r io.Reader, limit int) (*Frame, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if uint64(n) > uint64(limit) {
		return nil, fmt.Errorf("frame of %d bytes exceeds max_frame %d", n, limit)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return DecodeFrame(body)
}

// Recorder writes a transcript. The first frame must be HELLO; the recorder
// announces its frame limit in the HELLO meta, stamps every frame with its
// trace id and numbers frames in the order recorded.
// It is not safe for concurrent use.
type Recorder struct {
	w       io.Writer
	traceID uuid.UUID
	limits  Limits
	seq     uint64
}

// NewRecorder creates a recorder with the default frame limit
func NewRecorder(w io.Writer, traceID uuid.UUID) *Recorder {
	return &Recorder{w: w, traceID: traceID, limits: DefaultLimits()}
}

// NewRecorderWithLimits creates a recorder with a custom frame limit
func NewRecorderWithLimits(w io.Writer, traceID uuid.UUID, limits Limits) (*Recorder, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return &Recorder{w: w, traceID: traceID, limits: limits}, nil
}

// TraceID returns the id stamped on every frame
func (r *Recorder) TraceID() uuid.UUID {
	return r.traceID
}

// Record writes the next frame of the transcript
func (r *Recorder) Record(frame *Frame) error {
	if r.seq == 0 {
		if frame.Kind != KindHello {
			return fmt.Errorf("%w, got %s", ErrNoHello, frame.Kind)
		}
		if frame.Meta == nil {
			frame.Meta = make(map[string]uint64, 1)
		}
		frame.Meta[metaMaxFrame] = uint64(r.limits.maxFrame())
	}

	frame.Version = ProtocolVersion
	frame.Seq = r.seq
	frame.SetTraceID(r.traceID)
	if err := writeFrame(r.w, frame, r.limits.maxFrame()); err != nil {
		return err
	}
	r.seq++
	return nil
}

// TranscriptReader reads a transcript frame by frame, checking that it
// opens with HELLO, stays on one trace id and has no gaps in sequence
// numbers. Frames after HELLO are bounded by the limit HELLO announced.
type TranscriptReader struct {
	r       io.Reader
	limits  Limits
	traceID uuid.UUID
	next    uint64
}

// NewTranscriptReader creates a reader. HELLO itself is read with the
// hard frame limit.
func NewTranscriptReader(r io.Reader) *TranscriptReader {
	return &TranscriptReader{r: r, limits: Limits{MaxFrame: MaxFrameHardLimit}}
}

// TraceID returns the transcript's trace id once HELLO has been read
func (tr *TranscriptReader) TraceID() uuid.UUID {
	return tr.traceID
}

// Limits returns the limits in effect for the next frame
func (tr *TranscriptReader) Limits() Limits {
	return tr.limits
}

// Next returns the next frame, or io.EOF at the clean end of the transcript
func (tr *TranscriptReader) Next() (*Frame, error) {
	frame, err := readFrame(tr.r, tr.limits.maxFrame())
	if err != nil {
		if errors.Is(err, io.EOF) && tr.next == 0 {
			return nil, ErrNoHello
		}
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read frame %d: %w", tr.next, err)
	}

	id, err := frame.TraceUUID()
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", tr.next, err)
	}

	if tr.next == 0 {
		if frame.Kind != KindHello {
			return nil, ErrNoHello
		}
		tr.traceID = id
		tr.limits = limitsFromHello(frame)
	} else if id != tr.traceID {
		return nil, fmt.Errorf("frame %d belongs to trace %s, expected %s", tr.next, id, tr.traceID)
	}

	if frame.Seq != tr.next {
		return nil, fmt.Errorf("frame %d has sequence number %d", tr.next, frame.Seq)
	}
	tr.next++
	return frame, nil
}

// ReadTranscript reads a whole transcript. On error it returns the frames
// read so far.
func ReadTranscript(r io.Reader) ([]*Frame, error) {
	tr := NewTranscriptReader(r)
	var frames []*Frame
	for {
		frame, err := tr.Next()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
	}
}
