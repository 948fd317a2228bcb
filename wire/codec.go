package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// EncodeFrame encodes a Frame to CBOR bytes
func EncodeFrame(frame *Frame) ([]byte, error) {
	if !frame.Kind.Valid() {
		return nil, fmt.Errorf("cannot encode frame of kind %s", frame.Kind)
	}
	return cbor.Marshal(frame)
}

// DecodeFrame decodes CBOR bytes to a Frame
func DecodeFrame(data []byte) (*Frame, error) {
	frame := &Frame{}
	if err := cbor.Unmarshal(data, frame); err != nil {
		return nil, err
	}
	if frame.Version != ProtocolVersion {
		return nil, fmt.Errorf("unsupported frame version %d", frame.Version)
	}
	if !frame.Kind.Valid() {
		return nil, fmt.Errorf("invalid frame kind %d", uint8(frame.Kind))
	}
	return frame, nil
}
