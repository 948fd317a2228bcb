// Package exchange is the message exchange engine: a two-generation message
// queue, the type matcher deciding which plugin may receive which message,
// per-plugin type registrations, and the router delivering a snapshot to one
// side of the harness.
package exchange

import (
	"fmt"

	"github.com/machinefabric/tncharness-go/tnc"
)

// Category discriminates the message variants
type Category uint8

const (
	CategoryBasic Category = iota
	CategoryHealth
	CategoryExtended
)

// String returns the category name used in logs and metric labels
func (c Category) String() string {
	switch c {
	case CategoryBasic:
		return "basic"
	case CategoryHealth:
		return "health"
	case CategoryExtended:
		return "extended"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCategory is the inverse of Category.String
func ParseCategory(s string) (Category, error) {
	switch s {
	case "basic":
		return CategoryBasic, nil
	case "health":
		return CategoryHealth, nil
	case "extended":
		return CategoryExtended, nil
	}
	return 0, tnc.Errorf(tnc.ErrorTypeInvalidParameter, "unknown message category %q", s)
}

// Message is one queued message. Which fields are meaningful depends on Category:
//
//	Basic:    Type, Payload
//	Health:   Payload (opaque)
//	Extended: Flags, Vendor, Subtype, Payload, SourceID, DestID
type Message struct {
	Category Category
	Type     tnc.MessageType
	Flags    tnc.Flags
	Vendor   tnc.VendorID
	Subtype  tnc.Subtype
	SourceID tnc.LocalID
	DestID   tnc.LocalID
	Payload  []byte
}

// NewBasic creates a basic message
func NewBasic(mt tnc.MessageType, payload []byte) Message {
	return Message{Category: CategoryBasic, Type: mt, Payload: payload}
}

// NewHealth creates a system health message
func NewHealth(payload []byte) Message {
	return Message{Category: CategoryHealth, Payload: payload}
}

// NewExtended creates an extended message
func NewExtended(flags tnc.Flags, vendor tnc.VendorID, subtype tnc.Subtype, payload []byte, source, dest tnc.LocalID) Message {
	return Message{
		Category: CategoryExtended,
		Flags:    flags,
		Vendor:   vendor,
		Subtype:  subtype,
		Payload:  payload,
		SourceID: source,
		DestID:   dest,
	}
}

// CombinedType packs an extended message's vendor and subtype into a basic type
func (m *Message) CombinedType() tnc.MessageType {
	return tnc.NewMessageType(m.Vendor, m.Subtype)
}

// clone returns a copy owning its own payload
func (m Message) clone() Message {
	if m.Payload != nil {
		p := make([]byte, len(m.Payload))
		copy(p, m.Payload)
		m.Payload = p
	}
	return m
}
