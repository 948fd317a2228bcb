package plugin

import "github.com/machinefabric/tncharness-go/tnc"

// Capabilities holds the optional entry points of one plugin.
// A nil slot means the plugin does not offer that call.
type Capabilities struct {
	NotifyConnectionChange func(id tnc.LocalID, cid tnc.ConnectionID, state tnc.ConnectionState) error
	ReceiveBasic           func(id tnc.LocalID, cid tnc.ConnectionID, payload []byte, mt tnc.MessageType) error
	ReceiveHealth          func(id tnc.LocalID, cid tnc.ConnectionID, payload []byte) error
	ReceiveExtended        func(id tnc.LocalID, cid tnc.ConnectionID, flags tnc.Flags, payload []byte,
		vendor tnc.VendorID, subtype tnc.Subtype, source, dest tnc.LocalID) error
	BatchEnding func(id tnc.LocalID, cid tnc.ConnectionID) error
}

// Describer lets a plugin hand over its capability slots directly instead of
// having them discovered from the optional interfaces it implements.
type Describer interface {
	Capabilities() Capabilities
}

// Resolve builds the capability set of p
func Resolve(p Plugin) Capabilities {
	if d, ok := p.(Describer); ok {
		return d.Capabilities()
	}

	var caps Capabilities
	if o, ok := p.(ConnectionObserver); ok {
		caps.NotifyConnectionChange = o.NotifyConnectionChange
	}
	if r, ok := p.(BasicReceiver); ok {
		caps.ReceiveBasic = r.ReceiveMessage
	}
	if r, ok := p.(HealthReceiver); ok {
		caps.ReceiveHealth = r.ReceiveHealthMessage
	}
	if r, ok := p.(ExtendedReceiver); ok {
		caps.ReceiveExtended = r.ReceiveMessageLong
	}
	if b, ok := p.(BatchEnder); ok {
		caps.BatchEnding = b.BatchEnding
	}
	return caps
}

// Names lists the slots that are present, in a fixed order
func (c Capabilities) Names() []string {
	var names []string
	if c.NotifyConnectionChange != nil {
		names = append(names, "connection_events")
	}
	if c.ReceiveBasic != nil {
		names = append(names, "basic")
	}
	if c.ReceiveHealth != nil {
		names = append(names, "health")
	}
	if c.ReceiveExtended != nil {
		names = append(names, "extended")
	}
	if c.BatchEnding != nil {
		names = append(names, "batch_ending")
	}
	return names
}
