// Package plugin defines the statically typed contract between the harness
// and the collector and verifier plugins it drives.
//
// Required entry points are ordinary interface methods. Optional entry points
// are separate single-method interfaces; Resolve turns whatever a plugin
// implements into a Capabilities value with nil slots for the missing ones.
package plugin

import "github.com/machinefabric/tncharness-go/tnc"

// Plugin is the part of the contract shared by collectors and verifiers
type Plugin interface {
	// Initialize negotiates an interface version in [min, max]
	Initialize(id tnc.LocalID, min, max tnc.Version) (tnc.Version, error)
	Terminate(id tnc.LocalID) error
}

// Collector gathers endpoint data and starts each handshake
type Collector interface {
	Plugin
	BeginHandshake(id tnc.LocalID, cid tnc.ConnectionID) error
}

// Verifier evaluates collector messages and recommends an access decision
type Verifier interface {
	Plugin
	SolicitRecommendation(id tnc.LocalID, cid tnc.ConnectionID) error
}

// ConnectionObserver is notified of every connection state change
type ConnectionObserver interface {
	NotifyConnectionChange(id tnc.LocalID, cid tnc.ConnectionID, state tnc.ConnectionState) error
}

// BasicReceiver accepts basic messages
type BasicReceiver interface {
	ReceiveMessage(id tnc.LocalID, cid tnc.ConnectionID, payload []byte, mt tnc.MessageType) error
}

// HealthReceiver accepts system health messages
type HealthReceiver interface {
	ReceiveHealthMessage(id tnc.LocalID, cid tnc.ConnectionID, payload []byte) error
}

// ExtendedReceiver accepts extended (long-type) messages
type ExtendedReceiver interface {
	ReceiveMessageLong(id tnc.LocalID, cid tnc.ConnectionID, flags tnc.Flags, payload []byte,
		vendor tnc.VendorID, subtype tnc.Subtype, source, dest tnc.LocalID) error
}

// BatchEnder is told when a delivery batch has been fully handed over
type BatchEnder interface {
	BatchEnding(id tnc.LocalID, cid tnc.ConnectionID) error
}

// CollectorBinder receives the collector-side host after Initialize
type CollectorBinder interface {
	BindCollectorHost(id tnc.LocalID, host Host) error
}

// VerifierBinder receives the verifier-side host after Initialize
type VerifierBinder interface {
	BindVerifierHost(id tnc.LocalID, host VerifierHost) error
}

// Host is the set of calls a plugin may make back into the harness
type Host interface {
	// ReportMessageTypes replaces the plugin's basic type registration
	ReportMessageTypes(id tnc.LocalID, types []tnc.MessageType) error
	// ReportMessageTypesLong replaces the plugin's extended type registration.
	// vendors and subtypes are parallel lists.
	ReportMessageTypesLong(id tnc.LocalID, vendors []tnc.VendorID, subtypes []tnc.Subtype) error
	SendMessage(id tnc.LocalID, cid tnc.ConnectionID, payload []byte, mt tnc.MessageType) error
	SendHealthMessage(id tnc.LocalID, cid tnc.ConnectionID, payload []byte) error
	SendMessageLong(id tnc.LocalID, cid tnc.ConnectionID, flags tnc.Flags, payload []byte,
		vendor tnc.VendorID, subtype tnc.Subtype, dest tnc.LocalID) error
	RequestHandshakeRetry(id tnc.LocalID, cid tnc.ConnectionID, reason tnc.RetryReason) error
}

// VerifierHost adds the recommendation call available only to verifiers
type VerifierHost interface {
	Host
	ProvideRecommendation(id tnc.LocalID, cid tnc.ConnectionID, action tnc.Action, evaluation tnc.Evaluation) error
}
