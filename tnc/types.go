// Package tnc holds the IF-IMC/IF-IMV protocol vocabulary shared by the
// exchange engine, the handshake coordinator and the plugins.
package tnc

import "fmt"

// LocalID identifies a plugin within one side of the harness
type LocalID uint32

// ConnectionID identifies the single active network connection
type ConnectionID uint32

// VendorID is the 24-bit SMI private enterprise number of a message vendor
type VendorID uint32

// Subtype is the 8-bit message subtype within a vendor
type Subtype uint32

// Flags carries per-message extended flags
type Flags uint32

// Version is an interface version negotiated at Initialize
type Version uint32

// Reserved identifiers and wildcards
const (
	VendorAny  VendorID = 0xffffff
	SubtypeAny Subtype  = 0xff

	VendorTCG    VendorID = 0
	VendorTCGNew VendorID = 0x005597

	PluginIDAny     LocalID      = 0xffff
	ConnectionIDAny ConnectionID = 0xffffffff

	FlagExclusive Flags = 0x80000000

	Version1 Version = 1
)

// Exclusive reports whether the exclusive-addressing bit is set
func (f Flags) Exclusive() bool {
	return f&FlagExclusive != 0
}

// MessageType is a packed basic message type: (vendor << 8) | subtype
type MessageType uint32

// NewMessageType packs a vendor and subtype into a basic message type
func NewMessageType(vendor VendorID, subtype Subtype) MessageType {
	return MessageType(uint32(vendor&0xffffff)<<8 | uint32(subtype&0xff))
}

// Vendor returns the upper 24 bits of the type
func (t MessageType) Vendor() VendorID {
	return VendorID(uint32(t) >> 8)
}

// Subtype returns the low 8 bits of the type
func (t MessageType) Subtype() Subtype {
	return Subtype(uint32(t) & 0xff)
}

func (t MessageType) String() string {
	return fmt.Sprintf("0x%06x/0x%02x", uint32(t.Vendor()), uint32(t.Subtype()))
}

// ConnectionState is the lifecycle state of a network connection
type ConnectionState uint32

const (
	StateCreate         ConnectionState = 0
	StateHandshake      ConnectionState = 1
	StateAccessAllowed  ConnectionState = 2
	StateAccessIsolated ConnectionState = 3
	StateAccessDenied   ConnectionState = 4
	StateDelete         ConnectionState = 5
)

// String returns the wire name of the state
func (s ConnectionState) String() string {
	switch s {
	case StateCreate:
		return "create"
	case StateHandshake:
		return "handshake"
	case StateAccessAllowed:
		return "access allowed"
	case StateAccessIsolated:
		return "access isolated"
	case StateAccessDenied:
		return "access none"
	case StateDelete:
		return "delete"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(s))
	}
}

// Action is the verifier's recommended access decision
type Action uint32

const (
	ActionAllow            Action = 0
	ActionNoAccess         Action = 1
	ActionIsolate          Action = 2
	ActionNoRecommendation Action = 3
)

func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionNoAccess:
		return "no access"
	case ActionIsolate:
		return "isolate"
	case ActionNoRecommendation:
		return "no recommendation"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(a))
	}
}

// ParseAction maps the lower-case names used in scenario files
func ParseAction(s string) (Action, error) {
	switch s {
	case "allow":
		return ActionAllow, nil
	case "no_access", "no access", "deny":
		return ActionNoAccess, nil
	case "isolate":
		return ActionIsolate, nil
	case "no_recommendation", "no recommendation", "":
		return ActionNoRecommendation, nil
	}
	return 0, NewError(ErrorTypeInvalidParameter, fmt.Sprintf("unknown action %q", s))
}

// Evaluation is the verifier's compliance assessment
type Evaluation uint32

const (
	EvaluationCompliant         Evaluation = 0
	EvaluationMinorNoncompliant Evaluation = 1
	EvaluationMajorNoncompliant Evaluation = 2
	EvaluationError             Evaluation = 3
	EvaluationDontKnow          Evaluation = 4
)

func (e Evaluation) String() string {
	switch e {
	case EvaluationCompliant:
		return "compliant"
	case EvaluationMinorNoncompliant:
		return "minor noncompliant"
	case EvaluationMajorNoncompliant:
		return "major noncompliant"
	case EvaluationError:
		return "error"
	case EvaluationDontKnow:
		return "don't know"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(e))
	}
}

// ParseEvaluation maps the lower-case names used in scenario files
func ParseEvaluation(s string) (Evaluation, error) {
	switch s {
	case "compliant":
		return EvaluationCompliant, nil
	case "minor_noncompliant", "minor noncompliant":
		return EvaluationMinorNoncompliant, nil
	case "major_noncompliant", "major noncompliant":
		return EvaluationMajorNoncompliant, nil
	case "error":
		return EvaluationError, nil
	case "dont_know", "don't know", "":
		return EvaluationDontKnow, nil
	}
	return 0, NewError(ErrorTypeInvalidParameter, fmt.Sprintf("unknown evaluation %q", s))
}

// Recommendation pairs an access action with its evaluation
type Recommendation struct {
	Action     Action
	Evaluation Evaluation
}

// DefaultRecommendation is held before the verifier reports anything
func DefaultRecommendation() Recommendation {
	return Recommendation{Action: ActionNoRecommendation, Evaluation: EvaluationDontKnow}
}

// State maps a recommendation onto the resolved connection state.
// No recommendation resolves to denied access.
func (r Recommendation) State() ConnectionState {
	switch r.Action {
	case ActionAllow:
		return StateAccessAllowed
	case ActionIsolate:
		return StateAccessIsolated
	default:
		return StateAccessDenied
	}
}

// Side names the half of the harness a plugin runs on
type Side uint8

const (
	SideCollector Side = iota
	SideVerifier
)

func (s Side) String() string {
	if s == SideVerifier {
		return "verifier"
	}
	return "collector"
}

// RetryReason is passed with a handshake retry request
type RetryReason uint32

const (
	RetryReasonCollectorRemediationComplete RetryReason = 0
	RetryReasonCollectorSeriousEvent        RetryReason = 1
	RetryReasonCollectorInformationalEvent  RetryReason = 2
	RetryReasonCollectorPeriodic            RetryReason = 3
	RetryReasonVerifierImportantPolicy      RetryReason = 4
	RetryReasonVerifierMinorPolicy          RetryReason = 5
	RetryReasonVerifierSeriousEvent         RetryReason = 6
	RetryReasonVerifierMinorEvent           RetryReason = 7
	RetryReasonVerifierPeriodic             RetryReason = 8
)
