// Package scenario loads YAML descriptions of scripted collector and
// verifier plugins, so handshakes can be exercised without real plugins.
//
// A minimal scenario:
//
//	name: allow-on-ok
//	collector:
//	  on_begin_handshake:
//	    - {category: basic, type: 0x005597fe, payload: "OK\0"}
//	verifier:
//	  basic_types: [0x005597fe]
//	  rules:
//	    - match: {payload: "OK\0"}
//	      recommend: {action: allow, evaluation: compliant}
//	expect:
//	  state: access allowed
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/machinefabric/tncharness-go/exchange"
	"github.com/machinefabric/tncharness-go/handshake"
	"github.com/machinefabric/tncharness-go/tnc"
)

// Scenario is one scripted connection
type Scenario struct {
	Name          string       `yaml:"name"`
	Description   string       `yaml:"description"`
	ConnectionID  *uint32      `yaml:"connection_id"`
	MaxRoundTrips int          `yaml:"max_round_trips"`
	Collector     PluginSpec   `yaml:"collector"`
	Verifier      PluginSpec   `yaml:"verifier"`
	Expect        *Expectation `yaml:"expect"`
}

// PluginSpec scripts one plugin
type PluginSpec struct {
	ID               *uint32            `yaml:"id"`
	Versions         *VersionRange      `yaml:"versions"`
	Capabilities     []string           `yaml:"capabilities"`
	BasicTypes       []uint32           `yaml:"basic_types"`
	ExtendedTypes    []ExtendedTypeSpec `yaml:"extended_types"`
	OnBeginHandshake []SendSpec         `yaml:"on_begin_handshake"`
	Rules            []RuleSpec         `yaml:"rules"`
	Solicit          *RecommendSpec     `yaml:"solicit"`
	FailBind         bool               `yaml:"fail_bind"`
}

// VersionRange is the interface versions a plugin supports
type VersionRange struct {
	Min uint32 `yaml:"min"`
	Max uint32 `yaml:"max"`
}

// ExtendedTypeSpec is one extended registration entry
type ExtendedTypeSpec struct {
	Vendor  uint32 `yaml:"vendor"`
	Subtype uint32 `yaml:"subtype"`
}

// SendSpec is one message a plugin sends
type SendSpec struct {
	Category  string `yaml:"category"`
	Type      uint32 `yaml:"type"`
	Vendor    uint32 `yaml:"vendor"`
	Subtype   uint32 `yaml:"subtype"`
	Flags     uint32 `yaml:"flags"`
	Exclusive bool   `yaml:"exclusive"`
	Dest      uint32 `yaml:"dest"`
	Payload   string `yaml:"payload"`
}

// MatchSpec selects received messages. Unset fields match anything.
type MatchSpec struct {
	Category string  `yaml:"category"`
	Type     *uint32 `yaml:"type"`
	Vendor   *uint32 `yaml:"vendor"`
	Subtype  *uint32 `yaml:"subtype"`
	Payload  *string `yaml:"payload"`
}

// RuleSpec reacts to the first received message it matches
type RuleSpec struct {
	Match     MatchSpec      `yaml:"match"`
	Send      []SendSpec     `yaml:"send"`
	Recommend *RecommendSpec `yaml:"recommend"`
}

// RecommendSpec is a recommendation, or a failure when Fail is set
type RecommendSpec struct {
	Action     string `yaml:"action"`
	Evaluation string `yaml:"evaluation"`
	Fail       bool   `yaml:"fail"`
}

// Recommendation parses the action and evaluation names
func (r *RecommendSpec) Recommendation() (tnc.Recommendation, error) {
	action, err := tnc.ParseAction(r.Action)
	if err != nil {
		return tnc.Recommendation{}, err
	}
	evaluation, err := tnc.ParseEvaluation(r.Evaluation)
	if err != nil {
		return tnc.Recommendation{}, err
	}
	return tnc.Recommendation{Action: action, Evaluation: evaluation}, nil
}

// Expectation is checked against the handshake result
type Expectation struct {
	State    string `yaml:"state"`
	Resolved *bool  `yaml:"resolved"`
	Rounds   *int   `yaml:"rounds"`
}

// Load reads and parses a scenario file
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse validates and decodes a scenario document
func Parse(data []byte) (*Scenario, error) {
	if err := validate(data); err != nil {
		return nil, err
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, &ValidationError{Details: fmt.Sprintf("failed to decode scenario: %v", err)}
	}

	for _, p := range []*PluginSpec{&s.Collector, &s.Verifier} {
		if p.Versions != nil && p.Versions.Min > p.Versions.Max {
			return nil, &ValidationError{Details: fmt.Sprintf("version range %d..%d is empty", p.Versions.Min, p.Versions.Max)}
		}
	}
	if s.Collector.Solicit != nil {
		return nil, &ValidationError{Details: "solicit applies to the verifier only"}
	}
	if len(s.Verifier.OnBeginHandshake) > 0 {
		return nil, &ValidationError{Details: "on_begin_handshake applies to the collector only"}
	}
	for _, r := range s.Collector.Rules {
		if r.Recommend != nil {
			return nil, &ValidationError{Details: "collector rules cannot recommend"}
		}
	}
	return &s, nil
}

// Configure copies the connection settings the scenario sets into opts.
// Settings the scenario leaves out keep their value in opts.
func (s *Scenario) Configure(opts *handshake.Options) {
	if s.ConnectionID != nil {
		opts.ConnectionID = tnc.ConnectionID(*s.ConnectionID)
	}
	if s.Collector.ID != nil {
		opts.CollectorID = tnc.LocalID(*s.Collector.ID)
	}
	if s.Verifier.ID != nil {
		opts.VerifierID = tnc.LocalID(*s.Verifier.ID)
	}
	if s.MaxRoundTrips > 0 {
		opts.MaxRoundTrips = s.MaxRoundTrips
	}
}

// Build creates the scripted plugin pair
func (s *Scenario) Build() (*Collector, *Verifier) {
	return newCollector(s.Collector), newVerifier(s.Verifier)
}

// Check compares a handshake result with the scenario's expectation
func (s *Scenario) Check(res *handshake.Result) error {
	if s.Expect == nil || res == nil {
		return nil
	}
	if s.Expect.State != "" && res.State.String() != s.Expect.State {
		return fmt.Errorf("scenario %s: expected state %q, got %q", s.Name, s.Expect.State, res.State)
	}
	if s.Expect.Resolved != nil && res.Resolved != *s.Expect.Resolved {
		return fmt.Errorf("scenario %s: expected resolved=%t, got %t", s.Name, *s.Expect.Resolved, res.Resolved)
	}
	if s.Expect.Rounds != nil && res.Rounds != *s.Expect.Rounds {
		return fmt.Errorf("scenario %s: expected %d rounds, got %d", s.Name, *s.Expect.Rounds, res.Rounds)
	}
	return nil
}

func (m *MatchSpec) matches(msg exchange.Message) bool {
	if m.Category != "" && m.Category != msg.Category.String() {
		return false
	}
	if m.Type != nil {
		mt := msg.Type
		if msg.Category == exchange.CategoryExtended {
			mt = msg.CombinedType()
		}
		if tnc.MessageType(*m.Type) != mt {
			return false
		}
	}
	if m.Vendor != nil && tnc.VendorID(*m.Vendor) != vendorOf(msg) {
		return false
	}
	if m.Subtype != nil && tnc.Subtype(*m.Subtype) != subtypeOf(msg) {
		return false
	}
	if m.Payload != nil && *m.Payload != string(msg.Payload) {
		return false
	}
	return true
}

func vendorOf(msg exchange.Message) tnc.VendorID {
	if msg.Category == exchange.CategoryExtended {
		return msg.Vendor
	}
	return msg.Type.Vendor()
}

func subtypeOf(msg exchange.Message) tnc.Subtype {
	if msg.Category == exchange.CategoryExtended {
		return msg.Subtype
	}
	return msg.Type.Subtype()
}
