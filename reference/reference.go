// Package reference provides the minimal collector and verifier pair: the
// collector reports whether a marker file exists, the verifier allows access
// only when it does.
package reference

import (
	"bytes"
	"errors"
	"os"
	"sync"

	"github.com/machinefabric/tncharness-go/plugin"
	"github.com/machinefabric/tncharness-go/tnc"
)

// MessageType is the experimental type both plugins use. It must not be
// used in production.
var MessageType = tnc.NewMessageType(tnc.VendorTCGNew, 254)

// DefaultMarkerPath is checked when a Collector has no path configured
const DefaultMarkerPath = "/OK"

var (
	payloadOK      = []byte("OK\x00")
	payloadProblem = []byte("Problem\x00")

	errNotBound = errors.New("host functions not bound")
)

func negotiate(min, max tnc.Version) (tnc.Version, error) {
	if min > tnc.Version1 || max < tnc.Version1 {
		return 0, tnc.Errorf(tnc.ErrorTypeVersionMismatch, "only version %d is supported, offered %d..%d", tnc.Version1, min, max)
	}
	return tnc.Version1, nil
}

// Collector sends "OK" when its marker file can be opened and "Problem"
// otherwise
type Collector struct {
	MarkerPath string

	host plugin.Host
}

var (
	_ plugin.Collector       = (*Collector)(nil)
	_ plugin.CollectorBinder = (*Collector)(nil)
)

// NewCollector creates a collector checking path
func NewCollector(path string) *Collector {
	return &Collector{MarkerPath: path}
}

func (c *Collector) Initialize(_ tnc.LocalID, min, max tnc.Version) (tnc.Version, error) {
	return negotiate(min, max)
}

func (c *Collector) BindCollectorHost(_ tnc.LocalID, host plugin.Host) error {
	c.host = host
	return nil
}

// BeginHandshake sends the marker check result
func (c *Collector) BeginHandshake(id tnc.LocalID, cid tnc.ConnectionID) error {
	if c.host == nil {
		return errNotBound
	}
	return c.host.SendMessage(id, cid, c.check(), MessageType)
}

func (c *Collector) check() []byte {
	path := c.MarkerPath
	if path == "" {
		path = DefaultMarkerPath
	}
	f, err := os.Open(path)
	if err != nil {
		return payloadProblem
	}
	f.Close()
	return payloadOK
}

func (c *Collector) Terminate(tnc.LocalID) error {
	c.host = nil
	return nil
}

// Verifier allows access when the collector reports "OK". It remembers the
// last decision per connection so it can answer a solicitation.
type Verifier struct {
	mu   sync.Mutex
	host plugin.VerifierHost
	last map[tnc.ConnectionID]tnc.Recommendation
}

var (
	_ plugin.Verifier       = (*Verifier)(nil)
	_ plugin.VerifierBinder = (*Verifier)(nil)
	_ plugin.BasicReceiver  = (*Verifier)(nil)
)

// NewVerifier creates a verifier
func NewVerifier() *Verifier {
	return &Verifier{last: make(map[tnc.ConnectionID]tnc.Recommendation)}
}

func (v *Verifier) Initialize(_ tnc.LocalID, min, max tnc.Version) (tnc.Version, error) {
	return negotiate(min, max)
}

// BindVerifierHost registers the experimental message type
func (v *Verifier) BindVerifierHost(id tnc.LocalID, host plugin.VerifierHost) error {
	v.mu.Lock()
	v.host = host
	v.mu.Unlock()
	return host.ReportMessageTypes(id, []tnc.MessageType{MessageType})
}

// ReceiveMessage evaluates the collector's report and recommends at once
func (v *Verifier) ReceiveMessage(id tnc.LocalID, cid tnc.ConnectionID, payload []byte, mt tnc.MessageType) error {
	if mt != MessageType {
		return tnc.Errorf(tnc.ErrorTypeInvalidParameter, "unexpected message type %s", mt)
	}

	rec := tnc.Recommendation{Action: tnc.ActionNoAccess, Evaluation: tnc.EvaluationMajorNoncompliant}
	if isOK(payload) {
		rec = tnc.Recommendation{Action: tnc.ActionAllow, Evaluation: tnc.EvaluationCompliant}
	}

	v.mu.Lock()
	v.last[cid] = rec
	host := v.host
	v.mu.Unlock()

	if host == nil {
		return errNotBound
	}
	return host.ProvideRecommendation(id, cid, rec.Action, rec.Evaluation)
}

// isOK accepts a NUL-terminated string reading "OK"
func isOK(payload []byte) bool {
	if len(payload) == 0 || payload[len(payload)-1] != 0 {
		return false
	}
	s := payload
	if i := bytes.IndexByte(payload, 0); i >= 0 {
		s = payload[:i]
	}
	return string(s) == "OK"
}

// SolicitRecommendation repeats the last decision for cid, or no
// recommendation if nothing was received
func (v *Verifier) SolicitRecommendation(id tnc.LocalID, cid tnc.ConnectionID) error {
	v.mu.Lock()
	rec, ok := v.last[cid]
	host := v.host
	v.mu.Unlock()

	if !ok {
		rec = tnc.DefaultRecommendation()
	}
	if host == nil {
		return errNotBound
	}
	return host.ProvideRecommendation(id, cid, rec.Action, rec.Evaluation)
}

// Recommendation returns the last decision for cid
func (v *Verifier) Recommendation(cid tnc.ConnectionID) (tnc.Recommendation, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	rec, ok := v.last[cid]
	return rec, ok
}

func (v *Verifier) Terminate(tnc.LocalID) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.host = nil
	v.last = make(map[tnc.ConnectionID]tnc.Recommendation)
	return nil
}
