package handshake

import (
	"github.com/machinefabric/tncharness-go/plugin"
	"github.com/machinefabric/tncharness-go/tnc"
)

var okType = tnc.NewMessageType(tnc.VendorTCGNew, 254)

type fakeCollector struct {
	version    tnc.Version
	initErr    error
	bindErr    error
	basicTypes []tnc.MessageType

	onBegin   func(h plugin.Host, id tnc.LocalID, cid tnc.ConnectionID) error
	onReceive func(h plugin.Host, id tnc.LocalID, cid tnc.ConnectionID, payload []byte, mt tnc.MessageType) error

	host        plugin.Host
	initialized bool
	terminated  bool
	states      []tnc.ConnectionState
	received    []string
	batches     int
}

func (c *fakeCollector) Initialize(id tnc.LocalID, min, max tnc.Version) (tnc.Version, error) {
	if c.initErr != nil {
		return 0, c.initErr
	}
	c.initialized = true
	if c.version == 0 {
		return tnc.Version1, nil
	}
	return c.version, nil
}

func (c *fakeCollector) BindCollectorHost(id tnc.LocalID, host plugin.Host) error {
	c.host = host
	if c.bindErr != nil {
		return c.bindErr
	}
	if c.basicTypes != nil {
		return host.ReportMessageTypes(id, c.basicTypes)
	}
	return nil
}

func (c *fakeCollector) BeginHandshake(id tnc.LocalID, cid tnc.ConnectionID) error {
	if c.onBegin != nil {
		return c.onBegin(c.host, id, cid)
	}
	return nil
}

func (c *fakeCollector) NotifyConnectionChange(_ tnc.LocalID, _ tnc.ConnectionID, state tnc.ConnectionState) error {
	c.states = append(c.states, state)
	return nil
}

func (c *fakeCollector) ReceiveMessage(id tnc.LocalID, cid tnc.ConnectionID, payload []byte, mt tnc.MessageType) error {
	c.received = append(c.received, string(payload))
	if c.onReceive != nil {
		return c.onReceive(c.host, id, cid, payload, mt)
	}
	return nil
}

func (c *fakeCollector) BatchEnding(tnc.LocalID, tnc.ConnectionID) error {
	c.batches++
	return nil
}

func (c *fakeCollector) Terminate(tnc.LocalID) error {
	c.terminated = true
	return nil
}

type fakeVerifier struct {
	version    tnc.Version
	initErr    error
	bindErr    error
	basicTypes []tnc.MessageType

	onReceive func(h plugin.VerifierHost, id tnc.LocalID, cid tnc.ConnectionID, payload []byte, mt tnc.MessageType) error
	onSolicit func(h plugin.VerifierHost, id tnc.LocalID, cid tnc.ConnectionID) error

	host        plugin.VerifierHost
	initialized bool
	terminated  bool
	solicited   int
	states      []tnc.ConnectionState
	received    []string
	batches     int
}

func (v *fakeVerifier) Initialize(id tnc.LocalID, min, max tnc.Version) (tnc.Version, error) {
	if v.initErr != nil {
		return 0, v.initErr
	}
	v.initialized = true
	if v.version == 0 {
		return tnc.Version1, nil
	}
	return v.version, nil
}

func (v *fakeVerifier) BindVerifierHost(id tnc.LocalID, host plugin.VerifierHost) error {
	v.host = host
	if v.bindErr != nil {
		return v.bindErr
	}
	if v.basicTypes != nil {
		return host.ReportMessageTypes(id, v.basicTypes)
	}
	return nil
}

func (v *fakeVerifier) NotifyConnectionChange(_ tnc.LocalID, _ tnc.ConnectionID, state tnc.ConnectionState) error {
	v.states = append(v.states, state)
	return nil
}

func (v *fakeVerifier) ReceiveMessage(id tnc.LocalID, cid tnc.ConnectionID, payload []byte, mt tnc.MessageType) error {
	v.received = append(v.received, string(payload))
	if v.onReceive != nil {
		return v.onReceive(v.host, id, cid, payload, mt)
	}
	return nil
}

func (v *fakeVerifier) BatchEnding(tnc.LocalID, tnc.ConnectionID) error {
	v.batches++
	return nil
}

func (v *fakeVerifier) SolicitRecommendation(id tnc.LocalID, cid tnc.ConnectionID) error {
	v.solicited++
	if v.onSolicit != nil {
		return v.onSolicit(v.host, id, cid)
	}
	return nil
}

func (v *fakeVerifier) Terminate(tnc.LocalID) error {
	v.terminated = true
	return nil
}

// longVerifier additionally receives extended messages
type longVerifier struct {
	fakeVerifier
	vendors  []tnc.VendorID
	subtypes []tnc.Subtype
}

func (v *longVerifier) BindVerifierHost(id tnc.LocalID, host plugin.VerifierHost) error {
	if err := v.fakeVerifier.BindVerifierHost(id, host); err != nil {
		return err
	}
	return host.ReportMessageTypesLong(id, v.vendors, v.subtypes)
}

func (v *longVerifier) ReceiveMessageLong(_ tnc.LocalID, _ tnc.ConnectionID, _ tnc.Flags, payload []byte,
	_ tnc.VendorID, _ tnc.Subtype, _, _ tnc.LocalID) error {
	v.received = append(v.received, string(payload))
	return nil
}
