// Package tncharness provides flat re-exports of the harness packages and
// the entry points used by the command line tester.
package tncharness

import (
	"context"

	"github.com/machinefabric/tncharness-go/exchange"
	"github.com/machinefabric/tncharness-go/handshake"
	"github.com/machinefabric/tncharness-go/plugin"
	"github.com/machinefabric/tncharness-go/reference"
	"github.com/machinefabric/tncharness-go/scenario"
	"github.com/machinefabric/tncharness-go/tnc"
	"github.com/machinefabric/tncharness-go/wire"
)

// Protocol types
type LocalID = tnc.LocalID
type ConnectionID = tnc.ConnectionID
type MessageType = tnc.MessageType
type ConnectionState = tnc.ConnectionState
type Recommendation = tnc.Recommendation
type Error = tnc.Error

var NewMessageType = tnc.NewMessageType

// Plugin contract
type Collector = plugin.Collector
type Verifier = plugin.Verifier
type Host = plugin.Host
type VerifierHost = plugin.VerifierHost
type Capabilities = plugin.Capabilities

// Message exchange
type Message = exchange.Message
type Queue = exchange.Queue
type Limits = exchange.Limits
type Metrics = exchange.Metrics

var NewQueue = exchange.NewQueue
var NewMetrics = exchange.NewMetrics

// Handshake
type Options = handshake.Options
type Result = handshake.Result
type Coordinator = handshake.Coordinator

var NewCoordinator = handshake.NewCoordinator

// Transcripts
type Frame = wire.Frame
type Recorder = wire.Recorder

var NewRecorder = wire.NewRecorder
var ReadTranscript = wire.ReadTranscript

// RunScenario loads a scenario file, runs it and checks its expectation.
// The scenario's connection settings override those in opts.
func RunScenario(ctx context.Context, path string, opts Options) (*Result, error) {
	s, err := scenario.Load(path)
	if err != nil {
		return nil, err
	}
	s.Configure(&opts)
	collector, verifier := s.Build()

	res, err := handshake.NewCoordinator(collector, verifier, opts).Run(ctx)
	if err != nil {
		return res, err
	}
	return res, s.Check(res)
}

// RunReference runs the reference collector and verifier pair. The
// collector reports OK when markerPath can be opened.
func RunReference(ctx context.Context, markerPath string, opts Options) (*Result, error) {
	return handshake.NewCoordinator(reference.NewCollector(markerPath), reference.NewVerifier(), opts).Run(ctx)
}
