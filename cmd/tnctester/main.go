package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	tncharness "github.com/machinefabric/tncharness-go"
	"github.com/machinefabric/tncharness-go/config"
	"github.com/machinefabric/tncharness-go/exchange"
	"github.com/machinefabric/tncharness-go/reference"
	"github.com/machinefabric/tncharness-go/wire"
)

// flags holds the command-line settings that are not part of config.Config
type flags struct {
	ScenarioPath string
	MarkerPath   string
}

// tnctester runs one collector/verifier handshake, either the reference
// pair or a scripted scenario, and exits non-zero unless access was resolved
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(2)
	}
	opts := parseFlags(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger := cfg.NewLogger()
	os.Exit(run(cfg, opts, logger))
}

func parseFlags(cfg *config.Config) *flags {
	f := &flags{}

	flag.StringVar(&f.ScenarioPath, "scenario", "", "Scenario YAML file (runs the reference pair when empty)")
	flag.StringVar(&f.MarkerPath, "ok-file", reference.DefaultMarkerPath, "Marker file checked by the reference collector")
	flag.StringVar(&cfg.TracePath, "trace", cfg.TracePath, "Write a CBOR transcript to this file")
	flag.StringVar(&cfg.MetricsPath, "metrics", cfg.MetricsPath, "Write Prometheus metrics to this file")
	flag.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "Log format (text, json)")
	flag.Func("connection-id", "Connection id", func(s string) error {
		return parseUint32(s, &cfg.Session.ConnectionID)
	})
	flag.IntVar(&cfg.Session.MaxRoundTrips, "max-round-trips", cfg.Session.MaxRoundTrips, "Bound on round trips (0 is unbounded)")

	flag.Parse()

	return f
}

func parseUint32(s string, dst *uint32) error {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return err
	}
	*dst = uint32(v)
	return nil
}

func run(cfg *config.Config, f *flags, logger *logrus.Logger) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Received shutdown signal, canceling handshake...")
		cancel()
	}()

	registry := prometheus.NewRegistry()
	opts := cfg.Options()
	opts.Logger = logger
	opts.Metrics = exchange.NewMetrics(registry)
	opts.TraceID = uuid.New()

	if cfg.TracePath != "" {
		out, err := os.Create(cfg.TracePath)
		if err != nil {
			logger.Errorf("Failed to create trace file: %v", err)
			return 2
		}
		defer out.Close()
		opts.Tracer = wire.NewRecorder(out, opts.TraceID)
	}

	var (
		res *tncharness.Result
		err error
	)
	if f.ScenarioPath != "" {
		logger.Infof("Running scenario %s", f.ScenarioPath)
		res, err = tncharness.RunScenario(ctx, f.ScenarioPath, opts)
	} else {
		logger.Infof("Running reference pair with marker %s", f.MarkerPath)
		res, err = tncharness.RunReference(ctx, f.MarkerPath, opts)
	}

	if cfg.MetricsPath != "" {
		if werr := prometheus.WriteToTextfile(cfg.MetricsPath, registry); werr != nil {
			logger.Errorf("Failed to write metrics: %v", werr)
		}
	}

	if err != nil {
		logger.Errorf("Handshake failed: %v", err)
		return 1
	}

	logger.WithFields(logrus.Fields{
		"trace_id":   res.TraceID,
		"state":      res.State.String(),
		"action":     res.Recommendation.Action.String(),
		"evaluation": res.Recommendation.Evaluation.String(),
		"rounds":     res.Rounds,
		"delivered":  res.Delivered,
		"dropped":    res.Dropped,
	}).Info("Handshake finished")

	if !res.Resolved {
		return 1
	}
	return 0
}
