// Package sim orchestrates one experiment: it builds the configured
// machines, runs them for the configured duration, and collects the
// final clocks. Machines degrade independently; the orchestrator only
// fails on setup errors.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"clockmesh"
	"clockmesh/config"
	"clockmesh/eventlog"
	"clockmesh/infra/sqlite"
	"clockmesh/internal/wallclock"
	"clockmesh/machine"
)

// Result summarizes a completed experiment.
type Result struct {
	Experiment  int
	Rates       map[clockmesh.MachineID]int
	FinalClocks map[clockmesh.MachineID]int64
	Elapsed     time.Duration
	LogDir      string
}

// Run executes one experiment to completion. It returns once every
// machine reports Stopped and all sinks are flushed.
func Run(ctx context.Context, cfg *config.Config) (*Result, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.NTPCheck {
		checkWallClock(cfg.NTPPool)
	}
	if err := cleanLogs(cfg.LogDir, cfg.Experiment); err != nil {
		return nil, err
	}

	var store *sqlite.EventStore
	if cfg.StorePath != "" {
		var err error
		if store, err = sqlite.Open(cfg.StorePath); err != nil {
			return nil, fmt.Errorf("open event store: %w", err)
		}
		defer store.Close()
	}

	tracer := otel.Tracer("clockmesh/sim")
	ctx, span := tracer.Start(ctx, "experiment", trace.WithAttributes(
		attribute.Int("experiment", cfg.Experiment),
		attribute.Int("machines", len(cfg.Machines)),
		attribute.Float64("send_probability", cfg.SendProbability),
	))
	defer span.End()

	machines, rates, err := buildMachines(cfg, func(id clockmesh.MachineID) (clockmesh.EventSink, error) {
		return buildSink(cfg, store, id)
	})
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Duration))
	defer cancel()

	slog.Info("experiment starting", "experiment", cfg.Experiment,
		"machines", len(machines), "duration", time.Duration(cfg.Duration).String())
	start := time.Now()

	g, gctx := errgroup.WithContext(runCtx)
	for _, m := range machines {
		g.Go(func() error {
			mctx, mspan := tracer.Start(gctx, "machine.run", trace.WithAttributes(
				attribute.Int("machine", int(m.ID())),
				attribute.Int("clock_rate", rates[m.ID()]),
			))
			defer mspan.End()
			return m.Run(mctx)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("experiment %d: %w", cfg.Experiment, err)
	}

	res := &Result{
		Experiment:  cfg.Experiment,
		Rates:       rates,
		FinalClocks: make(map[clockmesh.MachineID]int64, len(machines)),
		Elapsed:     time.Since(start),
		LogDir:      cfg.LogDir,
	}
	for _, m := range machines {
		res.FinalClocks[m.ID()] = m.LogicalClock()
	}
	slog.Info("experiment complete", "experiment", cfg.Experiment, "elapsed", res.Elapsed.String())
	return res, nil
}

// sinkFactory builds one machine's event sink. Injected so tests can
// observe sink lifecycles without touching the filesystem.
type sinkFactory func(id clockmesh.MachineID) (clockmesh.EventSink, error)

// buildMachines resolves clock rates, wires sinks, and constructs every
// machine with the full-mesh peer set. On a mid-loop failure every sink
// already created is closed before returning.
func buildMachines(cfg *config.Config, newSink sinkFactory) ([]*machine.Machine, map[clockmesh.MachineID]int, error) {
	policy := cfg.Policy()
	rates := make(map[clockmesh.MachineID]int, len(cfg.Machines))

	records := make([]clockmesh.PeerRecord, len(cfg.Machines))
	for i, mc := range cfg.Machines {
		records[i] = clockmesh.PeerRecord{ID: clockmesh.MachineID(mc.ID), Addr: mc.ListenAddr}
	}

	var sinks []clockmesh.EventSink
	fail := func(err error) ([]*machine.Machine, map[clockmesh.MachineID]int, error) {
		for _, s := range sinks {
			if cerr := s.Close(); cerr != nil {
				slog.Warn("closing event sink after failed setup", "err", cerr)
			}
		}
		return nil, nil, err
	}

	machines := make([]*machine.Machine, 0, len(cfg.Machines))
	for i, mc := range cfg.Machines {
		id := clockmesh.MachineID(mc.ID)
		rate := mc.ClockRate
		if rate == 0 {
			rate = 1 + rand.IntN(6)
		}
		rates[id] = rate

		peers := make([]clockmesh.PeerRecord, 0, len(records)-1)
		peers = append(peers, records[:i]...)
		peers = append(peers, records[i+1:]...)

		sink, err := newSink(id)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, sink)

		m, err := machine.New(machine.Config{
			ID:              id,
			ClockRate:       rate,
			ListenAddr:      mc.ListenAddr,
			Peers:           peers,
			SendProbability: cfg.SendProbability,
			Policy:          policy,
		}, sink)
		if err != nil {
			return fail(err)
		}
		machines = append(machines, m)
	}
	return machines, rates, nil
}

func buildSink(cfg *config.Config, store *sqlite.EventStore, id clockmesh.MachineID) (clockmesh.EventSink, error) {
	file, err := eventlog.NewFileSink(eventlog.FilePath(cfg.LogDir, cfg.Experiment, id))
	if err != nil {
		return nil, err
	}
	if store == nil {
		return file, nil
	}
	return eventlog.Multi{file, store.MachineSink(cfg.Experiment)}, nil
}

// cleanLogs removes stale log files of the same experiment so every run
// starts from a clean slate.
func cleanLogs(dir string, experiment int) error {
	pattern := filepath.Join(dir, fmt.Sprintf("experiment_%d_vm_*.log", experiment))
	stale, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("glob stale logs: %w", err)
	}
	for _, path := range stale {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove stale log: %w", err)
		}
	}
	return nil
}

func checkWallClock(pool string) {
	c := wallclock.NewChecker()
	if pool != "" {
		c.Pool = pool
	}
	st, err := c.Check()
	if err != nil {
		slog.Warn("wall clock check failed", "pool", c.Pool, "err", err)
		return
	}
	if !st.Healthy {
		slog.Warn("host clock offset exceeds threshold; cross-machine timestamps will skew",
			"offset", st.Offset.String())
		return
	}
	slog.Debug("wall clock healthy", "offset", st.Offset.String())
}
