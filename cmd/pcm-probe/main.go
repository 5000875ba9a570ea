// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Command pcm-probe programs the PMU for one mode, samples it at a
// fixed cadence, and prints derived metrics to stdout until
// interrupted. It is the example consumer of package pcm, not a
// production daemon.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/antimetal/pcm/pkg/pcm"
	"github.com/antimetal/pcm/pkg/pcm/metrics"
)

var (
	verbose      bool
	mode         string
	interval     time.Duration
	allowShared  bool
	noMSR        bool
	nominalGHz   float64
)

func main() {
	root := &cobra.Command{
		Use:   "pcm-probe",
		Short: "Program the PMU, sample it, and print derived metrics",
		RunE:  run,
	}

	flags := root.Flags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVarP(&mode, "mode", "m", "default", "program mode: default, uncore-memory, uncore-power, uncore-latency")
	flags.DurationVarP(&interval, "interval", "i", time.Second, "sampling interval")
	flags.BoolVar(&allowShared, "allow-multiple-instances", false, "opt out of the single-client exclusion semaphore")
	flags.BoolVar(&noMSR, "no-msr", false, "disable the MSR backend (equivalent to PCM_NO_MSR=1)")
	flags.Float64Var(&nominalGHz, "nominal-ghz", 0, "nominal core frequency for derived Hz metrics; 0 skips that metric")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := newLogger(verbose)

	config := pcm.DefaultEngineConfig()
	config.AllowMultipleInstances = allowShared
	config.NoMSR = noMSR
	config.ApplyDefaults()

	engine, err := pcm.GetInstance(logger, config)
	if err != nil {
		return fmt.Errorf("discover engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	programMode, params, err := resolveMode(mode)
	if err != nil {
		return err
	}

	result, err := engine.Program(ctx, programMode, params)
	if err != nil {
		return fmt.Errorf("program %s: %w", programMode, err)
	}
	logger.Info("programmed", "mode", programMode, "result", result)

	defer func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cleanupCancel()
		if err := engine.Cleanup(cleanupCtx); err != nil {
			logger.Error(err, "cleanup failed")
		}
	}()

	updater := engine.StartUpdater()
	defer updater.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			printSample(updater)
		}
	}
}

func printSample(updater *pcm.Updater) {
	previous, current, ok := updater.Latest()
	if !ok {
		return
	}

	type coreLine struct {
		OSID int     `json:"os_id"`
		IPC  float64 `json:"ipc"`
		Freq float64 `json:"avg_freq_hz,omitempty"`
	}
	lines := make([]coreLine, 0, len(current.Cores))
	for i, after := range current.Cores {
		if i >= len(previous.Cores) {
			break
		}
		before := previous.Cores[i]
		line := coreLine{OSID: after.OSID, IPC: metrics.IPC(before, after)}
		if nominalGHz > 0 {
			line.Freq = metrics.AverageFrequencyHz(before, after, nominalGHz*1e9)
		}
		lines = append(lines, line)
	}

	out, err := json.Marshal(lines)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal sample: %v\n", err)
		return
	}
	fmt.Println(string(out))
}

func resolveMode(name string) (pcm.ProgramMode, pcm.ProgramParams, error) {
	switch name {
	case "default":
		return pcm.ModeDefault, pcm.ProgramParams{}, nil
	case "uncore-memory":
		return pcm.ModeUncoreMemory, pcm.ProgramParams{}, nil
	case "uncore-power":
		return pcm.ModeUncorePower, pcm.ProgramParams{}, nil
	case "uncore-latency":
		return pcm.ModeUncoreLatency, pcm.ProgramParams{}, nil
	default:
		return pcm.ModeDefault, pcm.ProgramParams{}, fmt.Errorf("unknown mode %q", name)
	}
}

func newLogger(verbose bool) logr.Logger {
	var zapLog *zap.Logger
	var err error
	if verbose {
		zapLog, err = zap.NewDevelopment()
	} else {
		zapLog, err = zap.NewProduction()
	}
	if err != nil {
		return logr.Discard()
	}
	return zapr.NewLogger(zapLog)
}
