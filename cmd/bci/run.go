package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"pipelined.dev/bci"
	"pipelined.dev/bci/device"
	"pipelined.dev/bci/metric"
	"pipelined.dev/bci/session"
)

type runOptions struct {
	pipeline   string
	channels   int
	sampleRate float64
	seed       int64
	metrics    string
	duration   time.Duration
	artifacts  time.Duration
}

func newRunCommand() *cobra.Command {
	var o runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run pipeline with synthetic EEG device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), o)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&o.pipeline, "pipeline", "p", "", "pipeline definition file, default pipeline if empty")
	flags.IntVar(&o.channels, "channels", 4, "number of EEG channels")
	flags.Float64Var(&o.sampleRate, "sample-rate", 220, "EEG samples per second")
	flags.Int64Var(&o.seed, "seed", 1, "seed of synthetic noise")
	flags.StringVar(&o.metrics, "metrics", ":9090", "address to serve prometheus metrics, disabled if empty")
	flags.DurationVar(&o.duration, "duration", 0, "stop after duration, run until interrupted if zero")
	flags.DurationVar(&o.artifacts, "artifacts", 0, "inject artifact with the interval, disabled if zero")
	return cmd
}

func run(ctx context.Context, o runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if o.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.duration)
		defer cancel()
	}

	d, err := loadDefinition(o.pipeline)
	if err != nil {
		return err
	}
	a, err := device.NewSynthetic(o.channels, o.sampleRate,
		device.WithSeed(o.seed),
		device.WithAdapterLogger(logger),
	)
	if err != nil {
		return err
	}

	if o.metrics != "" {
		srv := &http.Server{
			Addr:              o.metrics,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server: ", err)
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics at ", o.metrics)
	}

	s, err := session.New(ctx, session.Config{Adapter: a, Definition: d}, session.WithLogger(logger))
	if err != nil {
		return err
	}
	for _, t := range device.Bands {
		if _, err := s.AddRawHandler(t, func(e bci.Event) {
			logger.Debug(e)
		}); err != nil {
			return err
		}
	}

	if o.artifacts > 0 {
		go injectArtifacts(ctx, a, o.artifacts, int(o.sampleRate/10))
	}

	<-s.Done()
	err = s.Close()
	logger.Info("connection status: ", s.ConnectionStatus())
	for component, counters := range metric.GetAll() {
		logger.Info(component, ": ", counters)
	}
	if err != nil {
		return err
	}
	// duration timeout is a deliberate stop.
	if err := s.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func injectArtifacts(ctx context.Context, a *device.Synthetic, interval time.Duration, samples int) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			logger.Info("injecting artifact")
			a.InjectArtifact(1000, samples)
		}
	}
}
