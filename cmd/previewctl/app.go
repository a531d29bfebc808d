package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jzx17/resilience/pkg/config"
	"github.com/jzx17/resilience/pkg/network"
	"github.com/jzx17/resilience/pkg/preview"
	"github.com/jzx17/resilience/pkg/retry"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"
	"golang.org/x/sync/errgroup"
)

// App wires the monitor, coordinator and preview clients from configuration
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	dns      *dnscache.Resolver
	client   *http.Client

	monitor *network.Monitor
	coord   *retry.Coordinator
	loader  *preview.Loader

	metricsSrv *http.Server
	metricsLn  net.Listener
}

// FetchResult is the outcome of loading one path
type FetchResult struct {
	Path string
	URL  string
	Err  error
}

func newLogger(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})), nil
}

// NewApp builds every component; nothing runs until Start.
// monitorOpts are applied after the configured monitor options.
func NewApp(cfg *config.Config, logger *slog.Logger, monitorOpts ...network.Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		dns:      &dnscache.Resolver{},
	}
	a.client = newHTTPClient(a.dns)
	a.registry.MustRegister(collectors.NewGoCollector())

	netMetrics, err := network.NewMetrics(a.registry)
	if err != nil {
		return nil, fmt.Errorf("registering network metrics: %w", err)
	}

	var prober network.Prober
	if cfg.Network.ProbeURL != "" {
		prober = network.NewHTTPProber(cfg.Network.ProbeURL, network.WithHTTPClient(a.client))
	}
	a.monitor = network.NewMonitor(prober, append([]network.Option{
		network.WithConfig(cfg.Network.Config),
		network.WithLinkChecker(network.InterfaceLinkChecker{}),
		network.WithLogger(logger.With("component", "network")),
		network.WithMetrics(netMetrics),
	}, monitorOpts...)...)
	// cached addresses may be stale after the link comes back
	a.monitor.Subscribe(func(tr network.Transition) {
		if tr.Restored {
			a.dns.Refresh(true)
		}
	})

	retryMetrics, err := retry.NewMetricsHandler(a.registry)
	if err != nil {
		return nil, fmt.Errorf("registering retry metrics: %w", err)
	}
	retryLogger := logger.With("component", "retry")
	a.coord, err = retry.NewCoordinator(cfg.Retry,
		retry.WithConnectivity(a.monitor),
		retry.WithLogger(retryLogger),
		retry.WithEventHandler(retry.MultiEventHandler{
			retry.NewLogEventHandler(retryLogger),
			retryMetrics,
		}))
	if err != nil {
		return nil, err
	}

	if cfg.Preview.SignEndpoint != "" {
		resolver, err := preview.NewHTTPResolver(cfg.Preview.SignEndpoint,
			preview.WithResolverClient(a.client),
			preview.WithToken(cfg.Preview.Token),
			preview.WithExpiry(cfg.Preview.URLExpiry))
		if err != nil {
			return nil, err
		}
		a.loader = preview.NewLoader(resolver, a.coord,
			preview.WithLoaderLogger(logger.With("component", "preview")))
	}
	return a, nil
}

// Start begins network monitoring and serves metrics when enabled
func (a *App) Start(ctx context.Context) error {
	if err := a.monitor.Start(ctx); err != nil {
		return err
	}
	if !a.cfg.Metrics.Enabled {
		return nil
	}

	ln, err := net.Listen("tcp", a.cfg.Metrics.Addr)
	if err != nil {
		a.monitor.Stop()
		return fmt.Errorf("listening for metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	a.metricsLn = ln
	a.metricsSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Metrics server failed", "error", err)
		}
	}()
	a.logger.Info("Serving metrics", "addr", ln.Addr().String())
	return nil
}

// Stop shuts down the metrics server and the monitor
func (a *App) Stop(ctx context.Context) error {
	a.monitor.Stop()
	if a.metricsSrv == nil {
		return nil
	}
	return a.metricsSrv.Shutdown(ctx)
}

// MetricsAddr returns the bound metrics address, empty when not serving
func (a *App) MetricsAddr() string {
	if a.metricsLn == nil {
		return ""
	}
	return a.metricsLn.Addr().String()
}

// Probe runs one connectivity check
func (a *App) Probe(ctx context.Context) network.Snapshot {
	a.monitor.HandleOnline(ctx)
	return a.monitor.Snapshot()
}

// Fetch loads every path concurrently, at most limit at a time. A failed path
// does not stop the others.
func (a *App) Fetch(ctx context.Context, paths []string, limit int) ([]FetchResult, error) {
	if a.loader == nil {
		return nil, errors.New("preview.sign_endpoint is not configured")
	}

	results := make([]FetchResult, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, path := range paths {
		g.Go(func() error {
			url, err := a.loader.Load(ctx, path)
			results[i] = FetchResult{Path: path, URL: url, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// WatchAnalysis polls a job until it finishes
func (a *App) WatchAnalysis(ctx context.Context, jobID string, onUpdate func(preview.Update)) (preview.JobStatus, error) {
	if a.cfg.Preview.AnalysisEndpoint == "" {
		return "", errors.New("preview.analysis_endpoint is not configured")
	}
	poll, err := preview.HTTPStatusFunc(a.client, a.cfg.Preview.AnalysisEndpoint)
	if err != nil {
		return "", err
	}

	watcher := preview.NewAnalysisWatcher(poll, a.coord,
		preview.WithPollInterval(a.cfg.Preview.PollInterval),
		preview.WithStuckConfig(a.cfg.Stuck),
		preview.WithWatcherLogger(a.logger.With("component", "analysis")),
		preview.OnUpdate(onUpdate))
	return watcher.Watch(ctx, jobID)
}
