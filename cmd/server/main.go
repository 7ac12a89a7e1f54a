// Docket is a support ticket triage service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/health"
	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/httpserver"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/metrics"
	"github.com/linnemanlabs/go-core/opshttp"
	"github.com/linnemanlabs/go-core/otelx"
	"github.com/linnemanlabs/go-core/prof"
	v "github.com/linnemanlabs/go-core/version"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/linnemanlabs/docket/internal/authmw"
	"github.com/linnemanlabs/docket/internal/bootstrap"
	dc "github.com/linnemanlabs/docket/internal/cfg"
	"github.com/linnemanlabs/docket/internal/notify/slack"
	"github.com/linnemanlabs/docket/internal/ticketapi"
	"github.com/linnemanlabs/docket/internal/triage"
	"github.com/linnemanlabs/docket/internal/triage/memstore"
)

const appName = "docket"
const component = "server"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v.AppName = appName
	v.Component = component
	vi := v.Get()

	var (
		appCfg    dc.Config
		httpCfg   httpserver.Config
		httpmwCfg httpmw.Config
		logCfg    log.Config
		opsCfg    opshttp.Config
		profCfg   prof.Config
		traceCfg  otelx.Config
	)
	appCfg.RegisterFlags(flag.CommandLine)
	httpCfg.RegisterFlags(flag.CommandLine)
	httpmwCfg.RegisterFlags(flag.CommandLine)
	logCfg.RegisterFlags(flag.CommandLine)
	opsCfg.RegisterFlags(flag.CommandLine)
	profCfg.RegisterFlags(flag.CommandLine)
	traceCfg.RegisterFlags(flag.CommandLine)
	var showVersion bool
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")

	flag.Parse()
	if showVersion {
		fmt.Printf(
			"%s (%s) %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Component, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		return nil
	}

	// DOCKET_* environment variables fill flags not given on the command line
	cfg.FillFromEnv(flag.CommandLine, "DOCKET_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := errors.Join(
		appCfg.Validate(),
		httpCfg.Validate(),
		httpmwCfg.Validate(),
		logCfg.Validate(),
		opsCfg.Validate(),
		profCfg.Validate(),
		traceCfg.Validate(),
	); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if appCfg.APIPort == opsCfg.Port {
		return fmt.Errorf("http and admin ports must differ (both %d)", appCfg.APIPort)
	}

	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()
	L := lg.With("component", vi.Component)
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"http_port", appCfg.APIPort,
		"admin_port", opsCfg.Port,
		"enable_pyroscope", profCfg.EnablePyroscope,
		"enable_tracing", traceCfg.EnableTracing,
		"otlp_endpoint", traceCfg.OTLPEndpoint,
		"trusted_proxy_hops", httpmwCfg.TrustedProxyHops,
		"model_enabled", appCfg.ModelEnabled,
		"claude_model", appCfg.ClaudeModel,
		"tools", appCfg.EnabledTools,
		"api_auth", appCfg.APIToken != "",
		"recent_verdicts", appCfg.RecentVerdicts,
	)

	// profiling starts first so the whole process lifetime is sampled
	profOpts := profCfg.ToOptions()
	profOpts.AppName = v.AppName
	profOpts.Tags = map[string]string{
		"app":       v.AppName,
		"component": v.Component,
		"version":   vi.Version,
		"commit":    vi.Commit,
		"build_id":  vi.BuildId,
	}
	stopProf, profErr := prof.Start(ctx, profOpts)
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", profCfg.PyroServer)
	}
	if stopProf != nil {
		defer stopProf()
	}
	profiling := profErr == nil && profCfg.EnablePyroscope

	traceOpts := traceCfg.ToOptions()
	traceOpts.Service = v.AppName
	traceOpts.Component = v.Component
	traceOpts.Version = v.Version
	shutdownOtelx, err := otelx.Init(ctx, traceOpts)
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	// span ids on pyroscope samples link triage spans to profiles
	if profiling {
		otel.SetTracerProvider(otelpyroscope.NewTracerProvider(otel.GetTracerProvider()))
	}

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, component, &vi)
	m.SetProfilingActive(profiling)
	triageMetrics := triage.NewMetrics(m.Registry())

	// model calls go through otelhttp so they show up as client spans under triage.run
	built, err := bootstrap.Build(ctx, &appCfg, bootstrap.Options{
		Logger:     L,
		Hooks:      triageMetrics.Hooks(),
		HTTPClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	})
	if err != nil {
		return fmt.Errorf("build triage engine: %w", err)
	}

	apiOpts := []ticketapi.Option{
		ticketapi.WithAuth(authmw.BearerToken(appCfg.APIToken)),
	}
	if appCfg.SlackWebhookURL != "" {
		apiOpts = append(apiOpts, ticketapi.WithNotifier(slack.New(appCfg.SlackWebhookURL, L)))
		L.Info(ctx, "notifier enabled", "type", "slack")
	}
	if appCfg.RecentVerdicts > 0 {
		apiOpts = append(apiOpts, ticketapi.WithStore(memstore.New(appCfg.RecentVerdicts)))
		L.Info(ctx, "verdict lookup enabled", "capacity", appCfg.RecentVerdicts)
	}
	ticketAPI := ticketapi.New(L, built.Engine, apiOpts...)

	// readiness fails once shutdown starts so the load balancer drains us
	var shutdownGate health.ShutdownGate
	readiness := health.All(shutdownGate.Probe())
	liveness := health.Fixed(true, "")

	opsOpts := opsCfg.ToOptions()
	opsOpts.Metrics = m.Handler()
	opsOpts.Health = liveness
	opsOpts.Readiness = readiness
	opsOpts.UseRecoverMW = true
	opsOpts.OnPanic = m.IncHttpPanic

	// ops listener is internal only; opshttp rejects public and forwarded clients
	opsHTTPStop, err := opshttp.Start(ctx, L, opsOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return err
	}

	h := apiHandler(handlerDeps{
		logger:      L,
		api:         ticketAPI,
		healthz:     health.HealthzHandler(liveness),
		readyz:      health.ReadyzHandler(readiness),
		metricsMW:   m.Middleware,
		trustedHops: httpmwCfg.TrustedProxyHops,
	})

	serverOpts, err := httpCfg.ToOptions()
	if err != nil {
		L.Error(ctx, err, "invalid http config")
		return err
	}
	apiHTTPStop, err := httpserver.Start(ctx, fmt.Sprintf(":%d", appCfg.APIPort), h, L, serverOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start api http listener")
		_ = opsHTTPStop(context.Background())
		return err
	}

	if err := notifySystemd(); err != nil {
		// not fatal; systemd kills the unit after its start timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()
	bg := context.Background()
	L.Info(bg, "shutdown signal received")

	shutdownGate.Set("draining")
	L.Info(bg, "shutdown gate closed, draining", "drain_seconds", appCfg.DrainSeconds)

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	if waitDrain(time.Duration(appCfg.DrainSeconds)*time.Second, forceCh) {
		L.Info(bg, "drain period complete")
	} else {
		L.Warn(bg, "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	// queued escalation notifications go out after the listener stops taking tickets
	_ = stopAll(L, time.Duration(appCfg.ShutdownBudgetSeconds)*time.Second, []stopStep{
		{"api http server", apiHTTPStop},
		{"escalation notifications", ticketAPI.Drain},
		{"ops http server", opsHTTPStop},
		{"otel", shutdownOtelx},
	})
	L.Info(bg, "shutdown complete")
	return nil
}
