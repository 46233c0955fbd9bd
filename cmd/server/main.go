// Firstline is an L1 incident triage service: it classifies free-text alerts,
// guides reporters through a short wizard, and hands summaries to L2/L3.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"github.com/joho/godotenv"
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
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/linnemanlabs/firstline/internal/authmw"
	fc "github.com/linnemanlabs/firstline/internal/cfg"
	"github.com/linnemanlabs/firstline/internal/chatapi"
	"github.com/linnemanlabs/firstline/internal/dialog"
	"github.com/linnemanlabs/firstline/internal/directory"
	"github.com/linnemanlabs/firstline/internal/notify/slack"
	"github.com/linnemanlabs/firstline/internal/postgres"
	"github.com/linnemanlabs/firstline/internal/reports"
	"github.com/linnemanlabs/firstline/internal/reports/kafkasink"
	"github.com/linnemanlabs/firstline/internal/reports/pgstore"
	"github.com/linnemanlabs/firstline/internal/telegram"
	"github.com/linnemanlabs/firstline/internal/triage"
	"github.com/linnemanlabs/firstline/internal/triage/memstore"
)

const appName = "firstline"
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

	// go-core packages and the app share flag.CommandLine
	var (
		appCfg    fc.Config
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
	var (
		showVersion bool
		envFile     string
	)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.StringVar(&envFile, "env-file", ".env", "dotenv file loaded into the environment before reading FIRSTLINE_ variables")

	// Precedence: flags, then process env, then .env file.
	flag.Parse()
	if showVersion {
		fmt.Printf(
			"%s (%s) %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Component, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		return nil
	}

	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	cfg.FillFromEnv(flag.CommandLine, "FIRSTLINE_", func(format string, args ...any) {
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
		"session_ttl", appCfg.SessionTTL.String(),
		"max_inflight_deliveries", appCfg.MaxInflightDeliveries,
		"api_auth", len(appCfg.APITokens()) > 0,
		"telegram", appCfg.TelegramToken != "",
		"archive_postgres", appCfg.DatabaseURL != "",
		"archive_kafka", len(appCfg.Brokers()) > 0,
		"enable_pprof", opsCfg.EnablePprof,
		"enable_pyroscope", profCfg.EnablePyroscope,
		"enable_tracing", traceCfg.EnableTracing,
		"trace_sample", traceCfg.TraceSample,
		"otlp_endpoint", traceCfg.OTLPEndpoint,
		"trusted_proxy_hops", httpmwCfg.TrustedProxyHops,
	)

	// Profiling starts before anything else allocates.
	profOpts := profCfg.ToOptions()
	profOpts.AppName = v.AppName
	profOpts.Tags = map[string]string{
		"app":       v.AppName,
		"component": v.Component,
		"version":   vi.Version,
		"commit":    vi.Commit,
		"build_id":  vi.BuildId,
		"source":    "lmlabs-go-agent",
	}
	stopProf, profErr := prof.Start(ctx, profOpts)
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", profCfg.PyroServer)
	}
	if stopProf == nil {
		stopProf = func() {}
	}
	defer stopProf()

	traceOpts := traceCfg.ToOptions()
	traceOpts.Service = v.AppName
	traceOpts.Component = v.Component
	traceOpts.Version = v.Version

	shutdownOtelx, err := otelx.Init(ctx, traceOpts)
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	if shutdownOtelx == nil {
		shutdownOtelx = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOtelx(context.Background()) }()

	// Tag spans with profile ids so traces link to flame graphs
	if profErr == nil && profCfg.EnablePyroscope {
		otel.SetTracerProvider(otelpyroscope.NewTracerProvider(otel.GetTracerProvider()))
	}

	var m = metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", &vi)
	m.SetProfilingActive(profErr == nil && profCfg.EnablePyroscope)

	dialogMetrics := dialog.NewMetrics(m.Registry())

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "firstline_db_query_duration_seconds",
		Help:    "Duration of individual database queries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "caller", "outcome"})
	m.Registry().MustRegister(dbQueryDuration)

	postgres.SetQueryObserver(postgres.QueryObserverFunc(
		func(_ context.Context, operation, caller, outcome string, dur time.Duration) {
			dbQueryDuration.WithLabelValues(operation, caller, outcome).Observe(dur.Seconds())
		},
	))

	// Contact directory: builtin unless a file is configured
	dir, err := directory.Load(appCfg.DirectoryFile)
	if err != nil {
		return fmt.Errorf("directory: %w", err)
	}
	L.Info(ctx, "loaded directory", "file", appCfg.DirectoryFile, "contacts", len(dir.Contacts))

	// Report archives, each optional
	var (
		archive reports.Multi
		history reports.Reader
	)
	if appCfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, appCfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres pool: %w", err)
		}
		defer pool.Close()
		pgStore, err := pgstore.New(ctx, pool)
		if err != nil {
			return fmt.Errorf("pgstore init: %w", err)
		}
		archive = append(archive, pgStore)
		history = pgStore
		L.Info(ctx, "archiving summaries", "sink", "postgres")
	}
	if brokers := appCfg.Brokers(); len(brokers) > 0 {
		sink := kafkasink.New(brokers, appCfg.KafkaTopic)
		defer func() {
			if err := sink.Close(); err != nil {
				L.Error(context.Background(), err, "kafka sink close")
			}
		}()
		archive = append(archive, sink)
		L.Info(ctx, "archiving summaries", "sink", "kafka", "topic", appCfg.KafkaTopic)
	}

	// Drafts live in memory only and are lost on restart.
	store := memstore.New(
		memstore.WithTTL(appCfg.SessionTTL),
		memstore.WithEvictHook(dialogMetrics.ObserveEvictions),
	)

	dialogOpts := []dialog.Option{
		dialog.WithNotifier(slack.New(appCfg.SlackWebhookURL, L)),
		dialog.WithHooks(dialogMetrics.Hooks()),
		dialog.WithMaxInflight(appCfg.MaxInflightDeliveries),
	}
	if len(archive) > 0 {
		dialogOpts = append(dialogOpts, dialog.WithArchive(archive))
	}
	controller := dialog.New(store, triage.NewGate(appCfg.AuthCodes()...), dir, L, dialogOpts...)

	// Readiness fails once shutdown starts so traffic drains away first.
	var shutdownGate health.ShutdownGate

	readiness := health.All(
		shutdownGate.Probe(),
	)
	liveness := health.Fixed(true, "")

	// Ops listener: metrics, probes, pprof.
	opsOpts := opsCfg.ToOptions()
	opsOpts.Metrics = m.Handler()
	opsOpts.Health = liveness
	opsOpts.Readiness = readiness
	opsOpts.UseRecoverMW = true
	opsOpts.OnPanic = m.IncHttpPanic

	opsHTTPStop, err := opshttp.Start(ctx, L, opsOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return err
	}
	defer func() {
		err := opsHTTPStop(context.Background())
		if err != nil {
			L.Error(ctx, err, "failed to stop ops http listener")
		}
	}()

	var apiOpts []chatapi.Option
	if tokens := appCfg.APITokens(); len(tokens) > 0 {
		apiOpts = append(apiOpts, chatapi.WithAuth(authmw.BearerToken(tokens...)))
	}
	if history != nil {
		apiOpts = append(apiOpts, chatapi.WithReports(history))
	}
	api := chatapi.New(L, controller, store, apiOpts...)

	h := newChatHandler(routerDeps{
		logger:           L,
		healthz:          http.HandlerFunc(health.HealthzHandler(liveness)),
		readyz:           http.HandlerFunc(health.ReadyzHandler(readiness)),
		instrument:       func(next http.Handler) http.Handler { return m.Middleware(next) },
		trustedProxyHops: httpmwCfg.TrustedProxyHops,
	}, api.RegisterRoutes)

	serverOpts, err := httpCfg.ToOptions()
	if err != nil {
		L.Error(ctx, err, "invalid http config")
		return err
	}

	chatHTTPStop, err := httpserver.Start(ctx, fmt.Sprintf(":%d", appCfg.APIPort), h, L, serverOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start chat api http listener")
		return err
	}
	defer func() {
		err := chatHTTPStop(context.Background())
		if err != nil {
			L.Error(ctx, err, "failed to stop chat api http listener")
		}
	}()

	// Optional Telegram transport, polled until shutdown
	stopTelegram := func(context.Context) error { return nil }
	if appCfg.TelegramToken != "" {
		tg, err := telegram.New(appCfg.TelegramToken, controller, L.With("transport", "telegram"))
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		tgCtx, tgCancel := context.WithCancel(context.WithoutCancel(ctx))
		var tgWG sync.WaitGroup
		tgWG.Add(1)
		go func() {
			defer tgWG.Done()
			tg.Run(tgCtx)
		}()
		stopTelegram = func(c context.Context) error {
			tgCancel()
			return waitCtx(c, tgWG.Wait)
		}
		defer tgCancel()
		L.Info(ctx, "telegram transport started")
	}

	if err := notifySystemd(); err != nil {
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()

	L.Info(context.Background(), "shutdown signal received")

	shutdownGate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed")

	awaitDrain(context.Background(), L, time.Duration(appCfg.DrainSeconds)*time.Second)

	// Inbound transports go first so no delivery starts while we wait on them.
	stopInOrder(context.Background(), L, time.Duration(appCfg.ShutdownBudgetSeconds)*time.Second, []stopStep{
		{"chat api http server", chatHTTPStop},
		{"telegram transport", stopTelegram},
		{"summary deliveries", func(c context.Context) error { return waitCtx(c, controller.Wait) }},
		{"ops http server", opsHTTPStop},
		{"otel", shutdownOtelx},
	})

	stopProf()

	L.Info(context.Background(), "shutdown complete")
	return nil
}

// loadEnvFile loads path into the process environment. A missing file is
// not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr) //nolint:gosec,noctx // G704: addr is from NOTIFY_SOCKET set by systemd not user input, no context support in net package for unixgram sockets
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	return nil
}
