// Command opensight runs the node-graph execution runtime: it wires the
// Manager, Pipeline, Importer and Lifespan supervisor together behind a
// chi-routed HTTP API, following the shape of the teacher's
// examples/*/main.go programs (flags for configuration, functional options
// to build each component, structured logging to stdout).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensight-project/opensight/concurrency"
	"github.com/opensight-project/opensight/emit"
	"github.com/opensight-project/opensight/hook"
	"github.com/opensight-project/opensight/httpapi"
	"github.com/opensight-project/opensight/importer"
	"github.com/opensight-project/opensight/lifespan"
	"github.com/opensight-project/opensight/manager"
	"github.com/opensight-project/opensight/metrics"
	"github.com/opensight-project/opensight/modules/demo"
	"github.com/opensight-project/opensight/pipeline"
	"github.com/opensight-project/opensight/store"
)

var version = "dev"

type config struct {
	addr        string
	dataDir     string
	historyPath string
	logJSON     bool
	daemonMode  bool
	showVersion bool
}

func main() {
	cfg := parseFlags()

	if cfg.showVersion {
		fmt.Printf("opensight %s\n", version)
		return
	}

	os.Exit(run(cfg))
}

func parseFlags() config {
	var cfg config

	fs := flag.NewFlagSet("opensight", flag.ContinueOnError)
	fs.StringVar(&cfg.addr, "addr", "0.0.0.0:80", "HTTP listen address")
	fs.StringVar(&cfg.dataDir, "data-dir", "", "Data directory for nodetrees/preferences/calibration (default: platform-standard path)")
	fs.StringVar(&cfg.historyPath, "history-db", "", "Path to the import/benchmark history sqlite file (empty disables history)")
	fs.BoolVar(&cfg.logJSON, "log-json", false, "Emit structured logs as JSON lines instead of text")
	fs.BoolVar(&cfg.daemonMode, "daemon", false, "Report daemon mode in GET /api/config (process manager controls restart)")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	return cfg
}

// run wires every component together and blocks until the Lifespan
// supervisor returns, mirroring Program.__init__ + Program.run in the
// original entrypoint. The return value is the process exit code; a
// restart request (POST /api/restart) is reported but left to the
// invoking process supervisor (systemd, a container runtime) to act on,
// since re-exec is itself an OS-integration concern out of spec.md §1's
// scope.
func run(cfg config) int {
	runID := uuid.NewString()
	emitter := &runIDEmitter{runID: runID, next: emit.NewLogEmitter(os.Stdout, cfg.logJSON)}

	registry := prometheus.NewRegistry()
	promMetrics := metrics.NewPrometheusMetrics(registry)

	p := pipeline.New()
	mgr := manager.New(p, manager.WithEmitter(emitter))
	lock := concurrency.NewFifoLock()
	imp := importer.New(mgr, p, lock, importer.WithEmitter(emitter), importer.WithMetrics(promMetrics))

	demoBus := hook.NewBus()
	if err := mgr.RegisterModule(manager.ModuleInfo{Package: demo.Info.Package, Version: demo.Info.Version}, demo.Descriptors(demoBus), demoBus); err != nil {
		fmt.Fprintf(os.Stderr, "error: registering demo module: %v\n", err)
		return 1
	}

	var dataDirs []string
	if cfg.dataDir != "" {
		dataDirs = []string{cfg.dataDir}
	}
	persistence := store.NewPersistence(dataDirs...)

	var history *store.History
	if cfg.historyPath != "" {
		h, err := store.OpenHistory(cfg.historyPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: opening history database: %v\n", err)
			return 1
		}
		defer h.Close()
		history = h
	}

	srv := &httpapi.Server{
		Manager:     mgr,
		Pipeline:    p,
		Importer:    imp,
		Persistence: persistence,
		History:     history,
		Emitter:     emitter,
		Version:     version,
		DaemonMode:  cfg.daemonMode,
	}

	prefs := persistence.LoadPreferences()
	if err := srv.LoadStoredProfile(context.Background(), prefs.Profile); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load stored profile %d: %v\n", prefs.Profile, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", srv.Router())
	httpSrv := &http.Server{Addr: cfg.addr, Handler: mux}

	supervisor := lifespan.New(p, mgr, lock, httpSrv,
		lifespan.WithEmitter(emitter),
		lifespan.WithMetrics(promMetrics),
	)
	srv.Lifecycle = supervisor

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nshutting down...")
		cancel()
	}()

	emitter.Emit(emit.Event{RunID: runID, Msg: "startup", Meta: map[string]interface{}{"addr": cfg.addr, "version": version}})

	if err := supervisor.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	if supervisor.Restart() {
		fmt.Fprintln(os.Stderr, "restart requested; exiting for the process supervisor to relaunch")
	}

	return 0
}

// runIDEmitter stamps every Event with the process's run id before
// forwarding to next, since no single component in this runtime owns a
// run's whole lifetime the way emit.Event.RunID documents it should.
type runIDEmitter struct {
	runID string
	next  emit.Emitter
}

func (r *runIDEmitter) Emit(e emit.Event) {
	if e.RunID == "" {
		e.RunID = r.runID
	}
	r.next.Emit(e)
}

func (r *runIDEmitter) EmitBatch(ctx context.Context, events []emit.Event) error {
	for i := range events {
		if events[i].RunID == "" {
			events[i].RunID = r.runID
		}
	}
	return r.next.EmitBatch(ctx, events)
}

func (r *runIDEmitter) Flush(ctx context.Context) error { return r.next.Flush(ctx) }
