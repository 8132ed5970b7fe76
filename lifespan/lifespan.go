// Package lifespan implements the supervisor described in spec.md §5 and
// grounded in original_source/opsi/lifespan/lifespan.py and
// threadserver.py: starts the Evaluator (continuous Pipeline.Run loop) and
// the API server as cooperating workers, signals shutdown via a shared
// event, waits for both to stop gracefully, and hard-kills the process if
// they stall past a force-terminate timeout.
//
// Go replaces the original's threads-plus-asyncio-event-loops with two
// goroutines and a context.Context: cancelling the context is the "shared
// event" both workers poll, exactly like the Python shutdown_event.
package lifespan

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/opensight-project/opensight/concurrency"
	"github.com/opensight-project/opensight/emit"
	"github.com/opensight-project/opensight/manager"
	"github.com/opensight-project/opensight/metrics"
	"github.com/opensight-project/opensight/pipeline"
)

// ForceTerminateTimeout is the default grace period a Supervisor waits for
// both workers to stop before calling os.Exit, per spec.md §5's "force-
// terminate timer (default 10 s)".
const ForceTerminateTimeout = 10 * time.Second

// HostController performs the OS-level half of a host shutdown/restart
// request. spec.md §1 places OS integration (service manager control, host
// reboot) out of scope for the core; HostController is the seam an
// external collaborator implements it through. A nil HostController makes
// ShutdownHost behave exactly like Shutdown (process-level only).
type HostController interface {
	RebootHost(ctx context.Context) error
	PoweroffHost(ctx context.Context) error
}

type config struct {
	emitter        emit.Emitter
	metrics        *metrics.PrometheusMetrics
	forceTerminate time.Duration
	exit           func(int)
	host           HostController
}

// WithHostController sets the collaborator ShutdownHost delegates to for
// the actual OS reboot (restart=true) or poweroff call.
func WithHostController(h HostController) Option { return func(c *config) { c.host = h } }

// Option configures a Supervisor.
type Option func(*config)

// WithEmitter sets the Emitter used for lifecycle diagnostics.
func WithEmitter(e emit.Emitter) Option { return func(c *config) { c.emitter = e } }

// WithMetrics sets the metrics sink the evaluator loop reports pass
// latency and queue depth to.
func WithMetrics(m *metrics.PrometheusMetrics) Option { return func(c *config) { c.metrics = m } }

// WithForceTerminate overrides the force-terminate grace period.
func WithForceTerminate(d time.Duration) Option { return func(c *config) { c.forceTerminate = d } }

// withExit overrides the hard-kill call for tests; unexported since no
// production caller should ever need anything but os.Exit.
func withExit(fn func(int)) Option { return func(c *config) { c.exit = fn } }

// Supervisor owns the Evaluator and API server workers and the
// restart-vs-exit decision, mirroring Lifespan's make_threads/shutdown.
type Supervisor struct {
	pipeline *pipeline.Pipeline
	manager  *manager.Manager
	lock     *concurrency.FifoLock
	httpSrv  *http.Server

	cfg config

	cancel    context.CancelFunc
	restart   bool
	runErr    error
	evalDone  chan struct{}
	httpDone  chan struct{}
}

// New constructs a Supervisor driving p's continuous evaluation and srv's
// HTTP serving, coordinated by lock — the same FifoLock the Importer
// acquires for each mutation, per spec.md §5's "both contend for a single
// logical critical section."
func New(p *pipeline.Pipeline, mgr *manager.Manager, lock *concurrency.FifoLock, srv *http.Server, opts ...Option) *Supervisor {
	cfg := config{emitter: emit.NullEmitter{}, forceTerminate: ForceTerminateTimeout, exit: os.Exit}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Supervisor{
		pipeline: p,
		manager:  mgr,
		lock:     lock,
		httpSrv:  srv,
		cfg:      cfg,
		evalDone: make(chan struct{}),
		httpDone: make(chan struct{}),
	}
}

// Run starts the Evaluator and API workers and blocks until ctx is
// cancelled — by an OS signal the caller wires up, or by a call to
// Shutdown/ShutdownHost — then waits for both to stop (or force-terminates
// past the configured grace period), mirroring Lifespan.make_threads +
// shutdown. It returns once shutdown is complete; the caller decides
// whether to exec a fresh process based on Restart().
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	go s.runEvaluator(ctx)
	go s.runHTTP(ctx)

	<-ctx.Done()
	s.emit("lifespan_shutdown_signaled", nil)

	done := make(chan struct{})
	go func() {
		<-s.evalDone
		<-s.httpDone
		close(done)
	}()

	select {
	case <-done:
		s.emit("lifespan_shutdown_clean", nil)
	case <-time.After(s.cfg.forceTerminate):
		s.emit("lifespan_shutdown_forced", map[string]interface{}{"timeout_s": s.cfg.forceTerminate.Seconds()})
		s.cfg.exit(1)
	}

	s.manager.Shutdown()
	return s.runErr
}

// runEvaluator is the continuous mainloop: acquire the FIFO lock, run one
// pass, release, repeat, mirroring Program.mainloop. Run's own errors
// (topological sort failures from a structurally broken pipeline) are
// logged and swallowed, matching the original's "log and continue" policy
// for anything short of a shutdown signal.
//
// "Drain the current pass" (spec.md §5) needs no extra step here: Lock
// only honors ctx cancellation while *waiting* for admission, never while a
// pass already holds the lock, so a pass in flight when ctx is cancelled
// always runs to completion before the next loop iteration observes
// ctx.Done() and exits.
func (s *Supervisor) runEvaluator(ctx context.Context) {
	defer close(s.evalDone)

	for {
		select {
		case <-ctx.Done():
			s.pipeline.DisposeAll()
			return
		default:
		}

		start := time.Now()
		err := s.lock.WithLock(ctx, func() error {
			return s.pipeline.Run(nil, s.onNodeError)
		})
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			s.emit("pass_error", map[string]interface{}{"error": err.Error()})
			continue
		}

		if s.cfg.metrics != nil {
			s.cfg.metrics.RecordPassLatency("", time.Since(start))
			s.cfg.metrics.UpdateQueueDepth(s.lock.Waiting())
		}
	}
}

func (s *Supervisor) onNodeError(nodeID string, err error) {
	s.emit("node_error", map[string]interface{}{"node_id": nodeID, "error": err.Error()})
}

// runHTTP serves the API until ctx is cancelled, then shuts the server
// down gracefully, mirroring ThreadedWebserver.run's should_exit handshake.
func (s *Supervisor) runHTTP(ctx context.Context) {
	defer close(s.httpDone)

	if s.httpSrv == nil {
		return
	}

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.emit("http_error", map[string]interface{}{"error": err.Error()})
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.forceTerminate)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		s.emit("http_shutdown_error", map[string]interface{}{"error": err.Error()})
	}
}

// Shutdown implements httpapi.Lifecycle: requests a graceful stop and, if
// restart is true, marks the process for relaunch once Run returns. It is
// a no-op if called before Run (no cancel func bound yet).
func (s *Supervisor) Shutdown(_ context.Context, restart bool) error {
	s.restart = restart
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// ShutdownHost implements httpapi.Lifecycle: stops the runtime the same
// way Shutdown does, then delegates the actual reboot/poweroff to the
// configured HostController, if any. Without one bound, this behaves
// exactly like Shutdown.
func (s *Supervisor) ShutdownHost(ctx context.Context, restart bool) error {
	if err := s.Shutdown(ctx, restart); err != nil {
		return err
	}
	if s.cfg.host == nil {
		return nil
	}
	if restart {
		return s.cfg.host.RebootHost(ctx)
	}
	return s.cfg.host.PoweroffHost(ctx)
}

// Restart reports whether the most recent Shutdown call requested a
// restart rather than a full exit, letting main() decide whether to
// re-exec itself after Run returns.
func (s *Supervisor) Restart() bool { return s.restart }

func (s *Supervisor) emit(msg string, meta map[string]interface{}) {
	s.cfg.emitter.Emit(emit.Event{Msg: msg, Meta: meta})
}
