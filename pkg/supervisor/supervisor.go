package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nezumi0627/ClawBridge/pkg/debug"
	"github.com/nezumi0627/ClawBridge/pkg/observability"
)

// DefaultWorkingModels seeds the working-model set before the first
// successful refresh.
var DefaultWorkingModels = []string{"gpt-4", "gpt-4o", "gpt-3.5-turbo", "llama3", "command-r"}

// DefaultReadyMarkers are output fragments that indicate the gateway is
// listening.
var DefaultReadyMarkers = []string{
	"Uvicorn running",
	"Starting server",
	"Application startup complete",
	"127.0.0.1:",
	"Uvicorn",
}

// RestartConfig controls automatic restarts after the process exits.
type RestartConfig struct {
	Enabled         bool
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxRestarts is the number of consecutive restarts without reaching
	// ready after which the supervisor gives up.
	MaxRestarts int
}

// Config describes the process to supervise.
type Config struct {
	Command string
	Args    []string
	Dir     string
	// Env is appended to the parent environment ("KEY=value").
	Env  []string
	Port int

	ReadyMarkers      []string
	HealthInterval    time.Duration
	HealthTimeout     time.Duration
	MaxHealthAttempts int
	// FallbackDelay starts health polling when no marker was seen.
	FallbackDelay time.Duration
	// StopGrace is how long Stop waits after interrupting before it kills.
	StopGrace time.Duration

	ModelsURL             string
	ModelsRefreshInterval time.Duration

	Restart RestartConfig
}

func (c *Config) setDefaults() {
	if len(c.ReadyMarkers) == 0 {
		c.ReadyMarkers = DefaultReadyMarkers
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = time.Second
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = 2 * time.Second
	}
	if c.MaxHealthAttempts <= 0 {
		c.MaxHealthAttempts = 60
	}
	if c.FallbackDelay <= 0 {
		c.FallbackDelay = 2 * time.Second
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 5 * time.Second
	}
	if c.ModelsRefreshInterval <= 0 {
		c.ModelsRefreshInterval = 10 * time.Minute
	}
	if c.Restart.InitialInterval <= 0 {
		c.Restart.InitialInterval = 2 * time.Second
	}
	if c.Restart.MaxInterval <= 0 {
		c.Restart.MaxInterval = time.Minute
	}
}

// ErrAlreadyRunning is returned by Start while a process is supervised.
var ErrAlreadyRunning = errors.New("gateway already running")

// process is one spawned child.
type process struct {
	cmd    *exec.Cmd
	marker chan struct{}
	done   chan struct{}
	err    error
}

// Supervisor owns one gateway process.
type Supervisor struct {
	cfg     Config
	baseURL string
	client  *http.Client

	mu     sync.RWMutex
	state  State
	models []string
	proc   *process

	cancel   context.CancelFunc
	loopDone chan struct{}

	refreshMu sync.Mutex
}

// New creates a supervisor. The process is not started until Start.
func New(cfg Config) *Supervisor {
	cfg.setDefaults()
	s := &Supervisor{
		cfg:     cfg,
		baseURL: fmt.Sprintf("http://127.0.0.1:%d", cfg.Port),
		client:  &http.Client{},
		state:   State{Phase: PhaseStopped},
		models:  append([]string(nil), DefaultWorkingModels...),
	}
	observability.SetGatewayPhase(string(PhaseStopped), phaseNames)
	return s
}

// BaseURL returns the gateway's HTTP root.
func (s *Supervisor) BaseURL() string {
	return s.baseURL
}

// Ready reports whether the gateway passed its health check.
func (s *Supervisor) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Phase == PhaseReady
}

// Snapshot returns a copy of the current state.
func (s *Supervisor) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// WorkingModels returns the models the gateway is known to serve.
func (s *Supervisor) WorkingModels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.models...)
}

// Start spawns the process and the goroutine that drives its phases.
// The supervisor runs until Stop is called or ctx is cancelled.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.loopDone != nil {
		select {
		case <-s.loopDone:
			// The previous process exited and was not restarted.
			s.cancel()
			s.cancel, s.loopDone = nil, nil
		default:
			s.mu.Unlock()
			return ErrAlreadyRunning
		}
	}
	s.mu.Unlock()

	p, err := s.spawn()
	if err != nil {
		s.setError(PhaseFailed, err)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.loopDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.run(runCtx, p)
	}()
	go s.RefreshModels(runCtx) //nolint:errcheck // failures keep the previous set
	return nil
}

// Stop ends supervision, interrupts the process, and kills it if it has
// not exited within the grace period or before ctx is done.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.loopDone
	s.cancel, s.loopDone = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	s.mu.Lock()
	p := s.proc
	s.proc = nil
	s.mu.Unlock()

	var err error
	if p != nil {
		err = terminate(ctx, p, s.cfg.StopGrace)
	}
	s.mu.Lock()
	s.state.Phase = PhaseStopped
	s.state.PID = 0
	s.mu.Unlock()
	observability.SetGatewayPhase(string(PhaseStopped), phaseNames)
	slog.Info("gateway stopped")
	return err
}

func terminate(ctx context.Context, p *process, grace time.Duration) error {
	if err := p.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		_ = p.cmd.Process.Kill()
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing gateway: %w", err)
	}
	<-p.done
	return nil
}

// spawn starts a child and its output readers.
func (s *Supervisor) spawn() (*process, error) {
	cmd := exec.Command(s.cfg.Command, s.cfg.Args...)
	cmd.Dir = s.cfg.Dir
	cmd.Env = append(os.Environ(), s.cfg.Env...)
	cmd.Env = append(cmd.Env, fmt.Sprintf("G4F_PORT=%d", s.cfg.Port))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("gateway stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("gateway stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting gateway %q: %w", s.cfg.Command, err)
	}

	p := &process{
		cmd:    cmd,
		marker: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		s.readLines(stdout, p, s.handleStdout)
	}()
	go func() {
		defer readers.Done()
		s.readLines(stderr, p, s.handleStderr)
	}()
	go func() {
		// Wait must follow the last pipe read.
		readers.Wait()
		p.err = cmd.Wait()
		close(p.done)
	}()

	s.mu.Lock()
	s.proc = p
	s.state.Phase = PhaseStarting
	s.state.PID = cmd.Process.Pid
	s.state.StartedAt = time.Now()
	s.state.HealthAttempts = 0
	s.mu.Unlock()
	observability.SetGatewayPhase(string(PhaseStarting), phaseNames)

	slog.Info("gateway started",
		slog.String("command", s.cfg.Command),
		slog.Int("pid", cmd.Process.Pid),
		slog.Int("port", s.cfg.Port),
	)
	return p, nil
}

func (s *Supervisor) readLines(r io.Reader, p *process, handle func(string) bool) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if handle(sc.Text()) {
			select {
			case p.marker <- struct{}{}:
			default:
			}
		}
	}
}

// handleStdout logs a stdout line and reports whether it is a readiness
// marker.
func (s *Supervisor) handleStdout(line string) bool {
	debug.Log("supervisor", "gateway stdout", "line", line)
	return hasMarker(line, s.cfg.ReadyMarkers)
}

// handleStderr classifies a stderr line. Uvicorn logs its startup banner
// to stderr, so markers count here too.
func (s *Supervisor) handleStderr(line string) bool {
	switch Classify(line) {
	case LineMissingDependency:
		if mod := MissingModule(line); mod != "" {
			slog.Error("gateway missing package",
				slog.String("module", mod),
				slog.String("hint", "pip install "+mod),
			)
		} else {
			slog.Error("gateway missing requirements", slog.String("detail", debug.Truncate(line, 300)))
		}
		s.mu.Lock()
		s.state.LastError = debug.Truncate(line, 300)
		s.mu.Unlock()
	case LineWarning:
		slog.Warn("gateway error output", slog.String("line", debug.Truncate(line, 200)))
	default:
		debug.Log("supervisor", "gateway stderr", "line", line)
	}
	return hasMarker(line, s.cfg.ReadyMarkers)
}

// run drives the phase machine for p and any restarted successors.
func (s *Supervisor) run(ctx context.Context, p *process) {
	health := time.NewTicker(s.cfg.HealthInterval)
	defer health.Stop()
	refresh := time.NewTicker(s.cfg.ModelsRefreshInterval)
	defer refresh.Stop()
	fallback := time.NewTimer(s.cfg.FallbackDelay)
	defer fallback.Stop()

	var restarts backoff.BackOff
	if s.cfg.Restart.Enabled {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = s.cfg.Restart.InitialInterval
		exp.MaxInterval = s.cfg.Restart.MaxInterval
		exp.MaxElapsedTime = 0
		restarts = backoff.WithMaxRetries(exp, uint64(max(s.cfg.Restart.MaxRestarts, 1)))
	}

	polling := false
	for {
		select {
		case <-ctx.Done():
			return

		case <-p.marker:
			polling = s.beginHealthCheck(polling, "marker")

		case <-fallback.C:
			polling = s.beginHealthCheck(polling, "fallback")

		case <-health.C:
			if !polling {
				continue
			}
			if s.Snapshot().Phase != PhaseHealthChecking {
				continue
			}
			if s.healthStep(ctx) {
				if restarts != nil {
					restarts.Reset()
				}
				go s.RefreshModels(ctx) //nolint:errcheck // failures keep the previous set
			}

		case <-refresh.C:
			if s.Snapshot().Phase == PhaseFailed && s.probe(ctx) {
				s.markReady()
			}
			go s.RefreshModels(ctx) //nolint:errcheck // failures keep the previous set

		case <-p.done:
			s.handleExit(p)
			if restarts == nil {
				return
			}
			next, ok := s.restart(ctx, restarts)
			if !ok {
				return
			}
			p = next
			polling = false
			fallback.Reset(s.cfg.FallbackDelay)
		}
	}
}

func (s *Supervisor) beginHealthCheck(polling bool, reason string) bool {
	if polling {
		return true
	}
	s.mu.Lock()
	if s.state.Phase == PhaseStarting {
		s.state.Phase = PhaseHealthChecking
	}
	s.mu.Unlock()
	observability.SetGatewayPhase(string(s.Snapshot().Phase), phaseNames)
	debug.Log("supervisor", "health polling started", "reason", reason)
	return true
}

// healthStep performs one health probe and reports whether the gateway
// became ready.
func (s *Supervisor) healthStep(ctx context.Context) bool {
	ok := s.probe(ctx)
	if ok {
		s.markReady()
		return true
	}

	s.mu.Lock()
	s.state.HealthAttempts++
	exhausted := s.state.HealthAttempts >= s.cfg.MaxHealthAttempts
	if exhausted {
		s.state.Phase = PhaseFailed
		s.state.LastError = "health check timed out"
	}
	s.mu.Unlock()

	if exhausted {
		observability.SetGatewayPhase(string(PhaseFailed), phaseNames)
		slog.Warn("gateway health check timed out, process left running",
			slog.Int("attempts", s.cfg.MaxHealthAttempts))
	}
	return false
}

// probe issues one GET /v1/models.
func (s *Supervisor) probe(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, s.cfg.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(pctx, http.MethodGet, s.baseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)

	s.mu.Lock()
	s.state.LastHealthCheckAt = time.Now()
	s.mu.Unlock()

	if err != nil {
		debug.Log("supervisor", "health probe failed", "error", err)
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (s *Supervisor) markReady() {
	s.mu.Lock()
	s.state.Phase = PhaseReady
	s.state.ConsecutiveFailures = 0
	s.state.LastError = ""
	s.mu.Unlock()
	observability.SetGatewayPhase(string(PhaseReady), phaseNames)
	slog.Info("gateway is ready", slog.String("url", s.baseURL))
}

func (s *Supervisor) handleExit(p *process) {
	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}

	s.mu.Lock()
	if s.proc == p {
		s.proc = nil
	}
	wasReady := s.state.Phase == PhaseReady
	s.state.Phase = PhaseStopped
	s.state.PID = 0
	if !wasReady {
		s.state.ConsecutiveFailures++
	}
	if p.err != nil {
		s.state.LastError = p.err.Error()
	}
	s.mu.Unlock()
	observability.SetGatewayPhase(string(PhaseStopped), phaseNames)

	if code != 0 {
		slog.Warn("gateway exited", slog.Int("code", code))
	} else {
		slog.Info("gateway exited", slog.Int("code", code))
	}
}

// restart waits out the backoff and respawns. It returns false when the
// breaker is open or ctx is done.
func (s *Supervisor) restart(ctx context.Context, b backoff.BackOff) (*process, bool) {
	for {
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			s.mu.Lock()
			s.state.Phase = PhaseFailed
			s.state.LastError = fmt.Sprintf("gave up after %d restarts: %s", s.state.Restarts, s.state.LastError)
			s.mu.Unlock()
			observability.SetGatewayPhase(string(PhaseFailed), phaseNames)
			slog.Error("gateway restart limit reached", slog.Int("restarts", s.Snapshot().Restarts))
			return nil, false
		}

		slog.Info("restarting gateway", slog.Duration("after", wait))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, false
		case <-timer.C:
		}

		p, err := s.spawn()
		s.mu.Lock()
		s.state.Restarts++
		s.mu.Unlock()
		observability.GatewayRestartsTotal.Inc()
		if err == nil {
			return p, true
		}
		s.setError(PhaseStopped, err)
		s.mu.Lock()
		s.state.ConsecutiveFailures++
		s.mu.Unlock()
	}
}

func (s *Supervisor) setError(phase Phase, err error) {
	s.mu.Lock()
	s.state.Phase = phase
	s.state.LastError = err.Error()
	s.mu.Unlock()
	observability.SetGatewayPhase(string(phase), phaseNames)
	slog.Error("gateway error", slog.String("error", err.Error()))
}
