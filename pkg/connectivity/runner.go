package connectivity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nezumi0627/ClawBridge/pkg/api"
	"github.com/nezumi0627/ClawBridge/pkg/normalize"
	"github.com/nezumi0627/ClawBridge/pkg/observability"
	"github.com/nezumi0627/ClawBridge/pkg/storage"
)

// DefaultPrompt is sent to every combination.
const DefaultPrompt = `Say "Hello" in one word. Just respond with the word, nothing else.`

// Result is the outcome of one probe.
type Result = api.ProbeResult

var (
	// ErrAlreadyRunning is returned when a full run is requested while
	// another one is in progress.
	ErrAlreadyRunning = errors.New("tests already running")

	// ErrUnknownProvider is returned by TestProvider for providers outside
	// the catalog.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Prober sends one prompt straight to a backend, without fallback.
type Prober interface {
	Probe(ctx context.Context, backend, model string, messages []api.Message) (normalize.Parsed, time.Duration, error)
}

// WorkingModelSource reports the models the supervised gateway serves.
type WorkingModelSource interface {
	WorkingModels() []string
}

// Options tunes a full run. Zero fields take the runner's defaults; a
// negative BatchDelay disables the pause between batches.
type Options struct {
	Concurrency int
	BatchDelay  time.Duration
	Prompt      string
}

// Config configures a Runner.
type Config struct {
	// Defaults applies to runs whose Options leave a field unset.
	Defaults Options

	// Catalog overrides DefaultCatalog.
	Catalog []CatalogEntry

	// Gateway extends the gateway catalog entry. Optional.
	Gateway WorkingModelSource

	// Store mirrors the result set. Optional.
	Store storage.ResultStore
}

// run is the state of one full run.
type run struct {
	ctx     context.Context
	cancel  context.CancelFunc
	aborted atomic.Bool
	total   int
	done    atomic.Int64
	started time.Time

	// finished is closed once every probe of the run has returned.
	finished chan struct{}
}

func (r *run) drained() bool {
	select {
	case <-r.finished:
		return true
	default:
		return false
	}
}

func (r *run) abort() {
	r.aborted.Store(true)
	r.cancel()
}

// Runner executes connectivity probes and holds the latest result per
// combination.
//
// All methods are safe for concurrent use.
type Runner struct {
	prober   Prober
	catalog  []CatalogEntry
	gateway  WorkingModelSource
	store    storage.ResultStore
	defaults Options

	mu           sync.RWMutex
	results      []Result
	current      *run
	running      bool
	lastRun      time.Time
	lastDuration time.Duration
}

// New creates a Runner that probes through prober.
func New(prober Prober, cfg Config) *Runner {
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = DefaultCatalog
	}
	return &Runner{
		prober:   prober,
		catalog:  catalog,
		gateway:  cfg.Gateway,
		store:    cfg.Store,
		defaults: withDefaults(cfg.Defaults, Options{Concurrency: 3, BatchDelay: 500 * time.Millisecond}),
	}
}

func withDefaults(opts, fallback Options) Options {
	if opts.Concurrency <= 0 {
		opts.Concurrency = fallback.Concurrency
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	if opts.BatchDelay < 0 {
		opts.BatchDelay = 0
	} else if opts.BatchDelay == 0 {
		opts.BatchDelay = fallback.BatchDelay
	}
	if opts.Prompt == "" {
		opts.Prompt = fallback.Prompt
	}
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	return opts
}

// Load restores the result set from the store.
func (r *Runner) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	results, err := r.store.ListResults(ctx)
	if err != nil {
		return fmt.Errorf("loading connectivity results: %w", err)
	}
	r.mu.Lock()
	r.results = results
	r.mu.Unlock()
	return nil
}

// Run executes a full run and blocks until it completes or is aborted. The
// returned results are those recorded by this run.
func (r *Runner) Run(ctx context.Context, opts Options) ([]Result, error) {
	rn, combos, err := r.begin(ctx, ctx)
	if err != nil {
		return nil, err
	}
	r.execute(rn, combos, withDefaults(opts, r.defaults))
	return r.Results(), nil
}

// Start launches a full run in the background. The run outlives ctx's
// cancellation and ends on completion or Stop. ctx only bounds the wait
// for a stopped run to drain.
func (r *Runner) Start(ctx context.Context, opts Options) error {
	rn, combos, err := r.begin(context.WithoutCancel(ctx), ctx)
	if err != nil {
		return err
	}
	go r.execute(rn, combos, withDefaults(opts, r.defaults))
	return nil
}

// Stop aborts the current run. It reports whether a run was in progress.
func (r *Runner) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running || r.current == nil {
		return false
	}
	r.current.abort()
	r.running = false
	slog.Info("connectivity run stopped",
		slog.Int64("completed", r.current.done.Load()),
		slog.Int("total", r.current.total),
	)
	return true
}

// begin claims the runner for a new run derived from ctx. Probes of a
// stopped run may still be returning; begin waits for them, bounded by
// waitCtx, so runs never overlap.
func (r *Runner) begin(ctx, waitCtx context.Context) (*run, []Combination, error) {
	combos := r.Combinations()

	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		if r.running {
			return nil, nil, ErrAlreadyRunning
		}
		prev := r.current
		if prev == nil || prev.drained() {
			break
		}
		r.mu.Unlock()
		select {
		case <-prev.finished:
			r.mu.Lock()
		case <-waitCtx.Done():
			r.mu.Lock()
			return nil, nil, waitCtx.Err()
		}
	}

	rctx, cancel := context.WithCancel(ctx)
	rn := &run{
		ctx:      rctx,
		cancel:   cancel,
		total:    len(combos),
		started:  time.Now(),
		finished: make(chan struct{}),
	}
	r.current = rn
	r.running = true
	r.results = nil
	r.lastRun = rn.started
	return rn, combos, nil
}

func (r *Runner) execute(rn *run, combos []Combination, opts Options) {
	defer close(rn.finished)
	defer rn.cancel()

	slog.Info("connectivity run started",
		slog.Int("combinations", len(combos)),
		slog.Int("concurrency", opts.Concurrency),
	)

	for start := 0; start < len(combos); start += opts.Concurrency {
		if rn.aborted.Load() {
			break
		}
		batch := combos[start:min(start+opts.Concurrency, len(combos))]

		var g errgroup.Group
		g.SetLimit(opts.Concurrency)
		for _, c := range batch {
			g.Go(func() error {
				if rn.aborted.Load() {
					return nil
				}
				res := r.probe(rn.ctx, c, opts.Prompt)
				if rn.aborted.Load() {
					return nil
				}
				r.record(rn, res)
				return nil
			})
		}
		_ = g.Wait()

		if rn.aborted.Load() {
			break
		}
		if start+opts.Concurrency < len(combos) && opts.BatchDelay > 0 {
			timer := time.NewTimer(opts.BatchDelay)
			select {
			case <-rn.ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
	}

	r.finish(rn)
}

func (r *Runner) record(rn *run, res Result) {
	r.mu.Lock()
	if r.current != rn || rn.aborted.Load() {
		r.mu.Unlock()
		return
	}
	r.results = append(r.results, res)
	r.mu.Unlock()

	done := rn.done.Add(1)
	slog.Info("probe finished",
		slog.Int64("completed", done),
		slog.Int("total", rn.total),
		slog.String("combination", displayName(res.Provider, res.Model)),
		slog.Bool("success", res.Success),
		slog.Int64("latency_ms", res.LatencyMs),
		slog.String("error", res.Error),
	)
}

func (r *Runner) finish(rn *run) {
	r.mu.Lock()
	if r.current != rn {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.lastDuration = time.Since(rn.started)
	results := append([]Result(nil), r.results...)
	r.mu.Unlock()

	working := 0
	for _, res := range results {
		if res.Success {
			working++
		}
	}
	slog.Info("connectivity run finished",
		slog.Int("results", len(results)),
		slog.Int("working", working),
		slog.Bool("aborted", rn.aborted.Load()),
	)

	if r.store != nil {
		if err := r.store.SaveResults(context.WithoutCancel(rn.ctx), results); err != nil {
			slog.Warn("saving connectivity results failed", slog.String("error", err.Error()))
		}
	}
}

// probe runs one combination and converts the outcome into a Result.
func (r *Runner) probe(ctx context.Context, c Combination, prompt string) Result {
	messages := []api.Message{{Role: api.RoleUser, Content: prompt}}
	parsed, latency, err := r.prober.Probe(ctx, c.Provider, c.Model, messages)

	res := Result{
		Provider:  c.Provider,
		Model:     c.Model,
		LatencyMs: latency.Milliseconds(),
		TestedAt:  time.Now().UTC(),
	}
	switch content := strings.TrimSpace(parsed.Content); {
	case err != nil:
		res.Error = err.Error()
		res.ErrorKind = ClassifyError(res.Error)
	case content == "":
		res.Error = "Empty response"
		res.ErrorKind = api.ErrorKindUnknown
	default:
		res.Success = true
		res.Content = content
	}

	outcome := observability.OutcomeSuccess
	if !res.Success {
		outcome = res.ErrorKind
	}
	observability.ConnectivityResults.WithLabelValues(res.Provider, outcome).Inc()
	return res
}

// TestOne probes a single combination and replaces its stored result.
func (r *Runner) TestOne(ctx context.Context, provider, model, prompt string) Result {
	if prompt == "" {
		prompt = r.defaults.Prompt
	}
	res := r.probe(ctx, newCombination(provider, model), prompt)
	r.upsert(ctx, res)
	return res
}

// ProviderReport is the outcome of TestProvider.
type ProviderReport struct {
	Provider string   `json:"provider"`
	Total    int      `json:"total"`
	Working  int      `json:"working"`
	Results  []Result `json:"results"`
}

// TestProvider probes every catalog model of provider in order and
// replaces their stored results.
func (r *Runner) TestProvider(ctx context.Context, provider string) (ProviderReport, error) {
	models, ok := r.models(provider)
	if !ok {
		return ProviderReport{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	report := ProviderReport{Provider: provider, Total: len(models)}
	for _, m := range models {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res := r.probe(ctx, newCombination(provider, m), r.defaults.Prompt)
		r.upsert(ctx, res)
		if res.Success {
			report.Working++
		}
		report.Results = append(report.Results, res)
	}
	return report, nil
}

func (r *Runner) upsert(ctx context.Context, res Result) {
	r.mu.Lock()
	replaced := false
	for i := range r.results {
		if r.results[i].Key() == res.Key() {
			r.results[i] = res
			replaced = true
			break
		}
	}
	if !replaced {
		r.results = append(r.results, res)
	}
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.UpsertResult(ctx, res); err != nil {
			slog.Warn("saving connectivity result failed",
				slog.String("combination", res.Key()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Results returns a copy of the current result set.
func (r *Runner) Results() []Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Result(nil), r.results...)
}

// Status describes the runner.
type Status struct {
	Running      bool       `json:"isRunning"`
	HasResults   bool       `json:"hasResults"`
	ResultCount  int        `json:"resultCount"`
	Completed    int64      `json:"completed"`
	Total        int        `json:"total"`
	LastRun      *time.Time `json:"lastRun,omitempty"`
	LastDuration int64      `json:"lastDurationMs,omitempty"`
}

// Status reports whether a run is in progress and what it has produced.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Status{
		Running:      r.running,
		HasResults:   len(r.results) > 0,
		ResultCount:  len(r.results),
		LastDuration: r.lastDuration.Milliseconds(),
	}
	if r.current != nil {
		s.Completed = r.current.done.Load()
		s.Total = r.current.total
	}
	if !r.lastRun.IsZero() {
		t := r.lastRun
		s.LastRun = &t
	}
	return s
}
