package http

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/nezumi0627/ClawBridge/pkg/api"
	"github.com/nezumi0627/ClawBridge/pkg/auth"
	"github.com/nezumi0627/ClawBridge/pkg/config"
	"github.com/nezumi0627/ClawBridge/pkg/connectivity"
	"github.com/nezumi0627/ClawBridge/pkg/debug"
	"github.com/nezumi0627/ClawBridge/pkg/engine"
	"github.com/nezumi0627/ClawBridge/pkg/provider"
	"github.com/nezumi0627/ClawBridge/pkg/provider/gateway"
	"github.com/nezumi0627/ClawBridge/pkg/supervisor"
	"github.com/nezumi0627/ClawBridge/pkg/transport"
)

// logTailLines is the number of log lines returned by GET /api/logs.
const logTailLines = 50

// GatewayState reports the supervised gateway. *supervisor.Supervisor
// implements it.
type GatewayState interface {
	Snapshot() supervisor.State
	WorkingModels() []string
}

// AdminConfig wires the management API.
type AdminConfig struct {
	Engine *engine.Engine
	Runner *connectivity.Runner
	Config *config.Holder

	// Gateway is nil when no gateway is supervised.
	Gateway GatewayState

	Version     string
	Started     time.Time
	MaxBodySize int64
}

// Admin serves the /api management routes.
type Admin struct {
	cfg AdminConfig
}

// NewAdmin creates the management API.
func NewAdmin(cfg AdminConfig) *Admin {
	if cfg.Started.IsZero() {
		cfg.Started = time.Now()
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}
	return &Admin{cfg: cfg}
}

// Register adds every management route to the adapter. protect wraps each
// handler, typically with auth.Middleware; nil leaves routes open.
func (a *Admin) Register(ad *Adapter, protect func(http.Handler) http.Handler) {
	if protect == nil {
		protect = func(h http.Handler) http.Handler { return h }
	}
	routes := map[string]http.HandlerFunc{
		"GET /api/status":          a.handleStatus,
		"GET /api/config":          a.handleGetConfig,
		"POST /api/config":         a.handleUpdateConfig,
		"GET /api/logs":            a.handleLogs,
		"GET /api/history":         a.handleHistory,
		"GET /api/providers":       a.handleProviders,
		"GET /api/model-providers": a.handleModelProviders,
		"POST /api/debug/chat":     a.handleDebugChat,

		"GET /api/test/status":           a.handleTestStatus,
		"GET /api/test/combinations":     a.handleTestCombinations,
		"POST /api/test/run":             a.handleTestRun,
		"POST /api/test/stop":            a.handleTestStop,
		"POST /api/test/single":          a.handleTestSingle,
		"POST /api/test/run-sync":        a.handleTestRunSync,
		"POST /api/test/provider/{name}": a.handleTestProvider,
		"GET /api/test/results":          a.handleTestResults,
		"GET /api/test/working":          a.handleTestWorking,
		"GET /api/test/failed":           a.handleTestFailed,
		"GET /api/test/summary":          a.handleTestSummary,
		"GET /api/test/dump":             a.handleTestDump,
	}
	for pattern, h := range routes {
		ad.Handle(pattern, protect(h))
	}
}

// writeAdminError writes the {"error": "..."} body the management UI
// expects.
func writeAdminError(w http.ResponseWriter, status int, msg string) {
	transport.WriteJSON(w, status, map[string]string{"error": msg})
}

func (a *Admin) handleStatus(w http.ResponseWriter, _ *http.Request) {
	cfg := a.cfg.Config.Current()
	g4f := map[string]any{
		"active":       cfg.Gateway.Enabled,
		"models_count": 0,
	}
	if a.cfg.Gateway != nil {
		state := a.cfg.Gateway.Snapshot()
		g4f["models_count"] = len(a.cfg.Gateway.WorkingModels())
		g4f["phase"] = state.Phase
		g4f["restarts"] = state.Restarts
		if state.LastError != "" {
			g4f["last_error"] = state.LastError
		}
	}
	transport.WriteJSON(w, http.StatusOK, map[string]any{
		"version":   a.cfg.Version,
		"port":      cfg.Server.Port,
		"stats":     a.cfg.Engine.Stats(),
		"providers": map[string]any{gateway.Name: g4f},
		"uptime":    time.Since(a.cfg.Started).Seconds(),
	})
}

func (a *Admin) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	transport.WriteJSON(w, http.StatusOK, a.cfg.Config.Current().Redacted())
}

// handleUpdateConfig merges the posted JSON onto the active configuration.
// Fields absent from the body keep their values.
func (a *Admin) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.cfg.MaxBodySize))
	if err != nil {
		writeAdminError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}

	current := a.cfg.Config.Current()
	next := current.Clone()
	if err := json.Unmarshal(body, next); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	next.RestoreRedacted(current)

	saved, err := a.cfg.Config.Update(func(c *config.Config) { *c = *next })
	if err != nil {
		writeAdminError(w, http.StatusBadRequest, err.Error())
		return
	}
	slog.Info("configuration updated", slog.String("path", a.cfg.Config.Path()), auth.OperatorAttr(r.Context()))
	transport.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"config":  saved.Redacted(),
	})
}

func (a *Admin) handleLogs(w http.ResponseWriter, _ *http.Request) {
	path := a.cfg.Config.Current().Logging.File
	if path == "" {
		transport.WriteJSON(w, http.StatusOK, map[string]string{"logs": "No log file found. Ensure logging is active."})
		return
	}
	lines, err := debug.Tail(path, logTailLines)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		transport.WriteJSON(w, http.StatusOK, map[string]string{"logs": "No log file found. Ensure logging is active."})
	case err != nil:
		writeAdminError(w, http.StatusInternalServerError, err.Error())
	default:
		transport.WriteJSON(w, http.StatusOK, map[string]string{"logs": strings.Join(lines, "\n")})
	}
}

func (a *Admin) handleHistory(w http.ResponseWriter, _ *http.Request) {
	history := a.cfg.Engine.History()
	if history == nil {
		history = []engine.HistoryEntry{}
	}
	transport.WriteJSON(w, http.StatusOK, history)
}

// providerView is one entry of GET /api/providers.
type providerView struct {
	Models []string `json:"models"`
	Status string   `json:"status"`
}

func (a *Admin) handleProviders(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string]providerView)
	for _, b := range a.cfg.Engine.Registry().All() {
		models := b.Info().Models
		if wm, ok := b.(interface{ WorkingModels() []string }); ok {
			models = wm.WorkingModels()
		}
		status := "online"
		if !provider.IsReady(b) {
			status = "initializing"
		}
		if models == nil {
			models = []string{}
		}
		out[b.Name()] = providerView{Models: models, Status: status}
	}
	transport.WriteJSON(w, http.StatusOK, out)
}

func (a *Admin) handleModelProviders(w http.ResponseWriter, _ *http.Request) {
	combos, providers := a.cfg.Engine.Catalog()
	if combos == nil {
		combos = []engine.Combination{}
	}
	transport.WriteJSON(w, http.StatusOK, map[string]any{
		"combinations": combos,
		"providers":    providers,
	})
}

// handleDebugChat runs a chat request through the full routing engine and
// returns the completion together with the fallback count.
func (a *Admin) handleDebugChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBody[api.ChatRequest](w, r, a.cfg.MaxBodySize)
	if !ok {
		return
	}
	res, err := a.cfg.Engine.Handle(r.Context(), &req)
	if err != nil {
		writeAdminError(w, http.StatusInternalServerError, toAPIError(err).Message)
		return
	}
	transport.WriteJSON(w, http.StatusOK, map[string]any{
		"completion":     res.ToCompletion(),
		"fallbacks_used": res.FallbacksUsed,
	})
}

func (a *Admin) handleTestStatus(w http.ResponseWriter, _ *http.Request) {
	transport.WriteJSON(w, http.StatusOK, a.cfg.Runner.Status())
}

func (a *Admin) handleTestCombinations(w http.ResponseWriter, _ *http.Request) {
	combos := a.cfg.Runner.Combinations()
	transport.WriteJSON(w, http.StatusOK, map[string]any{
		"combinations": combos,
		"total":        len(combos),
	})
}

// runRequest is the optional body of the full-run routes.
type runRequest struct {
	Concurrency  int    `json:"concurrency"`
	BatchDelayMs int64  `json:"batchDelayMs"`
	Prompt       string `json:"prompt"`
}

func (rr runRequest) options() connectivity.Options {
	return connectivity.Options{
		Concurrency: rr.Concurrency,
		BatchDelay:  time.Duration(rr.BatchDelayMs) * time.Millisecond,
		Prompt:      rr.Prompt,
	}
}

func (a *Admin) writeAlreadyRunning(w http.ResponseWriter) {
	transport.WriteJSON(w, http.StatusConflict, map[string]any{
		"error":  "Tests already running",
		"status": a.cfg.Runner.Status(),
	})
}

func (a *Admin) handleTestRun(w http.ResponseWriter, r *http.Request) {
	rr, ok := decodeOptionalBody[runRequest](w, r, a.cfg.MaxBodySize)
	if !ok {
		return
	}
	if err := a.cfg.Runner.Start(r.Context(), rr.options()); err != nil {
		if errors.Is(err, connectivity.ErrAlreadyRunning) {
			a.writeAlreadyRunning(w)
			return
		}
		writeAdminError(w, http.StatusInternalServerError, err.Error())
		return
	}
	slog.Info("connectivity run requested", auth.OperatorAttr(r.Context()))
	transport.WriteJSON(w, http.StatusOK, map[string]any{
		"message":      "Test suite started",
		"combinations": a.cfg.Runner.Status().Total,
	})
}

func (a *Admin) handleTestStop(w http.ResponseWriter, r *http.Request) {
	stopped := a.cfg.Runner.Stop()
	msg := "No tests running"
	if stopped {
		msg = "Tests stopped"
		slog.Info("connectivity stop requested", auth.OperatorAttr(r.Context()))
	}
	transport.WriteJSON(w, http.StatusOK, map[string]any{"success": stopped, "message": msg})
}

// singleRequest is the body of POST /api/test/single.
type singleRequest struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Prompt   string `json:"prompt"`
}

func (a *Admin) handleTestSingle(w http.ResponseWriter, r *http.Request) {
	sr, ok := decodeOptionalBody[singleRequest](w, r, a.cfg.MaxBodySize)
	if !ok {
		return
	}
	if sr.Provider == "" || sr.Model == "" {
		writeAdminError(w, http.StatusBadRequest, "provider and model are required")
		return
	}
	transport.WriteJSON(w, http.StatusOK, a.cfg.Runner.TestOne(r.Context(), sr.Provider, sr.Model, sr.Prompt))
}

func (a *Admin) handleTestRunSync(w http.ResponseWriter, r *http.Request) {
	rr, ok := decodeOptionalBody[runRequest](w, r, a.cfg.MaxBodySize)
	if !ok {
		return
	}
	results, err := a.cfg.Runner.Run(r.Context(), rr.options())
	if err != nil {
		if errors.Is(err, connectivity.ErrAlreadyRunning) {
			a.writeAlreadyRunning(w)
			return
		}
		writeAdminError(w, http.StatusInternalServerError, err.Error())
		return
	}
	transport.WriteJSON(w, http.StatusOK, map[string]any{
		"summary":  connectivity.Summarize(results),
		"results":  nonNil(results),
		"duration": a.cfg.Runner.Status().LastDuration,
	})
}

func (a *Admin) handleTestProvider(w http.ResponseWriter, r *http.Request) {
	report, err := a.cfg.Runner.TestProvider(r.Context(), r.PathValue("name"))
	if err != nil {
		if errors.Is(err, connectivity.ErrUnknownProvider) {
			writeAdminError(w, http.StatusNotFound, err.Error())
			return
		}
		writeAdminError(w, http.StatusInternalServerError, err.Error())
		return
	}
	report.Results = nonNil(report.Results)
	transport.WriteJSON(w, http.StatusOK, report)
}

func (a *Admin) handleTestResults(w http.ResponseWriter, _ *http.Request) {
	results := a.cfg.Runner.Results()
	transport.WriteJSON(w, http.StatusOK, map[string]any{
		"summary": connectivity.Summarize(results),
		"results": nonNil(results),
	})
}

func (a *Admin) handleTestWorking(w http.ResponseWriter, _ *http.Request) {
	working := nonNil(a.cfg.Runner.Working())
	transport.WriteJSON(w, http.StatusOK, map[string]any{"working": working, "count": len(working)})
}

func (a *Admin) handleTestFailed(w http.ResponseWriter, _ *http.Request) {
	failed := nonNil(a.cfg.Runner.Failed())
	transport.WriteJSON(w, http.StatusOK, map[string]any{"failed": failed, "count": len(failed)})
}

func (a *Admin) handleTestSummary(w http.ResponseWriter, _ *http.Request) {
	transport.WriteJSON(w, http.StatusOK, a.cfg.Runner.Summary())
}

func (a *Admin) handleTestDump(w http.ResponseWriter, _ *http.Request) {
	results := a.cfg.Runner.Results()
	w.Header().Set("Content-Disposition", `attachment; filename="clawbridge_debug_dump.json"`)
	transport.WriteJSON(w, http.StatusOK, map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"environment": map[string]string{
			"version":  a.cfg.Version,
			"go":       runtime.Version(),
			"platform": runtime.GOOS,
			"arch":     runtime.GOARCH,
		},
		"summary": connectivity.Summarize(results),
		"results": nonNil(results),
	})
}

// nonNil keeps empty lists rendering as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
