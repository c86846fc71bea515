package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nezumi0627/ClawBridge/pkg/api"
	"github.com/nezumi0627/ClawBridge/pkg/provider"
)

// fakeBackend implements provider.Backend for testing.
type fakeBackend struct {
	name       string
	info       provider.Info
	supports   func(model string) bool
	configured bool
	complete   func(ctx context.Context, req *provider.Request) (string, error)

	mu    sync.Mutex
	calls []*provider.Request
}

func (f *fakeBackend) Name() string          { return f.name }
func (f *fakeBackend) Info() provider.Info   { return f.info }
func (f *fakeBackend) Configured() bool      { return f.configured }
func (f *fakeBackend) Supports(m string) bool { return f.supports == nil || f.supports(m) }

func (f *fakeBackend) Complete(ctx context.Context, req *provider.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.complete == nil {
		return "Hello from " + f.name, nil
	}
	return f.complete(ctx, req)
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeBackend) lastCall() *provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

// gatedBackend adds a readiness signal.
type gatedBackend struct {
	*fakeBackend
	ready atomic.Bool
}

func (g *gatedBackend) Ready() bool { return g.ready.Load() }

func reply(text string) func(context.Context, *provider.Request) (string, error) {
	return func(context.Context, *provider.Request) (string, error) { return text, nil }
}

func fail(err error) func(context.Context, *provider.Request) (string, error) {
	return func(context.Context, *provider.Request) (string, error) { return "", err }
}

func prefix(p string) func(string) bool {
	return func(m string) bool { return strings.HasPrefix(m, p) }
}

func newEngine(t *testing.T, cfg Config, backends ...provider.Backend) *Engine {
	t.Helper()
	e, err := New(provider.NewRegistry(backends...), nil, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func userRequest(model, text string) *api.ChatRequest {
	return &api.ChatRequest{
		Model:    model,
		Messages: []api.Message{{Role: api.RoleUser, Content: text}},
	}
}

func TestNewRequiresRegistry(t *testing.T) {
	if _, err := New(nil, nil, Config{}); err == nil {
		t.Error("expected error for nil registry")
	}
}

func TestBuildChain(t *testing.T) {
	got := BuildChain("gpt-4", []string{"gpt-4o", "gpt-4", "", "llama3", "gpt-4o"})
	want := Chain{"gpt-4", "gpt-4o", "llama3"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("BuildChain = %v, want %v", got, want)
	}
}

func TestResolveAlias(t *testing.T) {
	cfgAliases := map[string]string{"fast": "llama3", "smart": "gpt-4"}
	opts := &api.RoutingOptions{Aliases: map[string]string{"fast": "gpt-4o-mini"}}

	tests := []struct {
		model string
		opts  *api.RoutingOptions
		want  string
	}{
		{"fast", opts, "gpt-4o-mini"},
		{"fast", nil, "llama3"},
		{"smart", opts, "gpt-4"},
		{"other", opts, "other"},
	}
	for _, tt := range tests {
		if got := ResolveAlias(tt.model, tt.opts, cfgAliases); got != tt.want {
			t.Errorf("ResolveAlias(%q) = %q, want %q", tt.model, got, tt.want)
		}
	}
}

func routingFixture() (*Engine, *gatedBackend) {
	groq := &fakeBackend{name: "groq", info: provider.Info{Tier: provider.TierFast}, supports: prefix("llama"), configured: true}
	gemini := &fakeBackend{name: "gemini", info: provider.Info{Tier: provider.TierFast}, supports: prefix("gemini")}
	g4f := &gatedBackend{fakeBackend: &fakeBackend{name: "g4f", info: provider.Info{Tier: provider.TierGateway, NeedsGateway: true}, supports: func(m string) bool { return m == "gpt-4" }, configured: true}}
	puter := &fakeBackend{name: "puter", info: provider.Info{Tier: provider.TierAuthenticated}, supports: prefix("gpt-4o-mini"), configured: true}
	open := &fakeBackend{name: "pollinations", info: provider.Info{Tier: provider.TierOpen}, configured: true}

	e, _ := New(provider.NewRegistry(groq, gemini, g4f, puter, open), nil, Config{
		ForceProvider: map[string]string{"pinned-model": "groq"},
		Models:        map[string]string{"mapped-model": "puter"},
	})
	return e, g4f
}

func TestRoutePriority(t *testing.T) {
	e, g4f := routingFixture()

	tests := []struct {
		name     string
		model    string
		pins     api.ProviderPins
		g4fReady bool
		want     string
	}{
		{"fast tier with credentials", "llama-3", nil, true, "groq"},
		{"fast tier without credentials skipped", "gemini-pro", nil, true, "pollinations"},
		{"gateway when ready", "gpt-4", nil, true, "g4f"},
		{"gateway skipped when not ready", "gpt-4", nil, false, "pollinations"},
		{"authenticated tier before gateway-only match", "gpt-4o-mini", nil, true, "puter"},
		{"request pin for every model", "llama-3", api.ProviderPins{"*": "pollinations"}, true, "pollinations"},
		{"request pin beats config pin", "pinned-model", api.ProviderPins{"pinned-model": "puter"}, true, "puter"},
		{"config force pin", "pinned-model", nil, true, "groq"},
		{"config models pin", "mapped-model", nil, true, "puter"},
		{"unknown pin ignored", "llama-3", api.ProviderPins{"*": "nope"}, true, "groq"},
		{"pinned gateway chosen even when not ready", "x", api.ProviderPins{"x": "g4f"}, false, "g4f"},
		{"open default", "mystery", nil, true, "pollinations"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g4f.ready.Store(tt.g4fReady)
			b, err := e.Route(e.Config(), tt.model, tt.pins)
			if err != nil {
				t.Fatalf("Route: %v", err)
			}
			if b.Name() != tt.want {
				t.Errorf("Route(%q) = %s, want %s", tt.model, b.Name(), tt.want)
			}
		})
	}
}

func TestRouteNoBackend(t *testing.T) {
	e := newEngine(t, Config{}, &fakeBackend{name: "groq", info: provider.Info{Tier: provider.TierFast}, supports: prefix("llama")})
	if _, err := e.Route(e.Config(), "gpt-4", nil); !errors.Is(err, ErrNoBackend) {
		t.Errorf("Route error = %v, want ErrNoBackend", err)
	}
}

func TestHandleRejectsEmptyMessages(t *testing.T) {
	b := &fakeBackend{name: "pollinations", info: provider.Info{Tier: provider.TierOpen}}
	e := newEngine(t, Config{}, b)

	_, err := e.Handle(context.Background(), &api.ChatRequest{Model: "gpt-4o-mini"})
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *api.APIError", err)
	}
	if apiErr.Type != api.ErrorTypeInvalidRequest || apiErr.Param != "messages" {
		t.Errorf("got %+v, want invalid_request on messages", apiErr)
	}
	if b.callCount() != 0 {
		t.Errorf("backend called %d times, want 0", b.callCount())
	}
}

func TestHandlePromptBecomesUserMessage(t *testing.T) {
	b := &fakeBackend{name: "pollinations", info: provider.Info{Tier: provider.TierOpen}}
	e := newEngine(t, Config{}, b)

	_, err := e.Handle(context.Background(), &api.ChatRequest{Prompt: []byte(`"say hi"`)})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	got := b.lastCall()
	if got.Model != DefaultModel {
		t.Errorf("model = %q, want %q", got.Model, DefaultModel)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != api.RoleUser || got.Messages[0].Content != "say hi" {
		t.Errorf("messages = %v, want single user message", got.Messages)
	}
}

func TestHandlePlainReply(t *testing.T) {
	b := &fakeBackend{name: "pollinations", info: provider.Info{Tier: provider.TierOpen}, complete: reply("Hello!")}
	e := newEngine(t, Config{}, b)

	res, err := e.Handle(context.Background(), userRequest("gpt-4o-mini", "hi"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.HasPrefix(res.Content, "Hello!") || !strings.Contains(res.Content, "-# @pollinations - gpt-4o-mini - ") {
		t.Errorf("content = %q, want reply with footer", res.Content)
	}
	if res.ToolCalls != nil {
		t.Errorf("tool calls = %v, want nil", res.ToolCalls)
	}
	if res.FinishReason() != api.FinishReasonStop {
		t.Errorf("finish reason = %q, want stop", res.FinishReason())
	}
	if res.Provider != "pollinations" || res.Model != "gpt-4o-mini" {
		t.Errorf("provider/model = %s/%s", res.Provider, res.Model)
	}
	if !api.ValidateCompletionID(res.ID) {
		t.Errorf("invalid id %q", res.ID)
	}
}

func TestHandleToolCallReply(t *testing.T) {
	b := &fakeBackend{
		name:     "pollinations",
		info:     provider.Info{Tier: provider.TierOpen, NeedsPolyfill: true},
		complete: reply(`Thinking... {"name":"search","arguments":{"q":"cats"}}`),
	}
	e := newEngine(t, Config{}, b)

	res, err := e.Handle(context.Background(), userRequest("gpt-4o-mini", "find cats"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Content != "" || len(res.ToolCalls) != 1 {
		t.Fatalf("got content %q and %d tool calls", res.Content, len(res.ToolCalls))
	}
	if tc := res.ToolCalls[0]; tc.Function.Name != "search" || tc.Function.Arguments != `{"q":"cats"}` {
		t.Errorf("tool call = %+v", tc)
	}
	if res.FinishReason() != api.FinishReasonToolCalls {
		t.Errorf("finish reason = %q", res.FinishReason())
	}
	if h := e.History(); len(h) != 1 || h[0].ResponsePreview != "[Tool Call]" {
		t.Errorf("history = %+v", h)
	}
}

// chainFixture builds n backends, each pinned to model m<i>, where the
// first failing ones return an empty reply.
func chainFixture(t *testing.T, n, failing int) (*Engine, []*fakeBackend) {
	t.Helper()
	var backends []provider.Backend
	var fakes []*fakeBackend
	pins := map[string]string{}
	var fallbacks []string
	for i := range n {
		name := fmt.Sprintf("b%d", i)
		model := fmt.Sprintf("m%d", i)
		f := &fakeBackend{name: name, info: provider.Info{Tier: provider.TierFast}, configured: true}
		if i < failing {
			f.complete = reply("")
		} else {
			f.complete = reply("answer from " + name)
		}
		fakes = append(fakes, f)
		backends = append(backends, f)
		pins[model] = name
		if i > 0 {
			fallbacks = append(fallbacks, model)
		}
	}
	e := newEngine(t, Config{
		Models:    pins,
		Fallbacks: map[string][]string{"m0": fallbacks},
	}, backends...)
	return e, fakes
}

func TestHandleFallbacksUsed(t *testing.T) {
	for n := 1; n <= 5; n++ {
		t.Run(fmt.Sprintf("chain of %d", n), func(t *testing.T) {
			e, fakes := chainFixture(t, n, n-1)

			res, err := e.Handle(context.Background(), userRequest("m0", "hi"))
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if res.FallbacksUsed != n-1 {
				t.Errorf("FallbacksUsed = %d, want %d", res.FallbacksUsed, n-1)
			}
			if want := fmt.Sprintf("b%d", n-1); res.Provider != want {
				t.Errorf("provider = %s, want %s", res.Provider, want)
			}
			stats := e.Stats()
			if stats.Requests != 1 || stats.Errors != int64(n-1) || stats.Fallbacks != int64(n-1) {
				t.Errorf("stats = %+v", stats)
			}
			for i, f := range fakes {
				if f.callCount() != 1 {
					t.Errorf("b%d called %d times, want 1", i, f.callCount())
				}
			}
		})
	}
}

func TestHandleDependencyErrorAbortsChain(t *testing.T) {
	for pos := range 3 {
		t.Run(fmt.Sprintf("position %d", pos), func(t *testing.T) {
			e, fakes := chainFixture(t, 3, 3)
			depErr := &provider.BackendError{Provider: "g4f", Message: "G4F Missing Dependencies: install nodriver"}
			fakes[pos].complete = fail(depErr)
			last := &fakeBackend{name: "pollinations", info: provider.Info{Tier: provider.TierOpen}}
			e.registry.Register(last)
			cfg := e.Config()
			cfg.LastResortProvider, cfg.LastResortModel = "pollinations", "gpt-4o-mini"
			e.SetConfig(cfg)

			_, err := e.Handle(context.Background(), userRequest("m0", "hi"))
			if !errors.Is(err, depErr) {
				t.Fatalf("error = %v, want dependency error", err)
			}
			if errors.Is(err, ErrChainExhausted) {
				t.Error("dependency error reported as exhausted chain")
			}
			for i := pos + 1; i < 3; i++ {
				if fakes[i].callCount() != 0 {
					t.Errorf("b%d called after dependency error", i)
				}
			}
			if last.callCount() != 0 {
				t.Error("last resort called after dependency error")
			}
		})
	}
}

func TestHandleFilteredReplyAdvances(t *testing.T) {
	e, fakes := chainFixture(t, 2, 0)
	fakes[0].complete = reply("🌸 **Ad** 🌸 Powered by Pollinations.AI. Support our mission for everyone.")

	res, err := e.Handle(context.Background(), userRequest("m0", "hi"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Provider != "b1" {
		t.Errorf("provider = %s, want b1", res.Provider)
	}
}

func TestHandleLastResort(t *testing.T) {
	e, fakes := chainFixture(t, 2, 0)
	for _, f := range fakes {
		f.complete = fail(errors.New("boom"))
	}
	last := &fakeBackend{name: "pollinations", info: provider.Info{Tier: provider.TierOpen}, complete: reply("rescued")}
	e.registry.Register(last)
	cfg := e.Config()
	cfg.LastResortProvider, cfg.LastResortModel = "pollinations", "gpt-4o-mini"
	e.SetConfig(cfg)

	res, err := e.Handle(context.Background(), userRequest("m0", "hi"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Provider != "pollinations (fallback)" || res.Model != "gpt-4o-mini" {
		t.Errorf("got %s/%s, want pollinations (fallback)/gpt-4o-mini", res.Provider, res.Model)
	}
	if res.FallbacksUsed != 2 {
		t.Errorf("FallbacksUsed = %d, want 2", res.FallbacksUsed)
	}
	if got := last.lastCall(); len(got.Tools) != 0 {
		t.Errorf("last resort received %d tools, want 0", len(got.Tools))
	}
}

func TestHandleExhausted(t *testing.T) {
	e, fakes := chainFixture(t, 2, 0)
	firstErr, lastErr := errors.New("first failed"), errors.New("rate limited")
	fakes[0].complete = fail(firstErr)
	fakes[1].complete = fail(lastErr)
	e.registry.Register(&fakeBackend{name: "pollinations", info: provider.Info{Tier: provider.TierOpen}, complete: fail(errors.New("offline"))})
	cfg := e.Config()
	cfg.LastResortProvider, cfg.LastResortModel = "pollinations", "gpt-4o-mini"
	e.SetConfig(cfg)

	_, err := e.Handle(context.Background(), userRequest("m0", "hi"))
	if !errors.Is(err, ErrChainExhausted) {
		t.Fatalf("error = %v, want ErrChainExhausted", err)
	}
	if !errors.Is(err, lastErr) {
		t.Errorf("error = %v, want last chain error surfaced", err)
	}
	if want := "All models failed. Last error: rate limited"; err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}
}

func TestHandleWaitsForGateway(t *testing.T) {
	g4f := &gatedBackend{fakeBackend: &fakeBackend{name: "g4f", info: provider.Info{Tier: provider.TierGateway, DisplayName: "G4F"}}}
	e := newEngine(t, Config{
		Models:      map[string]string{"gpt-4": "g4f"},
		GatewayWait: 2 * time.Second,
		WaitStep:    5 * time.Millisecond,
	}, g4f)

	go func() {
		time.Sleep(30 * time.Millisecond)
		g4f.ready.Store(true)
	}()

	res, err := e.Handle(context.Background(), userRequest("gpt-4", "hi"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Provider != "g4f" {
		t.Errorf("provider = %s, want g4f", res.Provider)
	}
}

func TestHandleGatewayNeverReady(t *testing.T) {
	g4f := &gatedBackend{fakeBackend: &fakeBackend{name: "g4f", info: provider.Info{Tier: provider.TierGateway, DisplayName: "G4F"}}}
	open := &fakeBackend{name: "pollinations", info: provider.Info{Tier: provider.TierOpen}}
	e := newEngine(t, Config{
		Models:      map[string]string{"gpt-4": "g4f"},
		Fallbacks:   map[string][]string{"gpt-4": {"gpt-4o-mini"}},
		GatewayWait: 20 * time.Millisecond,
		WaitStep:    5 * time.Millisecond,
	}, g4f, open)

	res, err := e.Handle(context.Background(), userRequest("gpt-4", "hi"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if g4f.callCount() != 0 {
		t.Error("gateway called while not ready")
	}
	if res.Provider != "pollinations" || res.FallbacksUsed != 1 {
		t.Errorf("got %s after %d fallbacks", res.Provider, res.FallbacksUsed)
	}
}

func TestNotReadyErrorMessage(t *testing.T) {
	err := &notReadyError{backend: "G4F"}
	if !errors.Is(err, ErrNotReady) {
		t.Error("notReadyError should match ErrNotReady")
	}
	if want := "G4F server is not ready yet. Please wait a moment and try again."; err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}
}

func TestHandleAppliesPolyfillOnlyWhenNeeded(t *testing.T) {
	tools := []api.ToolDefinition{{Name: "exec", Description: "run a command"}}
	conversation := []api.Message{
		{Role: api.RoleUser, Content: "list files"},
		{Role: api.RoleAssistant, ToolCalls: []api.ToolCall{api.NewToolCall("exec", `{"command":"ls"}`)}},
		{Role: api.RoleTool, ToolCallID: "call_1", Content: "a.txt"},
	}

	native := &fakeBackend{name: "groq", info: provider.Info{Tier: provider.TierFast}, configured: true, supports: prefix("llama")}
	emulated := &fakeBackend{name: "pollinations", info: provider.Info{Tier: provider.TierOpen, NeedsPolyfill: true}}
	e := newEngine(t, Config{}, native, emulated)

	for _, model := range []string{"llama-3", "gpt-4o-mini"} {
		req := &api.ChatRequest{Model: model, Messages: conversation, Tools: tools}
		if _, err := e.Handle(context.Background(), req); err != nil {
			t.Fatalf("Handle(%s): %v", model, err)
		}
	}

	if got := native.lastCall().Messages; len(got) != 3 || got[2].Role != api.RoleTool {
		t.Errorf("native backend got rewritten conversation: %v", got)
	}
	got := emulated.lastCall().Messages
	if got[0].Role != api.RoleSystem || !strings.Contains(got[0].Content, "[Tool Support Enabled]") {
		t.Errorf("emulated backend missing tool prompt: %v", got[0])
	}
	for _, m := range got {
		if m.Role == api.RoleTool {
			t.Errorf("emulated backend received tool role message: %v", m)
		}
	}
	if conversation[2].Role != api.RoleTool {
		t.Error("request conversation was mutated")
	}
}

func TestHandleForwardsProviderHint(t *testing.T) {
	b := &fakeBackend{name: "pollinations", info: provider.Info{Tier: provider.TierOpen}}
	e := newEngine(t, Config{}, b)

	req := userRequest("gpt-4o-mini", "hi")
	req.Provider = "PuterJS"
	if _, err := e.Handle(context.Background(), req); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := b.lastCall().ProviderHint; got != "PuterJS" {
		t.Errorf("ProviderHint = %q, want PuterJS", got)
	}
}

func TestHandleAttemptTimeout(t *testing.T) {
	e, fakes := chainFixture(t, 2, 0)
	fakes[0].complete = func(ctx context.Context, _ *provider.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	cfg := e.Config()
	cfg.AttemptTimeout = 20 * time.Millisecond
	e.SetConfig(cfg)

	res, err := e.Handle(context.Background(), userRequest("m0", "hi"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Provider != "b1" {
		t.Errorf("provider = %s, want b1", res.Provider)
	}
}

func TestHistoryRing(t *testing.T) {
	b := &fakeBackend{name: "pollinations", info: provider.Info{Tier: provider.TierOpen}}
	e := newEngine(t, Config{}, b)

	for i := range HistorySize + 10 {
		if _, err := e.Handle(context.Background(), userRequest("gpt-4o-mini", fmt.Sprintf("request %d", i))); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}

	h := e.History()
	if len(h) != HistorySize {
		t.Fatalf("history length = %d, want %d", len(h), HistorySize)
	}
	if want := fmt.Sprintf("request %d", HistorySize+9); h[0].RequestPreview != want {
		t.Errorf("newest entry = %q, want %q", h[0].RequestPreview, want)
	}
	if h[0].ActualModel != "gpt-4o-mini" || h[0].Provider != "pollinations" {
		t.Errorf("entry = %+v", h[0])
	}
}

func TestHistoryPreviewTruncated(t *testing.T) {
	b := &fakeBackend{name: "pollinations", info: provider.Info{Tier: provider.TierOpen}}
	e := newEngine(t, Config{}, b)

	if _, err := e.Handle(context.Background(), userRequest("gpt-4o-mini", strings.Repeat("あ", 150))); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := []rune(e.History()[0].RequestPreview); len(got) != 100 {
		t.Errorf("preview length = %d runes, want 100", len(got))
	}
}

// memFailures is a minimal storage.FailureStore.
type memFailures struct {
	mu sync.Mutex
	m  map[string]time.Time
}

func (f *memFailures) MarkFailure(_ context.Context, key string, t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[key] = t
	return nil
}

func (f *memFailures) FailedSince(_ context.Context, key string) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.m[key]
	return t, ok, nil
}

func (f *memFailures) Clear(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.m, key)
	return nil
}

func TestFailureCooldownDemotes(t *testing.T) {
	b0 := &fakeBackend{name: "b0", info: provider.Info{Tier: provider.TierFast}, configured: true}
	b1 := &fakeBackend{name: "b1", info: provider.Info{Tier: provider.TierFast}, configured: true}
	failures := &memFailures{m: map[string]time.Time{"b0/m0": time.Now()}}

	e, err := New(provider.NewRegistry(b0, b1), failures, Config{
		Models:          map[string]string{"m0": "b0", "m1": "b1"},
		Fallbacks:       map[string][]string{"m0": {"m1"}},
		FailureCooldown: time.Minute,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := e.Handle(context.Background(), userRequest("m0", "hi"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Provider != "b1" || b0.callCount() != 0 {
		t.Errorf("cooling candidate tried first: provider=%s b0 calls=%d", res.Provider, b0.callCount())
	}

	// A demoted candidate is still tried when everything else fails.
	b1.complete = fail(errors.New("down"))
	res, err = e.Handle(context.Background(), userRequest("m0", "hi"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Provider != "b0" {
		t.Errorf("provider = %s, want b0", res.Provider)
	}
	if _, ok, _ := failures.FailedSince(context.Background(), "b0/m0"); ok {
		t.Error("success should clear the recorded failure")
	}
	if _, ok, _ := failures.FailedSince(context.Background(), "b1/m1"); !ok {
		t.Error("failure of b1 was not recorded")
	}
}

func TestProbe(t *testing.T) {
	g4f := &gatedBackend{fakeBackend: &fakeBackend{name: "g4f", info: provider.Info{Tier: provider.TierGateway, DisplayName: "G4F"}}}
	open := &fakeBackend{name: "pollinations", info: provider.Info{Tier: provider.TierOpen}, complete: reply(" Hello ")}
	e := newEngine(t, Config{}, g4f, open)
	msgs := []api.Message{{Role: api.RoleUser, Content: "Say hello"}}

	parsed, _, err := e.Probe(context.Background(), "pollinations", "openai", msgs)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if parsed.Content != "Hello" {
		t.Errorf("content = %q, want Hello without footer", parsed.Content)
	}

	if _, _, err := e.Probe(context.Background(), "g4f", "gpt-4", msgs); err == nil || err.Error() != "G4F server not ready" {
		t.Errorf("error = %v, want G4F server not ready", err)
	}
	if _, _, err := e.Probe(context.Background(), "missing", "x", msgs); !errors.Is(err, ErrNoBackend) {
		t.Errorf("error = %v, want ErrNoBackend", err)
	}
	if g4f.callCount() != 0 || e.Stats().Requests != 0 {
		t.Error("probe should not touch the chain or the counters")
	}
}
