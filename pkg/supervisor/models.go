package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nezumi0627/ClawBridge/pkg/debug"
	"github.com/nezumi0627/ClawBridge/pkg/provider/openaicompat"
)

const (
	modelsFetchTimeout = 10 * time.Second
	liveModelsTimeout  = 5 * time.Second
)

// RefreshModels rebuilds the working-model set from the curated list at
// ModelsURL and, when the gateway is ready, its live /v1/models. On any
// failure, or when the result is empty, the previous set is kept.
func (s *Supervisor) RefreshModels(ctx context.Context) error {
	if !s.refreshMu.TryLock() {
		return nil
	}
	defer s.refreshMu.Unlock()

	var models []string
	if s.cfg.ModelsURL != "" {
		curated, err := s.fetchCurated(ctx)
		if err != nil {
			slog.Warn("working model refresh failed, keeping previous list", slog.String("error", err.Error()))
			return err
		}
		models = curated
	}

	if s.Ready() {
		lctx, cancel := context.WithTimeout(ctx, liveModelsTimeout)
		live, err := openaicompat.NewClient("g4f", s.baseURL, "", liveModelsTimeout).ListModels(lctx)
		cancel()
		if err != nil {
			debug.Log("supervisor", "live model list unavailable", "error", err)
		}
		models = mergeModels(models, live)
	}

	if len(models) == 0 {
		return nil
	}
	s.mu.Lock()
	s.models = models
	s.mu.Unlock()
	debug.Log("supervisor", "working models refreshed", "count", len(models))
	return nil
}

func (s *Supervisor) fetchCurated(ctx context.Context) ([]string, error) {
	fctx, cancel := context.WithTimeout(ctx, modelsFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fctx, http.MethodGet, s.cfg.ModelsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building models request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching models list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching models list: HTTP %d", resp.StatusCode)
	}
	return ParseModelList(resp.Body)
}

// ParseModelList extracts text models from the curated list format: every
// line tagged "(text)" contributes the name before its first "(".
func ParseModelList(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || !strings.Contains(line, "(text)") {
			continue
		}
		name, _, _ := strings.Cut(line, "(")
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading models list: %w", err)
	}
	return out, nil
}

// mergeModels concatenates lists, dropping duplicates and keeping order.
func mergeModels(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range lists {
		for _, m := range l {
			if m == "" || seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}
