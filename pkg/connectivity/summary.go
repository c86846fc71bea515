package connectivity

import (
	"math"
	"sort"
)

// ProviderCounts is the per-provider tally of a Summary.
type ProviderCounts struct {
	Working int `json:"working"`
	Failed  int `json:"failed"`
}

// SpeedEntry names one combination and its latency.
type SpeedEntry struct {
	Display   string `json:"display"`
	LatencyMs int64  `json:"responseTime"`
}

// Speed aggregates latency over successful probes.
type Speed struct {
	AverageMs int64       `json:"average"`
	Fastest   *SpeedEntry `json:"fastest,omitempty"`
	Slowest   *SpeedEntry `json:"slowest,omitempty"`
}

// Summary aggregates the current result set.
type Summary struct {
	Total       int                       `json:"total"`
	Working     int                       `json:"working"`
	Failed      int                       `json:"failed"`
	SuccessRate float64                   `json:"successRate"`
	ByProvider  map[string]ProviderCounts `json:"byProvider"`
	ErrorKinds  map[string]int            `json:"errorTypes"`
	Speed       Speed                     `json:"speed"`
}

// Summarize aggregates results. SuccessRate is a percentage rounded to one
// decimal place.
func Summarize(results []Result) Summary {
	s := Summary{
		Total:      len(results),
		ByProvider: make(map[string]ProviderCounts),
		ErrorKinds: make(map[string]int),
	}

	var sum int64
	var timed int
	for _, res := range results {
		counts := s.ByProvider[res.Provider]
		if !res.Success {
			s.Failed++
			counts.Failed++
			s.ByProvider[res.Provider] = counts
			s.ErrorKinds[res.ErrorKind]++
			continue
		}
		s.Working++
		counts.Working++
		s.ByProvider[res.Provider] = counts

		if res.LatencyMs <= 0 {
			continue
		}
		sum += res.LatencyMs
		timed++
		entry := &SpeedEntry{Display: displayName(res.Provider, res.Model), LatencyMs: res.LatencyMs}
		if s.Speed.Fastest == nil || res.LatencyMs < s.Speed.Fastest.LatencyMs {
			s.Speed.Fastest = entry
		}
		if s.Speed.Slowest == nil || res.LatencyMs > s.Speed.Slowest.LatencyMs {
			s.Speed.Slowest = entry
		}
	}
	if s.Total > 0 {
		s.SuccessRate = math.Round(float64(s.Working)/float64(s.Total)*1000) / 10
	}
	if timed > 0 {
		s.Speed.AverageMs = int64(math.Round(float64(sum) / float64(timed)))
	}
	return s
}

// Summary aggregates the runner's current result set.
func (r *Runner) Summary() Summary {
	return Summarize(r.Results())
}

// WorkingEntry is one successful combination.
type WorkingEntry struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Display   string `json:"display"`
	LatencyMs int64  `json:"responseTime"`
	Content   string `json:"content"`
}

// Working returns the successful combinations, fastest first.
func (r *Runner) Working() []WorkingEntry {
	var out []WorkingEntry
	for _, res := range r.Results() {
		if !res.Success {
			continue
		}
		out = append(out, WorkingEntry{
			Provider:  res.Provider,
			Model:     res.Model,
			Display:   displayName(res.Provider, res.Model),
			LatencyMs: res.LatencyMs,
			Content:   res.Content,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LatencyMs < out[j].LatencyMs })
	return out
}

// FailedEntry is one failed combination.
type FailedEntry struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Display   string `json:"display"`
	Error     string `json:"error"`
	ErrorKind string `json:"errorType"`
}

// Failed returns the failed combinations in result order.
func (r *Runner) Failed() []FailedEntry {
	var out []FailedEntry
	for _, res := range r.Results() {
		if res.Success {
			continue
		}
		out = append(out, FailedEntry{
			Provider:  res.Provider,
			Model:     res.Model,
			Display:   displayName(res.Provider, res.Model),
			Error:     res.Error,
			ErrorKind: res.ErrorKind,
		})
	}
	return out
}
