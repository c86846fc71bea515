// Package normalize turns raw backend output into a structured reply.
//
// Backends without native function calling describe tool invocations in
// free text, wrap replies in assorted JSON envelopes, or append
// promotional blocks. [Parse] applies a fixed sequence of rules and never
// fails: text it cannot interpret is returned as plain content.
package normalize

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/nezumi0627/ClawBridge/pkg/api"
	"github.com/nezumi0627/ClawBridge/pkg/debug"
)

// Parsed is a normalized backend reply. Content is empty whenever
// ToolCalls is non-empty.
type Parsed struct {
	Content   string
	ToolCalls []api.ToolCall
}

// Empty reports whether the reply carries neither content nor tool calls.
func (p Parsed) Empty() bool {
	return strings.TrimSpace(p.Content) == "" && len(p.ToolCalls) == 0
}

// Meta identifies who produced a reply, for the provenance footer.
type Meta struct {
	Provider string
	Model    string
	Latency  time.Duration
}

// labeledCall matches the manual tool-call label some backends emit,
// e.g. "ツールを呼び出す: `write`{...}".
var labeledCall = regexp.MustCompile("ツールを呼び出す: `([a-zA-Z0-9_]+)`")

// promoPatterns strip sponsor blocks appended by open backends.
var promoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)\n\n\*\*Support Pollinations\.AI:\*\*.*?everyone\.`),
	regexp.MustCompile(`(?s)🌸 \*\*Ad\*\* 🌸.*?everyone\.`),
	regexp.MustCompile(`(?s)pollinations\.ai.*?community support`),
}

// span is a claimed byte range [start, end) of the input.
type span struct{ start, end int }

// Parse converts raw backend text into a Parsed reply. When meta is
// non-nil a provenance footer is appended to plain content.
func Parse(raw string, meta *Meta) Parsed {
	text := strings.TrimSpace(raw)
	var result Parsed

	// Labeled manual tool calls.
	calls, claimed := labeledCalls(text)
	if len(calls) > 0 {
		result.ToolCalls = calls
		text = removeSpans(text, claimed)
	}

	// Whole-response JSON.
	if len(calls) == 0 && (strings.HasPrefix(text, "{") || strings.HasPrefix(text, "```json")) {
		if obj, ok := decodeObject(stripFence(text)); ok {
			if shape, ok := matchShape(obj); ok {
				p := shape.extract(obj)
				debug.Log("normalize", "whole-body json", "shape", shape.name)
				if shape.terminal {
					return finalize(p)
				}
				result.Content = p.Content
				result.ToolCalls = append(result.ToolCalls, p.ToolCalls...)
			}
		}
	}

	// Embedded JSON fallback.
	if len(result.ToolCalls) == 0 && strings.Contains(text, "{") && strings.Contains(text, "}") {
		if obj, ok := embeddedInvocation(text); ok {
			debug.Log("normalize", "embedded tool call")
			return finalize(extractToolInvocation(obj))
		}
	}

	if result.Content == "" {
		result.Content = text
	}

	result.Content = cleanup(result.Content)
	if meta != nil && result.Content != "" && len(result.ToolCalls) == 0 {
		result.Content += Footer(*meta)
	}

	return finalize(result)
}

// embeddedInvocation scans every '{' in text for the first balanced object
// shaped like {name, arguments}. Stray braces before it are skipped.
func embeddedInvocation(text string) (object, bool) {
	for from := 0; from < len(text); {
		rel := strings.IndexByte(text[from:], '{')
		if rel < 0 {
			break
		}
		at := from + rel
		if candidate, _, _, ok := ExtractBalanced(text, at); ok {
			if obj, ok := decodeObject(candidate); ok && isToolInvocation(obj) {
				return obj, true
			}
		}
		from = at + 1
	}
	return nil, false
}

// Footer renders the provenance line appended to plain replies.
func Footer(m Meta) string {
	return fmt.Sprintf("\n\n-# @%s - %s - %.2fs", m.Provider, m.Model, m.Latency.Seconds())
}

// finalize enforces that tool calls and content are never both set.
func finalize(p Parsed) Parsed {
	if len(p.ToolCalls) > 0 {
		p.Content = ""
	}
	return p
}

// labeledCalls finds every labeled tool call whose following object parses.
// Spans run from the label to the end of its object. Spans are claimed in
// order; a candidate overlapping an earlier claim is skipped, so each byte
// belongs to at most one call.
func labeledCalls(text string) ([]api.ToolCall, []span) {
	var (
		calls   []api.ToolCall
		claimed []span
	)
	for _, m := range labeledCall.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		candidate, _, end, ok := ExtractBalanced(text, m[1])
		if !ok {
			debug.Log("normalize", "labeled call without object", "tool", name)
			continue
		}
		obj, ok := decodeObject(candidate)
		if !ok {
			debug.Log("normalize", "labeled call with malformed json", "tool", name)
			continue
		}
		s := span{start: m[0], end: end}
		if overlaps(claimed, s) {
			continue
		}
		claimed = append(claimed, s)

		var args string
		if isToolInvocation(obj) {
			args = api.EncodeArguments(obj["arguments"])
		} else {
			args = api.EncodeArguments([]byte(candidate))
		}
		calls = append(calls, api.NewToolCall(name, args))
	}
	return calls, claimed
}

func overlaps(claimed []span, s span) bool {
	for _, c := range claimed {
		if s.start < c.end && c.start < s.end {
			return true
		}
	}
	return false
}

// removeSpans deletes the claimed ranges from text.
func removeSpans(text string, spans []span) string {
	if len(spans) == 0 {
		return text
	}
	sorted := append([]span(nil), spans...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })

	var b strings.Builder
	prev := 0
	for _, s := range sorted {
		b.WriteString(text[prev:s.start])
		prev = s.end
	}
	b.WriteString(text[prev:])
	return strings.TrimSpace(b.String())
}

func stripFence(text string) string {
	body := strings.TrimPrefix(text, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}

func cleanup(content string) string {
	for _, re := range promoPatterns {
		content = re.ReplaceAllString(content, "")
	}
	return strings.TrimSpace(content)
}
