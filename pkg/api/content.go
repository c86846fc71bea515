package api

import (
	"encoding/json"
	"regexp"
	"strings"
)

// metadataPatterns match routing tags that chat bridges (Discord relays and
// similar) inject into user text.
var metadataPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[/?Content\]`),
	regexp.MustCompile(`\[Discord [^\]]+\]`),
	regexp.MustCompile(`\[message_id: [^\]]+\]`),
	regexp.MustCompile(`\[[^\]]+ user id:[^\]]+\]`),
}

// StripMetadata removes bridge metadata tags and trims whitespace.
func StripMetadata(text string) string {
	for _, re := range metadataPatterns {
		text = re.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

// contentPart is one element of an array-form content value.
type contentPart struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Content string `json:"content"`
}

// ExtractContent flattens a raw content value into plain text. Strings are
// used as is, arrays of parts are joined with newlines, objects contribute
// their text or content field. Absent or null content yields "".
func ExtractContent(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return StripMetadata(s)
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err == nil {
		texts := make([]string, 0, len(parts))
		for _, p := range parts {
			texts = append(texts, partText(p))
		}
		return strings.Join(texts, "\n")
	}

	return partText(raw)
}

func partText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return StripMetadata(s)
	}
	var p contentPart
	if err := json.Unmarshal(raw, &p); err != nil {
		return StripMetadata(string(raw))
	}
	if p.Text != "" {
		return StripMetadata(p.Text)
	}
	return StripMetadata(p.Content)
}

// Preview truncates s to at most n runes.
func Preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
