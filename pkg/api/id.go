package api

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	idLength = 24
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	completionIDPrefix = "chatcmpl-"
	toolCallIDPrefix   = "call_"
)

var (
	completionIDPattern = regexp.MustCompile(`^chatcmpl-[a-f0-9]{32}$`)
	toolCallIDPattern   = regexp.MustCompile(`^call_[a-zA-Z0-9]{24}$`)
)

// NewCompletionID generates a completion ID with the "chatcmpl-" prefix
// followed by a dash-free random UUID.
func NewCompletionID() string {
	return completionIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewToolCallID generates a tool call ID with the "call_" prefix
// followed by 24 cryptographically random alphanumeric characters.
func NewToolCallID() string {
	return toolCallIDPrefix + randomAlphanumeric(idLength)
}

// ValidateCompletionID reports whether id has the completion ID shape.
func ValidateCompletionID(id string) bool {
	return completionIDPattern.MatchString(id)
}

// ValidateToolCallID reports whether id has the tool call ID shape.
func ValidateToolCallID(id string) bool {
	return toolCallIDPattern.MatchString(id)
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
