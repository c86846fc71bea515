package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"syscall"

	"github.com/nezumi0627/ClawBridge/pkg/provider"
)

var (
	pipCommand   = regexp.MustCompile(`pip install[^|\n]*`)
	installQuote = regexp.MustCompile(`Install\s+["']([^"']+)["']`)
	noModule     = regexp.MustCompile(`No module named ['"]([^'"]+)['"]`)
)

// defaultInstall is suggested when no package name can be extracted.
const defaultInstall = "pip install -U nodriver platformdirs"

// InstallHint returns the pip command that resolves a missing-dependency
// message.
func InstallHint(msg string) string {
	if m := pipCommand.FindString(msg); m != "" {
		return strings.TrimSpace(m)
	}
	if m := installQuote.FindStringSubmatch(msg); m != nil {
		return "pip install -U " + m[1]
	}
	if m := noModule.FindStringSubmatch(msg); m != nil {
		return "pip install " + m[1]
	}
	return defaultInstall
}

func isDependencyMessage(msg string) bool {
	return strings.Contains(msg, "MissingRequirementsError") ||
		(strings.Contains(msg, "Install") && strings.Contains(msg, "pip install")) ||
		strings.Contains(msg, "No module named")
}

// mapError rewrites client errors into the messages operators expect from
// the gateway.
func mapError(err error) error {
	var be *provider.BackendError
	if !errors.As(err, &be) {
		return err
	}

	if be.Status == 0 {
		switch {
		case errors.Is(err, syscall.ECONNREFUSED):
			return &provider.BackendError{Provider: Name, Message: "G4F server is offline or starting up.", Err: err}
		case isTimeout(err):
			return &provider.BackendError{Provider: Name, Message: "G4F request timed out. The model may be slow or unavailable.", Err: err}
		}
		return err
	}

	msg := be.Message
	out := &provider.BackendError{Provider: Name, Status: be.Status, Err: err}
	switch {
	case isDependencyMessage(msg):
		out.Message = fmt.Sprintf("G4F Missing Dependencies: This model requires additional Python packages.\n\n"+
			"Please run:\n%s\n\nOr install all G4F dependencies:\npip install -U g4f[all]", InstallHint(msg))
	case be.Status == http.StatusUnauthorized || strings.Contains(msg, "Auth") || strings.Contains(msg, "authentication"):
		out.Message = "Authentication Required: " + msg
	case be.Status == http.StatusTooManyRequests || strings.Contains(msg, "RateLimit") || strings.Contains(msg, "rate limit"):
		out.Message = "Rate Limited: " + msg
	case be.Status == http.StatusServiceUnavailable || strings.Contains(msg, "503"):
		out.Message = "Service Unavailable: " + msg
	default:
		out.Message = fmt.Sprintf("G4F HTTP %d: %s", be.Status, msg)
	}
	return out
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
