package supervisor

import (
	"regexp"
	"strings"
)

// LineClass is the severity assigned to a line of gateway stderr.
type LineClass int

const (
	// LineNoise is routine output, logged at debug level.
	LineNoise LineClass = iota
	// LineWarning is a traceback or error line worth surfacing.
	LineWarning
	// LineMissingDependency means the gateway lacks a runtime package.
	LineMissingDependency
)

func (c LineClass) String() string {
	switch c {
	case LineWarning:
		return "warning"
	case LineMissingDependency:
		return "missing_dependency"
	default:
		return "noise"
	}
}

var missingModule = regexp.MustCompile(`No module named ['"]([^'"]+)['"]`)

// Classify assigns a severity to one stderr line.
func Classify(line string) LineClass {
	switch {
	case strings.Contains(line, "MissingRequirementsError"):
		return LineMissingDependency
	case (strings.Contains(line, "ImportError") || strings.Contains(line, "ModuleNotFoundError")) &&
		strings.Contains(line, "No module named"):
		return LineMissingDependency
	case strings.Contains(line, "Traceback"),
		strings.Contains(line, "ERROR") && !strings.Contains(line, "RetryProvider"),
		strings.Contains(line, "Fatal"):
		return LineWarning
	default:
		return LineNoise
	}
}

// MissingModule returns the module named in an import failure, or "".
func MissingModule(line string) string {
	m := missingModule.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	return m[1]
}

// hasMarker reports whether line contains any readiness marker.
func hasMarker(line string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(line, m) {
			return true
		}
	}
	return false
}
