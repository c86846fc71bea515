package connectivity

import (
	"strings"

	"github.com/nezumi0627/ClawBridge/pkg/api"
)

var errorKindMarkers = []struct {
	kind    string
	markers []string
}{
	{api.ErrorKindAuthRequired, []string{"401", "auth", "api key", "unauthorized"}},
	{api.ErrorKindRateLimited, []string{"429", "rate limit"}},
	{api.ErrorKindModelNotFound, []string{"404", "not found", "model_not_found"}},
}

// ClassifyError maps a probe failure message to an error kind. Matching is
// case-insensitive and the first kind with a matching marker wins.
func ClassifyError(msg string) string {
	lower := strings.ToLower(msg)
	for _, k := range errorKindMarkers {
		for _, m := range k.markers {
			if strings.Contains(lower, m) {
				return k.kind
			}
		}
	}
	return api.ErrorKindUnknown
}
