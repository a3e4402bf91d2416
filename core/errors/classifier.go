package errors

import "strings"

var transientKeywords = []string{
	"timeout",
	"timed out",
	"temporary",
	"temporarily",
	"connection reset",
	"connection refused",
	"eof",
	"broken pipe",
	"network unreachable",
	"no route to host",
	"rate limit",
	"too many requests",
	"quota",
	"unavailable",
	"overloaded",
}

var permanentKeywords = []string{
	"invalid",
	"malformed",
	"not found",
	"unauthorized",
	"forbidden",
	"unsupported",
	"permission denied",
}

// IsTransient reports whether an error's text matches known transient failure
// patterns. Permanent patterns take precedence so that "invalid request
// timeout parameter" is not retried forever.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	lower := strings.ToLower(err.Error())
	for _, kw := range permanentKeywords {
		if strings.Contains(lower, kw) {
			return false
		}
	}
	for _, kw := range transientKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
