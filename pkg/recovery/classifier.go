// Package recovery classifies step failures into a closed error taxonomy
// and drives policy-based recovery: each failed step's policy names the
// error kinds it covers and, in order, the recovery actions to try.
package recovery

import (
	"regexp"
	"strings"

	"github.com/nullfox-coder/NatanAI/pkg/types"
)

// Marker sets checked in a fixed order; the first kind whose markers match
// wins, so a CAPTCHA page that also timed out still classifies as captcha.
var (
	captchaMarkers = []string{
		"captcha", "recaptcha", "hcaptcha", "are you a robot",
		"verify you are human", "challenge",
	}
	timeoutMarkers = []string{
		"timeout", "timed out", "deadline exceeded", "took too long",
	}
	elementMarkers = []string{
		"no such element", "element not found", "no element", "not visible",
		"not attached", "selector resolved to hidden", "detached from",
		"could not find element", "failed to find element",
		"waiting for selector", "waiting for locator",
	}
	navigationMarkers = []string{
		"navigation failed", "err_name_not_resolved", "err_aborted",
		"net::err", "dns", "invalid url", "page crashed",
		"could not navigate", "navigation to",
	}
	networkMarkers = []string{
		"network", "connection refused", "connection reset",
		"no internet", "offline", "socket", "eof", "broken pipe",
		"proxy", "tls", "certificate",
	}
	validationMarkers = []string{
		"validation", "invalid input", "invalid value", "required field",
		"missing parameter", "missing required", "invalid parameter",
	}

	httpStatusRe = regexp.MustCompile(`\b(4\d\d|5\d\d)\b`)
)

// Classify maps a raw error signal to its kind. Total and deterministic:
// the same input always yields the same kind, and anything unrecognized
// falls back to Unknown.
func Classify(signal string) types.ErrorKind {
	s := strings.ToLower(signal)

	switch {
	case matchesAny(s, captchaMarkers):
		return types.KindCaptcha
	case matchesAny(s, timeoutMarkers):
		return types.KindTimeout
	case matchesAny(s, elementMarkers):
		return types.KindElementNotFound
	case matchesAny(s, navigationMarkers):
		return types.KindNavigation
	case matchesAny(s, networkMarkers) || isHTTPErrorStatus(s):
		return types.KindNetwork
	case matchesAny(s, validationMarkers):
		return types.KindValidation
	default:
		return types.KindUnknown
	}
}

// ClassifyError classifies a Go error, treating nil as Unknown.
func ClassifyError(err error) types.ErrorKind {
	if err == nil {
		return types.KindUnknown
	}
	return Classify(err.Error())
}

func matchesAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// isHTTPErrorStatus reports whether the signal mentions a 4xx or 5xx
// status code alongside status wording, e.g. "status 503" or "HTTP 404".
func isHTTPErrorStatus(s string) bool {
	if !strings.Contains(s, "status") && !strings.Contains(s, "http") {
		return false
	}
	return httpStatusRe.MatchString(s)
}
