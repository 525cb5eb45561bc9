package retry

import (
	"strings"

	"github.com/ericfisherdev/datawipe/internal/domain/model"
)

// classRules are checked in order; the first class with a matching term wins.
var classRules = []struct {
	class model.FailureClass
	terms []string
}{
	{model.FailureNetwork, []string{"network", "connection", "timeout", "timed out", "unreachable"}},
	{model.FailureRateLimit, []string{"rate limit", "too many requests", "429"}},
	{model.FailureCaptcha, []string{"captcha", "verification", "robot"}},
	{model.FailureAuth, []string{"auth", "login", "password", "credential"}},
	{model.FailureSiteUnavailable, []string{"500", "502", "503", "504", "unavailable", "maintenance"}},
}

// nonRetryableMarkers identify failures that will never succeed on retry.
var nonRetryableMarkers = []string{"account_deleted", "invalid_credentials", "account_not_found"}

// Classify maps an error message to its failure class.
func Classify(message string) model.FailureClass {
	msg := strings.ToLower(message)
	for _, rule := range classRules {
		for _, term := range rule.terms {
			if strings.Contains(msg, term) {
				return rule.class
			}
		}
	}
	return model.FailureUnknown
}

func isNonRetryable(message string) bool {
	msg := strings.ToLower(message)
	for _, marker := range nonRetryableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
