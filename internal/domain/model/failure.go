package model

// FailureClass groups deletion failures that share a retry strategy.
type FailureClass string

const (
	FailureNetwork         FailureClass = "network_error"
	FailureRateLimit       FailureClass = "rate_limit"
	FailureCaptcha         FailureClass = "captcha_required"
	FailureAuth            FailureClass = "auth_failed"
	FailureSiteUnavailable FailureClass = "site_unavailable"
	FailureUnknown         FailureClass = "unknown"
)
