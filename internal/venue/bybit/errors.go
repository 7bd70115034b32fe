package bybit

import "fmt"

// APIError carries a Bybit retCode alongside its message
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if reason, ok := rejectionReason(e.Code); ok {
		return fmt.Sprintf("bybit API error %d (%s): %s", e.Code, reason, e.Message)
	}
	return fmt.Sprintf("bybit API error %d: %s", e.Code, e.Message)
}

// Bybit error codes the adapter cares about
const (
	errCodeRateLimitExceeded   = 10006
	errCodeInsufficientBalance = 110007
	errCodeMarketClosed        = 110043
)

// rejectionReason names the permanent rejections worth calling out to the
// operator; anything else surfaces with its raw code only
func rejectionReason(code int) (string, bool) {
	switch code {
	case errCodeInsufficientBalance:
		return "insufficient balance", true
	case errCodeMarketClosed:
		return "market closed", true
	}
	return "", false
}

// isRetryableCode reports whether an API error is transient. Rejections
// like insufficient balance or a bad symbol never are.
func isRetryableCode(err error) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}
	switch apiErr.Code {
	case errCodeRateLimitExceeded, 500, 502, 503, 504:
		return true
	}
	return false
}
