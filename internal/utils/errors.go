package utils

import (
	"errors"
	"net"
	"strings"
)

// IsRecoverableError reports whether a backend submission error is worth
// retrying before the backend has accepted the work.
func IsRecoverableError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	recoverablePrefixes := []string{
		"backend returned status 502",
		"backend returned status 503",
		"backend returned status 504",
	}
	for _, recoverable := range recoverablePrefixes {
		if strings.HasPrefix(err.Error(), recoverable) {
			return true
		}
	}
	return false
}
