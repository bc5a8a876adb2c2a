package fetch

import (
	"errors"
	"fmt"
)

// Upstream services a StatusError can originate from.
const (
	ServiceGraphQL = "graphql"
	ServiceIPFS    = "ipfs"
	ServicePrice   = "price"
)

// StatusError is returned whenever an upstream answers outside the 2xx range.
// The response body is dropped; callers only get the status.
type StatusError struct {
	Service string
	URL     string
	Status  int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s request to %s failed with HTTP %d", e.Service, e.URL, e.Status)
}

// StatusOf extracts the upstream HTTP status from err.
func StatusOf(err error) (int, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status, true
	}
	return 0, false
}

// IsService reports whether err is a StatusError raised by the given service.
func IsService(err error, service string) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Service == service
}
