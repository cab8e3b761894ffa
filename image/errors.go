package image

import (
	"errors"
	"fmt"
)

// ErrSourceUnavailable is returned when no bytes could be obtained: no file
// was supplied, the file could not be read, or the network request failed.
var ErrSourceUnavailable = errors.New("image source unavailable")

// ErrUntrustedURL is returned by ParseRemote for URLs that do not match the
// trusted image pattern.
var ErrUntrustedURL = errors.New("url does not match trusted image pattern")

// FetchError indicates the remote server answered with a non-success status.
type FetchError struct {
	URL        string
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected HTTP status %d", e.URL, e.StatusCode)
}
