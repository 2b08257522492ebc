package generation

import (
	"context"
	"errors"
	"net"
)

// KindForTransportError classifies an error returned before any HTTP
// response was read. Deadlines are timeouts; everything else (refused
// connections, resets, DNS failures) is treated as a transient network error.
func KindForTransportError(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindTransientNetwork
}
