package interfaces

import (
	"context"
	"io"
)

// -----------------------------------------------------------------------------
// INetworkManager defines the contract for HTTP requests with potential proxy/retry logic.
// -----------------------------------------------------------------------------

type INetworkManager interface {

	// -----------------------------------------------------------------------------

	// Get performs a GET request to the specified URL with parameters.
	// Returns the response body as bytes or an error.
	Get(ctx context.Context, url string, params map[string]string) ([]byte, error)

	// -----------------------------------------------------------------------------

	// Stream opens a GET body for forward-only reading, with its declared length
	// (-1 when unknown). It is never retried.
	Stream(ctx context.Context, url string) (io.ReadCloser, int64, error)
}
