package interfaces

import "context"

// -----------------------------------------------------------------------------
// IDataExchanger is a network-facing server run by the main process.
// -----------------------------------------------------------------------------

type IDataExchanger interface {
	// Start the server; blocks until it stops.
	Start() error

	// -----------------------------------------------------------------------------
	// Stop the server gracefully
	Stop(ctx context.Context) error
}
