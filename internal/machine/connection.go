// Package machine holds the washing machine data model and the capability
// contract shared by the local and cloud backends.
package machine

import "context"

// Kind identifies the backend behind a Connection.
type Kind string

const (
	KindLocal Kind = "local"
	KindCloud Kind = "cloud"
)

// Connection is the capability set both backends satisfy. Implementations
// own their ConnectionState; callers read it back after RefreshData.
type Connection interface {
	// Kind reports which backend serves this connection.
	Kind() Kind

	// RefreshData rebuilds the connection state. It never returns an error;
	// failures are recorded as an error state.
	RefreshData(ctx context.Context)

	// RefreshConfiguration re-reads the machine configuration only.
	RefreshConfiguration(ctx context.Context)

	// ConnectionState returns the last computed state without doing I/O.
	ConnectionState() ConnectionState

	SendMachineConfiguration(ctx context.Context, archive string, data []byte) error
	GetMachineConfiguration(ctx context.Context, archive string) ([]byte, error)
	SelectMachineConfiguration(ctx context.Context, archive string) error

	// Command verbs return once the transport accepted the command; the
	// physical cycle runs asynchronously on the device.
	StartProgram(ctx context.Context, program uint16) error
	Restart(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	ClearAlarms(ctx context.Context) error
}
