package bootloader

import "time"

// Status is a progress update for the running session.
// Passed to StatusCallback on every state change that has an operator message.
type Status struct {
	// SessionID identifies the flash attempt
	SessionID string

	// State is the state just entered
	State State

	// Message is the human-readable status line, for example "Device opened"
	Message string

	// Err is set when State is Failed
	Err *FlashError

	// ElapsedTime is the time elapsed since the session started
	ElapsedTime time.Duration
}

// StatusCallback is called synchronously for every status update.
// Implementations should return quickly to avoid stalling the device.
//
// Example:
//
//	f := bootloader.New(drv,
//	    bootloader.WithStatusCallback(func(s bootloader.Status) {
//	        fmt.Println("Status:", s.Message)
//	    }),
//	)
type StatusCallback func(Status)

// RemoteConfirm is asked before a session using an untrusted remote image
// is started. Returning false aborts Flash with ErrRemoteNotConfirmed.
type RemoteConfirm func(url, warning string) bool

// Logger is an optional logging interface that can be provided to the flasher.
// This allows integration with any logging framework.
//
// Example with log/slog:
//
//	type SlogLogger struct{ l *slog.Logger }
//	func (s SlogLogger) Debug(msg string, kv ...interface{}) { s.l.Debug(msg, kv...) }
//	func (s SlogLogger) Info(msg string, kv ...interface{})  { s.l.Info(msg, kv...) }
//	func (s SlogLogger) Error(msg string, kv ...interface{}) { s.l.Error(msg, kv...) }
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
