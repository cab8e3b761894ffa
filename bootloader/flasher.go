package bootloader

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moffa90/go-b003flash/image"
	"github.com/moffa90/go-b003flash/protocol"
)

// Flasher drives B003 bootloader devices through the flashing sequence:
//  1. Open the device (0x1209/0xB003)
//  2. Configure the interface
//  3. Query chip identity
//  4. Resolve the image and write it at 0x08000000
//  5. Boot the application
//
// At most one session runs at a time. Flasher is safe for concurrent use;
// concurrent Flash calls fail with ErrSessionActive.
type Flasher struct {
	driver protocol.Driver
	config Config

	mu      sync.Mutex
	active  string
	status  string
	pending *FlashError
}

// Result describes a finished session.
type Result struct {
	// SessionID identifies the flash attempt
	SessionID string

	// State is Done or Failed
	State State

	// Source describes the image source
	Source string

	// BytesWritten is the image size once the write succeeded
	BytesWritten int

	// Checksum is the 16-bit sum of the resolved image
	Checksum uint16

	// ElapsedTime is the session duration
	ElapsedTime time.Duration
}

// New creates a new Flasher using the given driver and options.
//
// Example:
//
//	f := bootloader.New(drv,
//	    bootloader.WithStatusCallback(statusFunc),
//	    bootloader.WithLogger(logger),
//	)
func New(driver protocol.Driver, opts ...Option) *Flasher {
	if driver == nil {
		panic("driver cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Flasher{
		driver: driver,
		config: cfg,
		status: StatusNotConnected,
	}
}

// Flash runs one complete session for src. Every failure is terminal for
// the session and returned as a *FlashError; a new call starts over from
// opening the device.
//
// The returned Result is non-nil whenever a session was started.
//
// Example:
//
//	res, err := f.Flash(ctx, image.FromFile("firmware.bin"))
//	if bootloader.IsOpenFailed(err) {
//	    fmt.Println(err.(*bootloader.FlashError).Remediation())
//	}
func (f *Flasher) Flash(ctx context.Context, src image.Source) (*Result, error) {
	if src == nil {
		return nil, ErrNilSource
	}

	id := uuid.NewString()

	// Reserve the slot first so the operator is never asked about a remote
	// image for a session that cannot start.
	f.mu.Lock()
	if f.active != "" {
		f.mu.Unlock()
		return nil, ErrSessionActive
	}
	f.active = id
	f.mu.Unlock()

	if remote, ok := src.(*image.Remote); ok {
		f.logInfo("untrusted remote image", "url", remote.URL(), "warning", remote.Warning())
		if f.config.RemoteConfirm != nil && !f.config.RemoteConfirm(remote.URL(), remote.Warning()) {
			f.mu.Lock()
			f.active = ""
			f.mu.Unlock()
			return nil, ErrRemoteNotConfirmed
		}
	}

	f.mu.Lock()
	if f.pending != nil {
		f.logDebug("discarding unacknowledged failure", "kind", f.pending.Kind.String())
		f.pending = nil
	}
	f.mu.Unlock()

	f.logInfo("flash session started", "session", id, "source", src.String())

	s := newSession(id, f.driver, &f.config, src, f.publish)
	ferr := s.run(ctx)

	res := &Result{
		SessionID:    id,
		State:        s.state,
		Source:       src.String(),
		BytesWritten: s.bytesWritten,
		Checksum:     s.checksum,
		ElapsedTime:  time.Since(s.start),
	}

	f.mu.Lock()
	f.active = ""
	if ferr != nil {
		f.pending = ferr
	}
	f.mu.Unlock()

	if ferr != nil {
		return res, ferr
	}
	return res, nil
}

// Status returns the current operator status line.
func (f *Flasher) Status() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Active returns the id of the running session, or "" when idle.
func (f *Flasher) Active() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Pending returns the last failure not yet acknowledged by the operator.
func (f *Flasher) Pending() *FlashError {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

// Acknowledge dismisses a pending failure and resets the status to
// "Not connected". It is a no-op while a session is running.
func (f *Flasher) Acknowledge() {
	f.mu.Lock()
	if f.active != "" {
		f.mu.Unlock()
		return
	}
	f.pending = nil
	f.status = StatusNotConnected
	cb := f.config.StatusCallback
	f.mu.Unlock()

	if cb != nil {
		cb(Status{State: Idle, Message: StatusNotConnected})
	}
}

// publish records the status line and forwards it to the callback.
func (f *Flasher) publish(st Status) {
	f.mu.Lock()
	f.status = st.Message
	f.mu.Unlock()

	if f.config.StatusCallback != nil {
		f.config.StatusCallback(st)
	}
}

func (f *Flasher) logDebug(msg string, keysAndValues ...interface{}) {
	if f.config.Logger != nil {
		f.config.Logger.Debug(msg, keysAndValues...)
	}
}

func (f *Flasher) logInfo(msg string, keysAndValues ...interface{}) {
	if f.config.Logger != nil {
		f.config.Logger.Info(msg, keysAndValues...)
	}
}
