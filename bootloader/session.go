package bootloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/moffa90/go-b003flash/image"
	"github.com/moffa90/go-b003flash/protocol"
)

// session is a single flash attempt. A session is never reused: Flasher
// builds a new one for every call to Flash.
type session struct {
	id     string
	driver protocol.Driver
	config *Config
	source image.Source
	emit   func(Status)
	start  time.Time

	state  State
	handle protocol.Handle
	image  *image.Image
	info   protocol.ChipInfo

	bytesWritten int
	checksum     uint16
	cleaned      bool
}

func newSession(id string, driver protocol.Driver, cfg *Config, src image.Source, emit func(Status)) *session {
	return &session{
		id:     id,
		driver: driver,
		config: cfg,
		source: src,
		emit:   emit,
		start:  time.Now(),
		state:  Idle,
	}
}

// run drives the session to a terminal state and cleans up exactly once.
func (s *session) run(ctx context.Context) *FlashError {
	defer s.cleanup()

	for !s.state.Terminal() {
		next, ferr := s.advance(ctx)
		if ferr != nil {
			ferr.State = s.state
			s.state = Failed
			s.logError("flash failed",
				"session", s.id,
				"kind", ferr.Kind.String(),
				"at", ferr.State.String(),
				"error", ferr.Error(),
			)
			s.report(Failed, ferr.Message(), ferr)
			return ferr
		}
		s.state = next
	}
	return nil
}

// advance performs the operation leaving the current state and returns the
// state it leads to.
func (s *session) advance(ctx context.Context) (State, *FlashError) {
	// Cancellation is honoured until the write is issued; afterwards the
	// session runs to completion.
	if s.state < Writing {
		if err := ctx.Err(); err != nil {
			return Failed, &FlashError{Kind: Canceled, Err: fmt.Errorf("cancelled: %w", err)}
		}
	} else {
		ctx = context.WithoutCancel(ctx)
	}

	switch s.state {
	case Idle:
		s.report(Opening, StatusOpening, nil)
		return Opening, nil

	case Opening:
		h, err := s.driver.Open(ctx, s.config.VendorID, s.config.ProductID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return Failed, &FlashError{Kind: Canceled, Err: fmt.Errorf("open device: %w", err)}
			}
			return Failed, &FlashError{Kind: OpenFailed, Err: fmt.Errorf("open device: %w", err)}
		}
		if h == nil || !h.Opened() {
			s.handle = h
			return Failed, &FlashError{Kind: OpenFailed, Err: errors.New("open device: driver returned no usable handle")}
		}
		s.handle = h
		s.logDebug("device opened",
			"vendor_id", fmt.Sprintf("0x%04X", s.config.VendorID),
			"product_id", fmt.Sprintf("0x%04X", s.config.ProductID),
		)
		s.report(Opened, StatusOpened, nil)
		return Opened, nil

	case Opened:
		code, err := s.driver.ConfigureInterface(ctx, s.handle)
		s.logDebug("setup interface", "result", code)
		if ferr := codeFailure(InterfaceSetupFailed, "configure interface", code, err); ferr != nil {
			return Failed, ferr
		}
		s.report(InterfaceReady, StatusInterface, nil)
		return InterfaceReady, nil

	case InterfaceReady:
		info, err := s.driver.QueryIdentity(ctx, s.handle)
		if err != nil {
			return Failed, &FlashError{Kind: IdentifyFailed, Err: fmt.Errorf("query identity: %w", err)}
		}
		s.info = info.Clone()
		for _, k := range s.info.Keys() {
			s.logInfo("chip info", "session", s.id, "field", k, "value", s.info.Format(k))
		}
		s.report(Identified, StatusIdentified, nil)
		return Identified, nil

	case Identified:
		img, ferr := s.resolve(ctx)
		if ferr != nil {
			return Failed, ferr
		}
		s.image = img
		s.checksum = img.Checksum()
		s.logInfo("image resolved", "session", s.id, "summary", img.Summary())
		s.report(Writing, StatusWriting, nil)
		return Writing, nil

	case Writing:
		code, err := s.driver.WriteImage(ctx, s.handle, s.image.Data, s.config.FlashOrigin)
		if ferr := codeFailure(WriteFailed, "write image", code, err); ferr != nil {
			return Failed, ferr
		}
		s.bytesWritten = len(s.image.Data)
		s.logDebug("image written",
			"bytes", s.bytesWritten,
			"origin", fmt.Sprintf("0x%08X", s.config.FlashOrigin),
		)
		return Booting, nil

	case Booting:
		code, err := s.driver.Boot(ctx, s.handle)
		if ferr := codeFailure(BootFailed, "boot", code, err); ferr != nil {
			return Failed, ferr
		}
		s.logInfo("flash complete",
			"session", s.id,
			"bytes", s.bytesWritten,
			"elapsed", time.Since(s.start).String(),
		)
		s.report(Done, StatusDone, nil)
		return Done, nil

	default:
		return Failed, &FlashError{Kind: Canceled, Err: fmt.Errorf("no transition from state %s", s.state)}
	}
}

// resolve obtains the image bytes, mapping resolver failures to error kinds.
func (s *session) resolve(ctx context.Context) (*image.Image, *FlashError) {
	if local, ok := s.source.(*image.Local); ok && !local.Supplied() {
		return nil, &FlashError{Kind: NoImageSupplied, Err: errors.New("no image file chosen")}
	}

	img, err := s.source.Resolve(ctx)
	if err == nil && img == nil {
		err = fmt.Errorf("resolver returned no image: %w", image.ErrSourceUnavailable)
	}
	if err != nil {
		var fetchErr *image.FetchError
		switch {
		case errors.As(err, &fetchErr):
			return nil, &FlashError{Kind: FetchFailed, Code: fetchErr.StatusCode, HasCode: true, Err: err}
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, &FlashError{Kind: Canceled, Err: err}
		default:
			return nil, &FlashError{Kind: SourceUnavailable, Err: err}
		}
	}
	return img, nil
}

// codeFailure maps a driver status code and error to a FlashError.
// A non-nil err is reported with protocol.StatusTransportError.
func codeFailure(kind ErrorKind, operation string, code int, err error) *FlashError {
	if err != nil {
		return &FlashError{
			Kind:    kind,
			Code:    protocol.StatusTransportError,
			HasCode: true,
			Err:     fmt.Errorf("%s: %w", operation, err),
		}
	}
	if statusErr := protocol.CheckStatus(operation, code); statusErr != nil {
		return &FlashError{Kind: kind, Code: code, HasCode: true, Err: statusErr}
	}
	return nil
}

// cleanup releases the handle and clears the image and identity. It is safe
// to call more than once.
func (s *session) cleanup() {
	if s.cleaned {
		return
	}
	s.cleaned = true

	if closer, ok := s.handle.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			s.logError("close device", "session", s.id, "error", err)
		}
	}
	s.handle = nil
	s.image = nil
	s.info = nil

	s.logDebug("session cleanup", "session", s.id, "state", s.state.String())
}

func (s *session) report(state State, msg string, ferr *FlashError) {
	if s.emit == nil {
		return
	}
	s.emit(Status{
		SessionID:   s.id,
		State:       state,
		Message:     msg,
		Err:         ferr,
		ElapsedTime: time.Since(s.start),
	})
}

func (s *session) logDebug(msg string, keysAndValues ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, keysAndValues...)
	}
}

func (s *session) logInfo(msg string, keysAndValues ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Info(msg, keysAndValues...)
	}
}

func (s *session) logError(msg string, keysAndValues ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Error(msg, keysAndValues...)
	}
}
