package bootloader

import (
	"errors"
	"fmt"
)

// ErrSessionActive is returned by Flash while another session is running.
var ErrSessionActive = errors.New("a flash session is already active")

// ErrNilSource is returned by Flash when no image source is given.
var ErrNilSource = errors.New("image source cannot be nil")

// ErrRemoteNotConfirmed is returned when the operator declined to flash an
// untrusted remote image.
var ErrRemoteNotConfirmed = errors.New("remote image not confirmed by operator")

// ErrorKind classifies why a session failed.
type ErrorKind int

const (
	OpenFailed ErrorKind = iota + 1
	InterfaceSetupFailed
	IdentifyFailed
	NoImageSupplied
	FetchFailed
	WriteFailed
	BootFailed
	SourceUnavailable
	Canceled
)

func (k ErrorKind) String() string {
	switch k {
	case OpenFailed:
		return "OpenFailed"
	case InterfaceSetupFailed:
		return "InterfaceSetupFailed"
	case IdentifyFailed:
		return "IdentifyFailed"
	case NoImageSupplied:
		return "NoImageSupplied"
	case FetchFailed:
		return "FetchFailed"
	case WriteFailed:
		return "WriteFailed"
	case BootFailed:
		return "BootFailed"
	case SourceUnavailable:
		return "SourceUnavailable"
	case Canceled:
		return "Canceled"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ErrorKind) UnmarshalText(text []byte) error {
	for kind := OpenFailed; kind <= Canceled; kind++ {
		if kind.String() == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown error kind %q", text)
}

// OpenFailedRemediation explains how to grant the host access to the device.
const OpenFailedRemediation = `The device could not be opened. On Linux, HID devices are read-only for regular users by default.
Create /etc/udev/rules.d/99-ch32v003.rules containing:

    KERNEL=="hidraw*", ATTRS{idVendor}=="1209", MODE="0664", GROUP="plugdev"

and add your user to the plugdev group:

    usermod -aG plugdev $your_user

See https://developer.chrome.com/docs/capabilities/hid for more information.`

// FlashError is the terminal failure of a session.
type FlashError struct {
	// Kind is the failure classification
	Kind ErrorKind

	// Code is the driver status code (or HTTP status for FetchFailed);
	// valid only when HasCode is set
	Code    int
	HasCode bool

	// State is the last state reached before the failure
	State State

	// Err is the underlying error, if any
	Err error
}

func (e *FlashError) Error() string {
	msg := e.Kind.String()
	if e.HasCode {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *FlashError) Unwrap() error {
	return e.Err
}

// Message returns the operator status line for the failure.
func (e *FlashError) Message() string {
	switch e.Kind {
	case OpenFailed:
		return "Failed opening device"
	case InterfaceSetupFailed:
		return "Failed setting up interface"
	case IdentifyFailed:
		return "Failed acquiring chip info"
	case NoImageSupplied:
		return "No file opened!"
	case FetchFailed:
		return "Failed to fetch external image!"
	case SourceUnavailable:
		return "Failed to read image!"
	case WriteFailed:
		return fmt.Sprintf("Failed writing image (%d)", e.Code)
	case BootFailed:
		return fmt.Sprintf("Failed booting (%d)... please reset the device", e.Code)
	case Canceled:
		return "Cancelled"
	default:
		return e.Error()
	}
}

// Remediation returns corrective guidance for failures caused by the host
// environment. It is empty for every kind except OpenFailed.
func (e *FlashError) Remediation() string {
	if e.Kind == OpenFailed {
		return OpenFailedRemediation
	}
	return ""
}

// KindOf returns the ErrorKind carried by err, or 0 if err is not a
// *FlashError.
func KindOf(err error) ErrorKind {
	var fe *FlashError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// IsOpenFailed reports whether err is an OpenFailed session failure.
func IsOpenFailed(err error) bool {
	return KindOf(err) == OpenFailed
}
