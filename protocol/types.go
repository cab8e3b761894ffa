package protocol

import (
	"context"
	"fmt"
	"sort"
)

// Handle is an open, claimed bootloader interface returned by Driver.Open.
// Handles that also implement io.Closer are closed when the session ends.
type Handle interface {
	// Opened reports whether the underlying device was actually opened.
	Opened() bool
}

// Driver is the device-side collaborator consumed by the bootloader package.
// Framing, wire encoding and register decoding all live behind it.
//
// The int returned by the code-returning methods is a driver status code:
// StatusSuccess means success, anything else is a failure.
type Driver interface {
	// Open opens the device with the given USB ids.
	Open(ctx context.Context, vendorID, productID uint16) (Handle, error)

	// ConfigureInterface prepares the opened interface for commands.
	ConfigureInterface(ctx context.Context, h Handle) (int, error)

	// QueryIdentity reads diagnostic chip fields.
	QueryIdentity(ctx context.Context, h Handle) (ChipInfo, error)

	// WriteImage writes data starting at origin.
	WriteImage(ctx context.Context, h Handle, data []byte, origin uint32) (int, error)

	// Boot leaves the bootloader and starts the application.
	Boot(ctx context.Context, h Handle) (int, error)
}

// ChipInfo holds named diagnostic fields reported by the chip, such as the
// chip id or bootloader version. Values are numbers or strings.
type ChipInfo map[string]any

// Keys returns the field names in sorted order.
func (c ChipInfo) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Format renders a single field. Integer values are printed as
// zero-padded 8-digit lowercase hex.
func (c ChipInfo) Format(key string) string {
	switch v := c[key].(type) {
	case uint32:
		return fmt.Sprintf("%08x", v)
	case uint16:
		return fmt.Sprintf("%08x", v)
	case uint8:
		return fmt.Sprintf("%08x", v)
	case uint:
		return fmt.Sprintf("%08x", v)
	case uint64:
		return fmt.Sprintf("%08x", v)
	case int:
		return fmt.Sprintf("%08x", uint32(v))
	case int8:
		return fmt.Sprintf("%08x", uint32(v))
	case int16:
		return fmt.Sprintf("%08x", uint32(v))
	case int32:
		return fmt.Sprintf("%08x", uint32(v))
	case int64:
		return fmt.Sprintf("%08x", uint32(v))
	case float64:
		// JSON-decoded numbers; go through int64 so negatives wrap like ints.
		return fmt.Sprintf("%08x", uint32(int64(v)))
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Clone returns an independent copy.
func (c ChipInfo) Clone() ChipInfo {
	if c == nil {
		return nil
	}
	out := make(ChipInfo, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
