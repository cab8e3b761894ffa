package bootloader

import "github.com/moffa90/go-b003flash/protocol"

// Config holds the flasher configuration.
type Config struct {
	// StatusCallback receives every status update (optional)
	StatusCallback StatusCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// RemoteConfirm gates flashing of remote images (optional)
	RemoteConfirm RemoteConfirm

	// VendorID and ProductID select the device to open
	VendorID  uint16
	ProductID uint16

	// FlashOrigin is the address the image is written to
	FlashOrigin uint32
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		VendorID:    protocol.VendorID,
		ProductID:   protocol.ProductID,
		FlashOrigin: protocol.FlashOrigin,
	}
}

// Option is a functional option for configuring the Flasher.
type Option func(*Config)

// WithStatusCallback sets a callback receiving status updates.
//
// Example:
//
//	f := bootloader.New(drv,
//	    bootloader.WithStatusCallback(func(s bootloader.Status) {
//	        fmt.Printf("[%s] %s\n", s.State, s.Message)
//	    }),
//	)
func WithStatusCallback(callback StatusCallback) Option {
	return func(c *Config) {
		c.StatusCallback = callback
	}
}

// WithLogger sets a logger for the flasher operations.
//
// Example:
//
//	f := bootloader.New(drv, bootloader.WithLogger(myLogger))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithRemoteConfirm sets the function asked to confirm untrusted remote
// images. Without it remote images are flashed after a warning is logged.
//
// Example:
//
//	f := bootloader.New(drv, bootloader.WithRemoteConfirm(func(url, warning string) bool {
//	    fmt.Println(warning, url)
//	    return askYesNo()
//	}))
func WithRemoteConfirm(confirm RemoteConfirm) Option {
	return func(c *Config) {
		c.RemoteConfirm = confirm
	}
}

// WithDeviceIDs overrides the USB vendor and product id.
// Zero values keep the defaults (0x1209/0xB003).
func WithDeviceIDs(vendorID, productID uint16) Option {
	return func(c *Config) {
		if vendorID != 0 {
			c.VendorID = vendorID
		}
		if productID != 0 {
			c.ProductID = productID
		}
	}
}
