// Package simdriver provides an in-process B003 device driver. It keeps a
// simulated flash in memory and can be scripted to fail any step, which
// makes it useful for dry runs and for exercising the HTTP API.
package simdriver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/moffa90/go-b003flash/protocol"
)

// Step names a driver operation that can be scripted to fail.
type Step string

const (
	StepOpen      Step = "open"
	StepConfigure Step = "configure"
	StepIdentify  Step = "identify"
	StepWrite     Step = "write"
	StepBoot      Step = "boot"
)

// Config controls the simulated device.
type Config struct {
	// FailStep is the operation that fails, empty for none
	FailStep Step `yaml:"fail_step"`

	// FailCode is the status code returned by the failing step
	FailCode int `yaml:"fail_code"`

	// Latency is added to every operation
	Latency time.Duration `yaml:"latency"`

	// FlashSize is the size of the simulated flash in bytes
	FlashSize int `yaml:"flash_size"`

	// ChipID is reported by QueryIdentity
	ChipID uint32 `yaml:"chip_id"`
}

// DefaultConfig returns a device that succeeds on every step.
func DefaultConfig() Config {
	return Config{
		FlashSize: 16 * 1024,
		ChipID:    0x00300500,
	}
}

// Driver implements protocol.Driver against simulated memory.
type Driver struct {
	cfg Config

	mu     sync.Mutex
	flash  []byte
	booted bool
	opens  int
}

// New creates a simulated driver.
func New(cfg Config) *Driver {
	if cfg.FlashSize <= 0 {
		cfg.FlashSize = DefaultConfig().FlashSize
	}
	return &Driver{cfg: cfg}
}

// handle is the simulated device handle.
type handle struct {
	drv    *Driver
	opened bool
	ready  bool
}

func (h *handle) Opened() bool { return h.opened }

func (h *handle) Close() error {
	h.opened = false
	return nil
}

func (d *Driver) wait(ctx context.Context) error {
	if d.cfg.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d.cfg.Latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *Driver) fails(step Step) bool {
	return d.cfg.FailStep == step
}

func (d *Driver) failCode() int {
	if d.cfg.FailCode == 0 {
		return 1
	}
	return d.cfg.FailCode
}

// Open opens the simulated device. Only 1209:B003 is present.
func (d *Driver) Open(ctx context.Context, vendorID, productID uint16) (protocol.Handle, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	if d.fails(StepOpen) {
		return nil, fmt.Errorf("hid: access denied to %04x:%04x", vendorID, productID)
	}
	if vendorID != protocol.VendorID || productID != protocol.ProductID {
		return nil, fmt.Errorf("hid: no device %04x:%04x", vendorID, productID)
	}

	d.mu.Lock()
	d.opens++
	d.booted = false
	d.mu.Unlock()

	return &handle{drv: d, opened: true}, nil
}

func (d *Driver) check(h protocol.Handle) (*handle, error) {
	sh, ok := h.(*handle)
	if !ok || sh.drv != d || !sh.opened {
		return nil, fmt.Errorf("hid: invalid handle")
	}
	return sh, nil
}

// ConfigureInterface marks the handle ready for commands.
func (d *Driver) ConfigureInterface(ctx context.Context, h protocol.Handle) (int, error) {
	sh, err := d.check(h)
	if err != nil {
		return 0, err
	}
	if err := d.wait(ctx); err != nil {
		return 0, err
	}
	if d.fails(StepConfigure) {
		return d.failCode(), nil
	}
	sh.ready = true
	return protocol.StatusSuccess, nil
}

// QueryIdentity reports the simulated chip.
func (d *Driver) QueryIdentity(ctx context.Context, h protocol.Handle) (protocol.ChipInfo, error) {
	sh, err := d.check(h)
	if err != nil {
		return nil, err
	}
	if !sh.ready {
		return nil, fmt.Errorf("hid: interface not configured")
	}
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	if d.fails(StepIdentify) {
		return nil, fmt.Errorf("hid: chip info request timed out")
	}
	return protocol.ChipInfo{
		"chip_id":    d.cfg.ChipID,
		"flash_size": uint32(d.cfg.FlashSize),
		"bootloader": "simulated",
	}, nil
}

// WriteImage copies data into the simulated flash.
func (d *Driver) WriteImage(ctx context.Context, h protocol.Handle, data []byte, origin uint32) (int, error) {
	if _, err := d.check(h); err != nil {
		return 0, err
	}
	if err := d.wait(ctx); err != nil {
		return 0, err
	}
	if d.fails(StepWrite) {
		return d.failCode(), nil
	}
	if origin != protocol.FlashOrigin {
		return 2, nil
	}
	if len(data) > d.cfg.FlashSize {
		return 3, nil
	}

	d.mu.Lock()
	d.flash = append(d.flash[:0], data...)
	d.mu.Unlock()
	return protocol.StatusSuccess, nil
}

// Boot starts the simulated application.
func (d *Driver) Boot(ctx context.Context, h protocol.Handle) (int, error) {
	if _, err := d.check(h); err != nil {
		return 0, err
	}
	if err := d.wait(ctx); err != nil {
		return 0, err
	}
	if d.fails(StepBoot) {
		return d.failCode(), nil
	}

	d.mu.Lock()
	d.booted = true
	d.mu.Unlock()
	return protocol.StatusSuccess, nil
}

// Flash returns a copy of the simulated flash contents.
func (d *Driver) Flash() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.flash...)
}

// Booted reports whether the last session booted the application.
func (d *Driver) Booted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.booted
}

// Opens returns how many times the device was opened.
func (d *Driver) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}
