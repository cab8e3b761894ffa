// Package bootloader flashes firmware images onto B003 bootloader devices
// (USB 1209:B003).
//
// # Overview
//
// A Flasher runs one session per Flash call. A session walks a fixed,
// forward-only sequence:
//
//	Idle -> Opening -> Opened -> InterfaceReady -> Identified -> Writing -> Booting -> Done
//
// Every step can fail, which moves the session to Failed. Failures are
// never retried; the device handle is released, the image buffer and chip
// identity are cleared, and the next Flash call starts again by opening the
// device.
//
// # Basic Usage
//
//	// User provides the device driver (protocol.Driver)
//	drv := myhid.NewDriver()
//
//	f := bootloader.New(drv)
//	res, err := f.Flash(context.Background(), image.FromFile("firmware.bin"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("session", res.SessionID, "wrote", res.BytesWritten, "bytes")
//
// # Status Tracking
//
// Every transition emits a human-readable status line. A successful session
// reports:
//
//	Opening device
//	Device opened
//	Interface setup
//	Chip Info acquired
//	Writing Image...
//	Done!
//
// Subscribe with WithStatusCallback:
//
//	f := bootloader.New(drv,
//	    bootloader.WithStatusCallback(func(s bootloader.Status) {
//	        fmt.Printf("[%s] %s\n", s.State, s.Message)
//	    }),
//	)
//
// # Remote Images
//
// Remote images (image.ParseRemote) are untrusted. They are fetched lazily,
// after the chip has been identified, so a fetch failure surfaces only once
// the device is already open. Use WithRemoteConfirm to require operator
// approval before the session starts.
//
// # Error Handling
//
// Session failures are returned as *FlashError with one of these kinds:
//   - OpenFailed: the host could not open the device; see Remediation
//   - InterfaceSetupFailed: the driver rejected the interface setup
//   - IdentifyFailed: chip identity could not be read
//   - NoImageSupplied: a local source without a chosen file
//   - FetchFailed: the remote server answered with a non-2xx status
//   - SourceUnavailable: the image could not be read or downloaded
//   - WriteFailed: the driver rejected the image write (Code holds the status)
//   - BootFailed: the driver could not boot; the device must be reset by hand
//   - Canceled: the context ended before the image write was issued
//
// A failure stays pending until Acknowledge is called, which resets the
// status to "Not connected".
//
// # Context Support
//
// The context is passed to every driver call. It is honoured up to the
// image write; once the write is issued the session runs to completion.
//
// # Hardware Independence
//
// This package does NOT talk to USB. Users provide a protocol.Driver for
// their transport, or a mock for testing.
package bootloader
