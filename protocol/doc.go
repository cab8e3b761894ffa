// Package protocol describes the contract between the flashing orchestrator
// and the device driver of the B003 bootloader (USB 1209:B003).
//
// The bootloader wire format and the USB/HID transport are not implemented
// here. A driver implements the five operations of the Driver interface:
//
//	Open               -> Handle
//	ConfigureInterface -> status code
//	QueryIdentity      -> ChipInfo
//	WriteImage         -> status code (at FlashOrigin)
//	Boot               -> status code
//
// # Status Codes
//
// Code-returning calls report StatusSuccess (0) on success. Any other value
// is driver-specific; use CheckStatus to turn it into a *StatusError:
//
//	code, err := drv.Boot(ctx, h)
//	if err == nil {
//	    err = protocol.CheckStatus("boot", code)
//	}
//	// err.Error() returns: "boot failed: driver status (3)"
//
// # Chip Identity
//
// ChipInfo is a read-only bag of diagnostic fields. Numbers are rendered as
// 8-digit hex by ChipInfo.Format.
package protocol
