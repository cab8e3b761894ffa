package protocol

// USB identifiers of the B003 bootloader.
const (
	// VendorID is the pid.codes vendor id (0x1209)
	VendorID = 0x1209

	// ProductID is the bootloader product id (0xB003)
	ProductID = 0xB003
)

// FlashOrigin is the address where the image write begins.
const FlashOrigin uint32 = 0x08000000

// Driver status codes. Every value other than StatusSuccess is
// driver-specific and opaque to the orchestrator.
const (
	// StatusSuccess indicates the driver call completed
	StatusSuccess = 0

	// StatusTransportError is reported when a code-returning driver call
	// failed with an error instead of a status code
	StatusTransportError = -1
)
