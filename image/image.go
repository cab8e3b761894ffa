package image

import "fmt"

// Kind identifies where an image comes from.
type Kind int

const (
	// KindLocal is an operator-supplied file
	KindLocal Kind = iota

	// KindRemote is an image fetched from a trusted-pattern URL
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindRemote:
		return "remote"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Image is a resolved firmware binary held in memory.
// Data is owned by the Image and must not be modified after resolution.
type Image struct {
	// Data is the raw binary to write, possibly empty
	Data []byte

	// Origin is the file name or URL the data was read from
	Origin string

	// Kind is the kind of source that produced the image
	Kind Kind
}

// Size returns the image length in bytes.
func (img *Image) Size() int {
	return len(img.Data)
}

// Checksum returns the 16-bit two's complement sum of the image.
func (img *Image) Checksum() uint16 {
	return Checksum(img.Data)
}

// Summary is a one-line description for operator logs.
func (img *Image) Summary() string {
	return fmt.Sprintf("%s image %q: %d bytes, checksum 0x%04X, crc16 0x%04X",
		img.Kind, img.Origin, len(img.Data), Checksum(img.Data), CRC16(img.Data))
}
