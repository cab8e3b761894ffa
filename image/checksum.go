package image

// Checksum algorithm constants.
const (
	// ChecksumMask is the 16-bit mask used in checksum calculations
	ChecksumMask = 0xFFFF

	// CRC16Polynomial is the CRC-16-CCITT polynomial (0x1021)
	CRC16Polynomial = 0x1021

	// CRC16InitialValue is the CRC-16 initial value
	CRC16InitialValue = 0xFFFF

	// CRC16HighBitMask is the high bit mask for CRC-16 calculations
	CRC16HighBitMask = 0x8000

	// BitsPerByte is the number of bits per byte
	BitsPerByte = 8
)

// Checksum computes the 16-bit two's complement sum of data.
// It is reported to the operator so an image can be matched against the
// one the vendor published.
func Checksum(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return 1 + (ChecksumMask ^ sum)
}

// CRC16 computes the CRC-16-CCITT of data.
//
// Parameters:
//   - Polynomial: CRC16Polynomial
//   - Initial value: CRC16InitialValue
//   - No final XOR
func CRC16(data []byte) uint16 {
	var crc uint16 = CRC16InitialValue

	for _, b := range data {
		crc ^= uint16(b) << BitsPerByte
		for i := 0; i < BitsPerByte; i++ {
			if crc&CRC16HighBitMask != 0 {
				crc = (crc << 1) ^ CRC16Polynomial
			} else {
				crc = crc << 1
			}
		}
	}

	return crc
}
