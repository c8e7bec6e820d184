package mpegts

// crcPolyMPEG2 is the PSI section CRC polynomial. The MPEG-2 variant is
// unreflected with no final xor, which hash/crc32 does not offer.
const crcPolyMPEG2 = 0x04C11DB7

type crcTable [256]uint32

var mpeg2Table = makeCRCTable(crcPolyMPEG2)

func makeCRCTable(poly uint32) *crcTable {
	t := new(crcTable)
	for i := range t {
		crc := uint32(i) << 24
		for bit := 0; bit < 8; bit++ {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}

// CRC32 computes the PSI section checksum. Running it over a section
// including its trailing CRC yields 0 when the section is intact.
func CRC32(data []byte) uint32 {
	return updateCRC32(0xFFFFFFFF, data)
}

func updateCRC32(crc uint32, data []byte) uint32 {
	for _, b := range data {
		crc = crc<<8 ^ mpeg2Table[byte(crc>>24)^b]
	}
	return crc
}
