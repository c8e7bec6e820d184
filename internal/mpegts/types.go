// Package mpegts decodes MPEG-TS packets and the PAT/PMT sections they carry.
// Packets are decoded once into an immutable sequence; every higher layer
// (topology, statistics, clock lookup, extraction) re-reads that sequence.
package mpegts

const (
	// PacketSize is the fixed size of a transport stream packet.
	PacketSize = 188
	// SyncByte starts every packet.
	SyncByte = 0x47

	// PIDPAT carries the Program Association Table.
	PIDPAT uint16 = 0x0000
	// PIDNull is the stuffing PID. As a PCR PID it means "no PCR".
	PIDNull uint16 = 0x1FFF
)

// AdaptationFieldControl is the 2-bit code in byte 3 of the packet header.
type AdaptationFieldControl uint8

const (
	AdaptationReserved   AdaptationFieldControl = 0b00
	PayloadOnly          AdaptationFieldControl = 0b01
	AdaptationOnly       AdaptationFieldControl = 0b10
	AdaptationAndPayload AdaptationFieldControl = 0b11
)

// HasAdaptationField reports whether an adaptation field follows the header.
func (c AdaptationFieldControl) HasAdaptationField() bool {
	return c&0b10 != 0
}

// HasPayload reports whether the packet carries payload bytes.
func (c AdaptationFieldControl) HasPayload() bool {
	return c&0b01 != 0
}

// PacketHeader contains the fixed 4-byte header fields of a packet.
type PacketHeader struct {
	PID                       uint16
	ContinuityCounter         uint8
	ScramblingControl         uint8
	AdaptationFieldControl    AdaptationFieldControl
	PayloadUnitStartIndicator bool
	TransportErrorIndicator   bool
	TransportPriority         bool
}

// AdaptationField holds the decoded leading part of a packet's adaptation
// field. Only the flags byte and the PCR are decoded.
type AdaptationField struct {
	// Length is the adaptation_field_length byte, 0 when the stated
	// length would run past the packet.
	Length                 int
	DiscontinuityIndicator bool
	RandomAccessIndicator  bool
	PCRFlag                bool
	PCR                    *ClockReference
}

// ClockReference is a program clock reference sample. Base ticks at 90 kHz,
// Extension at 27 MHz.
type ClockReference struct {
	Base      int64
	Extension int64
}
