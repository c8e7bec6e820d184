package mpegts

import (
	"errors"
	"fmt"

	"github.com/q191201771/naza/pkg/nazabits"
)

// ErrMalformedPacket is returned for short buffers and bad sync bytes. It is
// never fatal: readers skip the packet and continue.
var ErrMalformedPacket = errors.New("mpegts: malformed packet")

const (
	headerSize = 4
	pcrSize    = 6
	flagPCR    = 0x10
)

// Packet is one decoded 188-byte transport stream packet. The raw bytes are
// kept as read and must not be modified; everything else is derived from
// them.
type Packet struct {
	Header PacketHeader
	raw    []byte
}

// DecodePacket decodes the first PacketSize bytes of buf. The returned
// packet aliases buf.
func DecodePacket(buf []byte) (*Packet, error) {
	if len(buf) < PacketSize {
		return nil, fmt.Errorf("%w: size %d, expected %d", ErrMalformedPacket, len(buf), PacketSize)
	}
	if buf[0] != SyncByte {
		return nil, fmt.Errorf("%w: invalid sync byte 0x%02X", ErrMalformedPacket, buf[0])
	}

	p := &Packet{raw: buf[:PacketSize:PacketSize]}
	p.Header.TransportErrorIndicator = buf[1]&0x80 != 0
	p.Header.PayloadUnitStartIndicator = buf[1]&0x40 != 0
	p.Header.TransportPriority = buf[1]&0x20 != 0
	p.Header.PID = uint16(buf[1]&0x1F)<<8 | uint16(buf[2])
	p.Header.ScramblingControl = buf[3] >> 6
	p.Header.AdaptationFieldControl = AdaptationFieldControl(buf[3]>>4) & 0b11
	p.Header.ContinuityCounter = buf[3] & 0x0F
	return p, nil
}

// Bytes returns the raw packet bytes.
func (p *Packet) Bytes() []byte {
	return p.raw
}

// adaptationLength returns the usable adaptation_field_length, 0 when the
// field is absent or its stated length runs past the packet.
func (p *Packet) adaptationLength() int {
	if !p.Header.AdaptationFieldControl.HasAdaptationField() {
		return 0
	}
	afLen := int(p.raw[headerSize])
	if headerSize+1+afLen > PacketSize {
		return 0
	}
	return afLen
}

// payloadOffset returns where the payload starts. It may be >= PacketSize.
func (p *Packet) payloadOffset() int {
	if !p.Header.AdaptationFieldControl.HasAdaptationField() {
		return headerSize
	}
	return headerSize + 1 + int(p.raw[headerSize])
}

// Payload returns the bytes after the header and adaptation field. It is
// empty for adaptation-only packets and when the adaptation field fills the
// packet.
func (p *Packet) Payload() []byte {
	if !p.Header.AdaptationFieldControl.HasPayload() {
		return nil
	}
	offset := p.payloadOffset()
	if offset >= PacketSize {
		return nil
	}
	return p.raw[offset:]
}

// AdaptationField decodes the adaptation field, or returns nil when the
// packet has none.
func (p *Packet) AdaptationField() *AdaptationField {
	if !p.Header.AdaptationFieldControl.HasAdaptationField() {
		return nil
	}
	af := &AdaptationField{Length: p.adaptationLength()}
	if af.Length == 0 {
		return af
	}

	body := p.raw[headerSize+1 : headerSize+1+af.Length]
	flags := body[0]
	af.DiscontinuityIndicator = flags&0x80 != 0
	af.RandomAccessIndicator = flags&0x40 != 0
	af.PCRFlag = flags&flagPCR != 0
	if af.PCRFlag && len(body) >= 1+pcrSize {
		af.PCR = parsePCR(body[1 : 1+pcrSize])
	}
	return af
}

// PCR returns the packet's clock reference sample, if it carries one.
func (p *Packet) PCR() (*ClockReference, bool) {
	af := p.AdaptationField()
	if af == nil || af.PCR == nil {
		return nil, false
	}
	return af.PCR, true
}

// parsePCR decodes base(33) + reserved(6) + extension(9).
func parsePCR(b []byte) *ClockReference {
	br := nazabits.NewBitReader(b)
	hi, _ := br.ReadBits32(32)
	lo, _ := br.ReadBits8(1)
	_, _ = br.ReadBits8(6)
	ext, _ := br.ReadBits16(9)
	return &ClockReference{
		Base:      int64(hi)<<1 | int64(lo),
		Extension: int64(ext),
	}
}
