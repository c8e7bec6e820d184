// Package mpegtstest builds synthetic transport streams for tests: raw
// packets with or without adaptation fields and PCRs, and PAT/PMT sections
// with valid CRCs.
package mpegtstest

import (
	"bytes"
	"encoding/binary"

	"github.com/zsiec/tsprobe/internal/mpegts"
)

// Program is one PAT record.
type Program struct {
	Number uint16
	PMTPID uint16
}

// Stream is one PMT elementary stream record.
type Stream struct {
	Type        mpegts.StreamType
	PID         uint16
	Descriptors []byte
}

func header(buf []byte, pid uint16, cc uint8, pusi bool, afc mpegts.AdaptationFieldControl) {
	buf[0] = mpegts.SyncByte
	buf[1] = byte(pid>>8) & 0x1F
	if pusi {
		buf[1] |= 0x40
	}
	buf[2] = byte(pid)
	buf[3] = byte(afc)<<4 | cc&0x0F
}

func stuffed() []byte {
	buf := bytes.Repeat([]byte{0xFF}, mpegts.PacketSize)
	return buf
}

// Packet returns a payload-only packet. Unused payload bytes are 0xFF.
func Packet(pid uint16, cc uint8, pusi bool, payload []byte) []byte {
	buf := stuffed()
	header(buf, pid, cc, pusi, mpegts.PayloadOnly)
	copy(buf[4:], payload)
	return buf
}

// AdaptationOnlyPacket returns a packet whose adaptation field fills the
// whole packet.
func AdaptationOnlyPacket(pid uint16, cc uint8) []byte {
	buf := stuffed()
	header(buf, pid, cc, false, mpegts.AdaptationOnly)
	buf[4] = 183
	buf[5] = 0x00
	return buf
}

// PCRPacket returns a packet with an adaptation field carrying a PCR with
// the given 90 kHz base. A nil payload yields an adaptation-only packet.
func PCRPacket(pid uint16, cc uint8, pusi bool, base int64, payload []byte) []byte {
	buf := stuffed()
	afc := mpegts.AdaptationAndPayload
	afLen := 7
	if payload == nil {
		afc = mpegts.AdaptationOnly
		afLen = 183
	}
	header(buf, pid, cc, pusi, afc)
	buf[4] = byte(afLen)
	buf[5] = 0x10
	EncodePCR(buf[6:12], base, 0)
	if payload != nil {
		copy(buf[5+afLen:], payload)
	}
	return buf
}

// EncodePCR writes base(33) + reserved(6) + extension(9) into b[:6].
func EncodePCR(b []byte, base, ext int64) {
	b[0] = byte(base >> 25)
	b[1] = byte(base >> 17)
	b[2] = byte(base >> 9)
	b[3] = byte(base >> 1)
	b[4] = byte(base&0x01)<<7 | 0x7E | byte(ext>>8)&0x01
	b[5] = byte(ext)
}

// PSIPayload prefixes section with a zero pointer field.
func PSIPayload(section []byte) []byte {
	payload := make([]byte, 1+len(section))
	copy(payload[1:], section)
	return payload
}

// PATSection builds a single-section PAT with a valid CRC.
func PATSection(tsID uint16, programs []Program) []byte {
	sectionLength := 5 + len(programs)*4 + 4

	data := make([]byte, 3+sectionLength)
	data[0] = mpegts.TableIDPAT
	data[1] = 0xB0 | byte(sectionLength>>8)&0x0F
	data[2] = byte(sectionLength)
	binary.BigEndian.PutUint16(data[3:], tsID)
	data[5] = 0xC1 // version 0, current
	data[6] = 0x00
	data[7] = 0x00

	offset := 8
	for _, p := range programs {
		binary.BigEndian.PutUint16(data[offset:], p.Number)
		data[offset+2] = 0xE0 | byte(p.PMTPID>>8)&0x1F
		data[offset+3] = byte(p.PMTPID)
		offset += 4
	}

	binary.BigEndian.PutUint32(data[offset:], mpegts.CRC32(data[:offset]))
	return data
}

// PMTSection builds a single-section PMT with a valid CRC.
func PMTSection(programNum, pcrPID uint16, streams []Stream) []byte {
	esLen := 0
	for _, s := range streams {
		esLen += 5 + len(s.Descriptors)
	}
	sectionLength := 9 + esLen + 4

	data := make([]byte, 3+sectionLength)
	data[0] = mpegts.TableIDPMT
	data[1] = 0xB0 | byte(sectionLength>>8)&0x0F
	data[2] = byte(sectionLength)
	binary.BigEndian.PutUint16(data[3:], programNum)
	data[5] = 0xC1
	data[6] = 0x00
	data[7] = 0x00
	data[8] = 0xE0 | byte(pcrPID>>8)&0x1F
	data[9] = byte(pcrPID)
	data[10] = 0xF0 // program_info_length = 0
	data[11] = 0x00

	offset := 12
	for _, s := range streams {
		data[offset] = byte(s.Type)
		data[offset+1] = 0xE0 | byte(s.PID>>8)&0x1F
		data[offset+2] = byte(s.PID)
		data[offset+3] = 0xF0 | byte(len(s.Descriptors)>>8)&0x0F
		data[offset+4] = byte(len(s.Descriptors))
		copy(data[offset+5:], s.Descriptors)
		offset += 5 + len(s.Descriptors)
	}

	binary.BigEndian.PutUint32(data[offset:], mpegts.CRC32(data[:offset]))
	return data
}

// Builder assembles a stream packet by packet, keeping a continuity
// counter per PID.
type Builder struct {
	buf bytes.Buffer
	cc  map[uint16]uint8
	n   int
}

// NewBuilder returns an empty stream builder.
func NewBuilder() *Builder {
	return &Builder{cc: make(map[uint16]uint8)}
}

func (b *Builder) next(pid uint16) uint8 {
	cc := b.cc[pid]
	b.cc[pid] = (cc + 1) & 0x0F
	return cc
}

// PAT appends a PAT section.
func (b *Builder) PAT(programs ...Program) *Builder {
	return b.Section(mpegts.PIDPAT, PATSection(1, programs))
}

// PMT appends a PMT section on pid.
func (b *Builder) PMT(pid, programNum, pcrPID uint16, streams ...Stream) *Builder {
	return b.Section(pid, PMTSection(programNum, pcrPID, streams))
}

// Section appends section on pid, split over as many packets as it needs.
func (b *Builder) Section(pid uint16, section []byte) *Builder {
	payload := PSIPayload(section)
	for first := true; first || len(payload) > 0; first = false {
		n := min(len(payload), mpegts.PacketSize-4)
		b.Payload(pid, first, payload[:n])
		payload = payload[n:]
	}
	return b
}

// Payload appends a payload-only packet.
func (b *Builder) Payload(pid uint16, pusi bool, payload []byte) *Builder {
	return b.Raw(Packet(pid, b.next(pid), pusi, payload))
}

// Repeat appends n payload-only packets on pid.
func (b *Builder) Repeat(pid uint16, n int) *Builder {
	for i := 0; i < n; i++ {
		b.Payload(pid, i == 0, []byte{byte(i)})
	}
	return b
}

// PCR appends a payload-unit-start packet carrying a PCR and a payload.
func (b *Builder) PCR(pid uint16, base int64) *Builder {
	return b.Raw(PCRPacket(pid, b.next(pid), true, base, []byte{0x00}))
}

// Raw appends pre-built packet bytes.
func (b *Builder) Raw(pkt []byte) *Builder {
	b.buf.Write(pkt)
	b.n++
	return b
}

// Len returns the number of packets appended so far.
func (b *Builder) Len() int {
	return b.n
}

// Bytes returns the stream bytes.
func (b *Builder) Bytes() []byte {
	return b.buf.Bytes()
}

// Packets decodes the stream into a packet sequence.
func (b *Builder) Packets() []*mpegts.Packet {
	packets, _ := mpegts.DecodeAll(b.buf.Bytes())
	return packets
}
