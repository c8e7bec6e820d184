package mpegts

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	TableIDPAT = 0x00
	TableIDPMT = 0x02
)

const (
	crcSize       = 4
	patHeaderSize = 8
	pmtHeaderSize = 12
	esHeaderSize  = 5
)

var (
	// ErrTruncatedSection means the section is shorter than it declares.
	// The parse result returned alongside it holds every complete record.
	ErrTruncatedSection = errors.New("mpegts: truncated section")
	// ErrUnexpectedTableID means the section is not the requested table.
	ErrUnexpectedTableID = errors.New("mpegts: unexpected table id")
	// ErrMultiSection is returned with the parsed section when the table is
	// split over several sections. Only the current section is decoded.
	ErrMultiSection = errors.New("mpegts: multi-section table not supported")
)

// SectionHeader is the long-form PSI section header shared by PAT and PMT.
type SectionHeader struct {
	TableID                uint8
	SectionSyntaxIndicator bool
	SectionLength          int
	// TableIDExtension is the transport_stream_id for a PAT and the
	// program_number for a PMT.
	TableIDExtension  uint16
	Version           uint8
	CurrentNext       bool
	SectionNumber     uint8
	LastSectionNumber uint8
}

// PAT is one decoded Program Association Table section.
type PAT struct {
	Header     SectionHeader
	Programs   []PATProgram
	NetworkPID *uint16
	CRC32      uint32
	CRCValid   bool
}

// PATProgram maps a program number to its PMT PID.
type PATProgram struct {
	ProgramNumber uint16
	ProgramMapID  uint16
}

// PMT is one decoded Program Map Table section.
type PMT struct {
	Header            SectionHeader
	PCRPID            uint16
	ProgramInfo       []byte
	ElementaryStreams []PMTElementaryStream
	CRC32             uint32
	CRCValid          bool
}

// ProgramNumber returns the program the PMT describes.
func (p *PMT) ProgramNumber() uint16 {
	return p.Header.TableIDExtension
}

// PMTElementaryStream describes a single elementary stream in a PMT.
type PMTElementaryStream struct {
	ElementaryPID uint16
	StreamType    StreamType
	Descriptors   []byte
}

// TableID returns the table_id of the section that starts in payload, after
// the pointer field.
func TableID(payload []byte) (uint8, bool) {
	data, err := skipPointer(payload)
	if err != nil {
		return 0, false
	}
	return data[0], true
}

func skipPointer(payload []byte) ([]byte, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("%w: empty payload", ErrTruncatedSection)
	}
	offset := 1 + int(payload[0])
	if offset >= len(payload) {
		return nil, fmt.Errorf("%w: pointer field %d out of range", ErrTruncatedSection, payload[0])
	}
	return payload[offset:], nil
}

// data layout:
// [0]    table_id
// [1-2]  section_syntax_indicator(1) + zero(1) + reserved(2) + section_length(12)
// [3-4]  transport_stream_id / program_number
// [5]    reserved(2) + version(5) + current_next(1)
// [6]    section_number
// [7]    last_section_number
func readSectionHeader(data []byte) SectionHeader {
	return SectionHeader{
		TableID:                data[0],
		SectionSyntaxIndicator: data[1]&0x80 != 0,
		SectionLength:          int(data[1]&0x0F)<<8 | int(data[2]),
		TableIDExtension:       binary.BigEndian.Uint16(data[3:5]),
		Version:                (data[5] >> 1) & 0x1F,
		CurrentNext:            data[5]&0x01 != 0,
		SectionNumber:          data[6],
		LastSectionNumber:      data[7],
	}
}

// sectionBounds returns the end of the record area (CRC excluded), clipped
// to the buffer, and whether the section runs past the buffer.
func sectionBounds(data []byte, h SectionHeader) (recordEnd, sectionEnd int, truncated bool) {
	sectionEnd = 3 + h.SectionLength
	recordEnd = sectionEnd - crcSize
	if sectionEnd > len(data) {
		truncated = true
		if recordEnd > len(data) {
			recordEnd = len(data)
		}
	}
	return recordEnd, sectionEnd, truncated
}

func readCRC(data []byte, sectionEnd int) (uint32, bool) {
	crc := binary.BigEndian.Uint32(data[sectionEnd-crcSize : sectionEnd])
	return crc, CRC32(data[:sectionEnd]) == 0
}

// ParsePAT decodes the PAT section starting in the payload of a
// payload-unit-start packet. On ErrTruncatedSection the returned PAT holds
// every complete program record.
func ParsePAT(payload []byte) (*PAT, error) {
	data, err := skipPointer(payload)
	if err != nil {
		return &PAT{}, err
	}
	if data[0] != TableIDPAT {
		return nil, fmt.Errorf("%w: 0x%02X, want PAT", ErrUnexpectedTableID, data[0])
	}

	pat := &PAT{}
	if len(data) < patHeaderSize {
		return pat, fmt.Errorf("%w: PAT header needs %d bytes, have %d", ErrTruncatedSection, patHeaderSize, len(data))
	}
	pat.Header = readSectionHeader(data)
	if pat.Header.SectionLength < patHeaderSize-3+crcSize {
		return pat, fmt.Errorf("%w: PAT section_length %d", ErrTruncatedSection, pat.Header.SectionLength)
	}

	recordEnd, sectionEnd, truncated := sectionBounds(data, pat.Header)
	seen := make(map[uint16]bool)
	for i := patHeaderSize; i+4 <= recordEnd; i += 4 {
		programNumber := binary.BigEndian.Uint16(data[i:])
		pid := uint16(data[i+2]&0x1F)<<8 | uint16(data[i+3])

		if programNumber == 0 {
			if pat.NetworkPID == nil {
				pat.NetworkPID = &pid
			}
			continue
		}
		if seen[programNumber] {
			continue
		}
		seen[programNumber] = true
		pat.Programs = append(pat.Programs, PATProgram{
			ProgramNumber: programNumber,
			ProgramMapID:  pid,
		})
	}

	if truncated {
		return pat, fmt.Errorf("%w: PAT declares %d bytes, have %d", ErrTruncatedSection, sectionEnd, len(data))
	}
	pat.CRC32, pat.CRCValid = readCRC(data, sectionEnd)

	if pat.Header.LastSectionNumber > 0 {
		return pat, fmt.Errorf("%w: PAT section %d of %d", ErrMultiSection,
			pat.Header.SectionNumber, int(pat.Header.LastSectionNumber)+1)
	}
	return pat, nil
}

// ParsePMT decodes the PMT section starting in the payload of a
// payload-unit-start packet. On ErrTruncatedSection the returned PMT holds
// every complete elementary stream record.
func ParsePMT(payload []byte) (*PMT, error) {
	data, err := skipPointer(payload)
	if err != nil {
		return &PMT{}, err
	}
	if data[0] != TableIDPMT {
		return nil, fmt.Errorf("%w: 0x%02X, want PMT", ErrUnexpectedTableID, data[0])
	}

	// [8-9]   reserved(3) + PCR_PID(13)
	// [10-11] reserved(4) + program_info_length(12)
	pmt := &PMT{PCRPID: PIDNull}
	if len(data) < pmtHeaderSize {
		return pmt, fmt.Errorf("%w: PMT header needs %d bytes, have %d", ErrTruncatedSection, pmtHeaderSize, len(data))
	}
	pmt.Header = readSectionHeader(data)
	pmt.PCRPID = uint16(data[8]&0x1F)<<8 | uint16(data[9])
	if pmt.Header.SectionLength < pmtHeaderSize-3+crcSize {
		return pmt, fmt.Errorf("%w: PMT section_length %d", ErrTruncatedSection, pmt.Header.SectionLength)
	}

	recordEnd, sectionEnd, truncated := sectionBounds(data, pmt.Header)

	programInfoLength := int(data[10]&0x0F)<<8 | int(data[11])
	offset := pmtHeaderSize + programInfoLength
	if offset > recordEnd {
		return pmt, fmt.Errorf("%w: program_info_length %d overruns section", ErrTruncatedSection, programInfoLength)
	}
	pmt.ProgramInfo = data[pmtHeaderSize:offset]

	for offset+esHeaderSize <= recordEnd {
		streamType := StreamType(data[offset])
		elementaryPID := uint16(data[offset+1]&0x1F)<<8 | uint16(data[offset+2])
		esInfoLength := int(data[offset+3]&0x0F)<<8 | int(data[offset+4])

		descStart := offset + esHeaderSize
		descEnd := descStart + esInfoLength
		if descEnd > recordEnd {
			return pmt, fmt.Errorf("%w: ES_info_length %d for PID %d overruns section",
				ErrTruncatedSection, esInfoLength, elementaryPID)
		}

		pmt.ElementaryStreams = append(pmt.ElementaryStreams, PMTElementaryStream{
			ElementaryPID: elementaryPID,
			StreamType:    streamType,
			Descriptors:   data[descStart:descEnd],
		})
		offset = descEnd
	}

	if truncated {
		return pmt, fmt.Errorf("%w: PMT declares %d bytes, have %d", ErrTruncatedSection, sectionEnd, len(data))
	}
	pmt.CRC32, pmt.CRCValid = readCRC(data, sectionEnd)

	if pmt.Header.LastSectionNumber > 0 {
		return pmt, fmt.Errorf("%w: PMT section %d of %d", ErrMultiSection,
			pmt.Header.SectionNumber, int(pmt.Header.LastSectionNumber)+1)
	}
	return pmt, nil
}
