package mpegts

import "sort"

// Section is one PSI section reassembled from the packets of a single PID.
type Section struct {
	// Index is the position of the payload-unit-start packet that opened
	// the section.
	Index int
	PID   uint16
	// Payload is the concatenated packet payload, pointer field first. It
	// is passed to ParsePAT or ParsePMT as is.
	Payload []byte
}

// sectionAccumulator buffers one PID's payloads from a payload-unit-start
// packet until the section it opens is complete.
type sectionAccumulator struct {
	start   int
	payload []byte
	cc      uint8
}

// CollectSections reassembles the sections opened on every PID accept
// reports true for. A section continues over following packets of the same
// PID while their continuity counters run contiguously; a gap, a transport
// error or the next payload-unit-start ends it, and whatever was buffered is
// returned as is, so parsing it reports ErrTruncatedSection. Sections are
// returned in the order of their first packet.
func CollectSections(packets []*Packet, accept func(pid uint16) bool) []Section {
	var out []Section
	pending := make(map[uint16]*sectionAccumulator)
	flush := func(pid uint16) {
		if acc, ok := pending[pid]; ok {
			out = append(out, Section{Index: acc.start, PID: pid, Payload: acc.payload})
			delete(pending, pid)
		}
	}

	for i, pkt := range packets {
		pid := pkt.Header.PID
		if !accept(pid) {
			continue
		}
		if pkt.Header.TransportErrorIndicator {
			flush(pid)
			continue
		}
		payload := pkt.Payload()
		if len(payload) == 0 {
			continue
		}
		cc := pkt.Header.ContinuityCounter

		if acc, ok := pending[pid]; ok && cc == acc.cc {
			continue // duplicate packet
		}

		if pkt.Header.PayloadUnitStartIndicator {
			// Bytes before the pointer target finish the pending section.
			if acc, ok := pending[pid]; ok && payload[0] > 0 && cc == (acc.cc+1)&0x0F {
				end := min(1+int(payload[0]), len(payload))
				acc.payload = append(acc.payload, payload[1:end]...)
			}
			flush(pid)
			pending[pid] = &sectionAccumulator{start: i, payload: payload, cc: cc}
		} else {
			acc, ok := pending[pid]
			if !ok {
				continue
			}
			if cc != (acc.cc+1)&0x0F {
				flush(pid)
				continue
			}
			acc.payload = append(acc.payload, payload...)
			acc.cc = cc
		}

		if sectionComplete(pending[pid].payload) {
			flush(pid)
		}
	}

	for pid := range pending {
		flush(pid)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Index < out[b].Index })
	return out
}

// sectionComplete reports whether payload holds the whole section that
// starts after its pointer field.
func sectionComplete(payload []byte) bool {
	if len(payload) < 1 {
		return false
	}
	offset := 1 + int(payload[0])
	if offset >= len(payload) {
		return false
	}
	if payload[offset] == 0xFF {
		return true // stuffing
	}
	if offset+3 > len(payload) {
		return false
	}
	sectionLength := int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2])
	return offset+3+sectionLength <= len(payload)
}
