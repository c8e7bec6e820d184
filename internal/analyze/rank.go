package analyze

import (
	"github.com/zsiec/tsprobe/internal/mpegts"
	"github.com/zsiec/tsprobe/internal/program"
)

// ProgramCount is the total number of elementary stream packets of one
// program.
type ProgramCount struct {
	Number  uint16
	Packets int
}

// countPIDs counts packets per PID, restricted to want.
func countPIDs(packets []*mpegts.Packet, want map[uint16]bool) map[uint16]int {
	counts := make(map[uint16]int, len(want))
	for _, pkt := range packets {
		if want[pkt.Header.PID] {
			counts[pkt.Header.PID]++
		}
	}
	return counts
}

// Longest returns the program owning the elementary stream with the most
// packets. On a tie the smallest PID wins; a PID listed by several programs
// belongs to the first in topology order. ok is false when no elementary
// stream has any packets.
func Longest(packets []*mpegts.Packet, topo *program.Topology) (number uint16, ok bool) {
	if len(packets) == 0 || topo == nil {
		return 0, false
	}
	pids := topo.ElementaryPIDs()
	if len(pids) == 0 {
		return 0, false
	}
	want := make(map[uint16]bool, len(pids))
	for _, pid := range pids {
		want[pid] = true
	}
	counts := countPIDs(packets, want)

	best, bestCount := uint16(0), 0
	for _, pid := range pids { // ascending, so strict > keeps the smallest PID
		if counts[pid] > bestCount {
			best, bestCount = pid, counts[pid]
		}
	}
	if bestCount == 0 {
		return 0, false
	}
	p, found := topo.ProgramForPID(best)
	if !found {
		return 0, false
	}
	return p.Number, true
}

// ProgramPacketCounts sums elementary stream packets per program, in
// topology order. A PID shared by several programs counts for each.
func ProgramPacketCounts(packets []*mpegts.Packet, topo *program.Topology) []ProgramCount {
	if topo == nil {
		return nil
	}
	want := make(map[uint16]bool)
	for _, pid := range topo.ElementaryPIDs() {
		want[pid] = true
	}
	counts := countPIDs(packets, want)

	out := make([]ProgramCount, 0, len(topo.Programs))
	for _, p := range topo.Programs {
		pc := ProgramCount{Number: p.Number}
		seen := make(map[uint16]bool)
		for _, c := range p.Components {
			if !seen[c.PID] {
				seen[c.PID] = true
				pc.Packets += counts[c.PID]
			}
		}
		out = append(out, pc)
	}
	return out
}
