// Package program recovers the program topology of a transport stream from
// its PAT and PMT sections: which PID carries each program's PMT, which
// elementary streams each program has, and which PID carries its PCR.
package program

import (
	"fmt"
	"sort"

	"github.com/zsiec/tsprobe/internal/mpegts"
)

// Component is one elementary stream of a program.
type Component struct {
	PID        uint16
	StreamType mpegts.StreamType
}

// Program is one entry of the resolved topology.
type Program struct {
	Number uint16
	PMTPID uint16
	// HasPMT is false when the PAT names the program but no PMT section
	// for it was found.
	HasPMT     bool
	Components []Component
	pcrPID     uint16
	// complete is false while the components come from a truncated PMT.
	complete bool
}

// PCRPID returns the program's clock reference PID. ok is false when the
// program has no PMT or the PMT signals no PCR.
func (p *Program) PCRPID() (pid uint16, ok bool) {
	if !p.HasPMT || p.pcrPID == mpegts.PIDNull {
		return 0, false
	}
	return p.pcrPID, true
}

// PIDs returns every PID that belongs to the program: the PMT PID, the PCR
// PID when it has one, and the elementary streams, in ascending order.
func (p *Program) PIDs() []uint16 {
	set := map[uint16]bool{p.PMTPID: true}
	if pcr, ok := p.PCRPID(); ok {
		set[pcr] = true
	}
	for _, c := range p.Components {
		set[c.PID] = true
	}
	return sortedPIDs(set)
}

// Topology is the program structure recovered from one packet sequence.
type Topology struct {
	// Programs are in PAT order, followed by programs discovered only
	// through PMT sections.
	Programs []*Program
	// HasPAT is true when at least one PAT section was decoded.
	HasPAT bool
	// Heuristic is true when the PMT PID was found by scanning for PMT
	// sections instead of through the PAT.
	Heuristic bool
	// Warnings collects non-fatal section decode problems in sequence
	// order.
	Warnings []*Warning

	pmtPIDs map[uint16]bool
}

// Warning is a non-fatal problem with one PSI section.
type Warning struct {
	// Index is the sequence index of the packet carrying the section.
	Index int
	PID   uint16
	Table uint8
	Err   error
}

func (w *Warning) Error() string {
	return fmt.Sprintf("packet %d PID %d: %v", w.Index, w.PID, w.Err)
}

func (w *Warning) Unwrap() error {
	return w.Err
}

func newTopology() *Topology {
	return &Topology{pmtPIDs: make(map[uint16]bool)}
}

// Program looks up a program by number.
func (t *Topology) Program(number uint16) (*Program, bool) {
	for _, p := range t.Programs {
		if p.Number == number {
			return p, true
		}
	}
	return nil, false
}

// PMTPID returns the PMT PID of a program.
func (t *Topology) PMTPID(number uint16) (uint16, bool) {
	p, ok := t.Program(number)
	if !ok {
		return 0, false
	}
	return p.PMTPID, true
}

// PCRPID returns the PCR PID of a program.
func (t *Topology) PCRPID(number uint16) (uint16, bool) {
	p, ok := t.Program(number)
	if !ok {
		return 0, false
	}
	return p.PCRPID()
}

// IsPMTPID reports whether pid carries a PMT.
func (t *Topology) IsPMTPID(pid uint16) bool {
	return t.pmtPIDs[pid]
}

// PMTPIDs returns the PMT PID set in ascending order.
func (t *Topology) PMTPIDs() []uint16 {
	return sortedPIDs(t.pmtPIDs)
}

// Component returns the elementary stream with the given PID. When several
// programs list the PID, the first program in topology order wins.
func (t *Topology) Component(pid uint16) (Component, bool) {
	for _, p := range t.Programs {
		for _, c := range p.Components {
			if c.PID == pid {
				return c, true
			}
		}
	}
	return Component{}, false
}

// ProgramForPID returns the first program listing pid as a component.
func (t *Topology) ProgramForPID(pid uint16) (*Program, bool) {
	for _, p := range t.Programs {
		for _, c := range p.Components {
			if c.PID == pid {
				return p, true
			}
		}
	}
	return nil, false
}

// ElementaryPIDs returns the union of all programs' component PIDs in
// ascending order.
func (t *Topology) ElementaryPIDs() []uint16 {
	set := make(map[uint16]bool)
	for _, p := range t.Programs {
		for _, c := range p.Components {
			set[c.PID] = true
		}
	}
	return sortedPIDs(set)
}

func sortedPIDs(set map[uint16]bool) []uint16 {
	pids := make([]uint16, 0, len(set))
	for pid := range set {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	return pids
}
