package program

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/zsiec/tsprobe/internal/mpegts"
)

var (
	// ErrNoPAT means no PAT was decoded and no PMT could be found by
	// scanning either.
	ErrNoPAT = errors.New("program: no program association table")
	// ErrNoPMT means a PAT was decoded but no PMT section was found.
	ErrNoPMT = errors.New("program: no program map table")
	// ErrCRCMismatch marks a section kept despite a bad CRC32.
	ErrCRCMismatch = errors.New("program: section CRC32 mismatch")
)

// Resolver builds a Topology from a packet sequence. It keeps no state
// between calls.
type Resolver struct {
	log    *slog.Logger
	forced []uint16
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPMTPID treats pids as PMT PIDs in addition to those named by the PAT.
func WithPMTPID(pids ...uint16) Option {
	return func(r *Resolver) {
		r.forced = append(r.forced, pids...)
	}
}

// NewResolver creates a Resolver. If log is nil, slog.Default() is used.
func NewResolver(log *slog.Logger, opts ...Option) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	r := &Resolver{log: log.With("component", "resolver")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve recovers the program topology. The returned Topology is never nil;
// on ErrNoPAT or ErrNoPMT it holds whatever was recovered.
func (r *Resolver) Resolve(packets []*mpegts.Packet) (*Topology, error) {
	topo := newTopology()
	r.resolvePAT(packets, topo)
	for _, pid := range r.forced {
		topo.pmtPIDs[pid] = true
	}

	found := r.resolvePMT(packets, topo)
	if !found {
		if pid, ok := scanForPMT(packets); ok {
			r.log.Info("PMT found by scan", "pid", pid, "pat", topo.HasPAT)
			topo.Heuristic = true
			topo.pmtPIDs[pid] = true
			found = r.resolvePMT(packets, topo)
		}
	}

	switch {
	case !found && !topo.HasPAT:
		return topo, ErrNoPAT
	case !found:
		return topo, ErrNoPMT
	}
	return topo, nil
}

func (r *Resolver) warn(topo *Topology, index int, pid uint16, table uint8, err error) {
	topo.Warnings = append(topo.Warnings, &Warning{Index: index, PID: pid, Table: table, Err: err})
}

func (r *Resolver) resolvePAT(packets []*mpegts.Packet, topo *Topology) {
	isPAT := func(pid uint16) bool { return pid == mpegts.PIDPAT }
	for _, sec := range mpegts.CollectSections(packets, isPAT) {
		i := sec.Index
		pat, err := mpegts.ParsePAT(sec.Payload)
		if err != nil {
			r.warn(topo, i, sec.PID, mpegts.TableIDPAT, err)
		}
		if pat == nil || pat.Header.SectionLength == 0 {
			continue
		}
		topo.HasPAT = true
		if err == nil && !pat.CRCValid {
			r.warn(topo, i, sec.PID, mpegts.TableIDPAT, fmt.Errorf("PAT: %w", ErrCRCMismatch))
		}

		for _, entry := range pat.Programs {
			if existing, ok := topo.Program(entry.ProgramNumber); ok {
				if existing.PMTPID != entry.ProgramMapID {
					r.warn(topo, i, sec.PID, mpegts.TableIDPAT, fmt.Errorf("program %d remapped from PMT PID %d to %d, keeping first",
						entry.ProgramNumber, existing.PMTPID, entry.ProgramMapID))
				}
				continue
			}
			topo.Programs = append(topo.Programs, &Program{
				Number: entry.ProgramNumber,
				PMTPID: entry.ProgramMapID,
				pcrPID: mpegts.PIDNull,
			})
			topo.pmtPIDs[entry.ProgramMapID] = true
		}
	}
}

// resolvePMT parses every PMT section on the known PMT PIDs and reports
// whether any was found. A truncated section fills a program only until a
// complete one for the same program turns up.
func (r *Resolver) resolvePMT(packets []*mpegts.Packet, topo *Topology) bool {
	found := false
	for _, sec := range mpegts.CollectSections(packets, topo.IsPMTPID) {
		i, pid := sec.Index, sec.PID
		pmt, err := mpegts.ParsePMT(sec.Payload)
		if errors.Is(err, mpegts.ErrUnexpectedTableID) {
			continue
		}
		if err != nil {
			r.warn(topo, i, pid, mpegts.TableIDPMT, err)
		}
		if pmt == nil || pmt.Header.TableID != mpegts.TableIDPMT {
			continue
		}
		found = true
		if err == nil && !pmt.CRCValid {
			r.warn(topo, i, pid, mpegts.TableIDPMT, fmt.Errorf("PMT: %w", ErrCRCMismatch))
		}

		p, ok := topo.Program(pmt.ProgramNumber())
		if !ok {
			p = &Program{Number: pmt.ProgramNumber(), PMTPID: pid}
			topo.Programs = append(topo.Programs, p)
		}
		truncated := errors.Is(err, mpegts.ErrTruncatedSection)
		if p.complete || (p.HasPMT && truncated) {
			continue
		}
		p.HasPMT = true
		p.complete = !truncated
		p.pcrPID = pmt.PCRPID
		p.Components = p.Components[:0]
		for _, es := range pmt.ElementaryStreams {
			p.Components = append(p.Components, Component{
				PID:        es.ElementaryPID,
				StreamType: es.StreamType,
			})
		}
	}
	return found
}

// scanForPMT returns the first non-PAT PID whose payload-unit-start packet
// begins a PMT section.
func scanForPMT(packets []*mpegts.Packet) (uint16, bool) {
	for _, pkt := range packets {
		if pkt.Header.PID == mpegts.PIDPAT || !pkt.Header.PayloadUnitStartIndicator {
			continue
		}
		if id, ok := mpegts.TableID(pkt.Payload()); ok && id == mpegts.TableIDPMT {
			return pkt.Header.PID, true
		}
	}
	return 0, false
}
