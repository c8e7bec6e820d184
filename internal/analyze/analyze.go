// Package analyze computes per-PID statistics over a packet sequence and
// ranks programs by how many elementary stream packets they carry.
package analyze

import (
	"context"
	"log/slog"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/tsprobe/internal/mpegts"
	"github.com/zsiec/tsprobe/internal/program"
)

// PIDStat is the derived, read-only summary of one PID.
type PIDStat struct {
	PID     uint16
	Packets int
	// PayloadUnitStart is true when any packet on the PID starts a
	// payload unit.
	PayloadUnitStart bool
	ContinuityErrors int
	PCRSamples       int
	IsPAT            bool
	IsPMT            bool
	// HasStreamType is set when the PID is an elementary stream of a
	// resolved program; StreamType, Label and Program are only meaningful
	// then.
	HasStreamType bool
	StreamType    mpegts.StreamType
	Label         string
	Program       uint16
}

// Analyzer computes PID statistics. PID groups are folded concurrently on up
// to a fixed number of goroutines.
type Analyzer struct {
	log     *slog.Logger
	workers int
}

// NewAnalyzer creates an Analyzer. workers <= 0 means runtime.GOMAXPROCS(0).
// If log is nil, slog.Default() is used.
func NewAnalyzer(log *slog.Logger, workers int) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Analyzer{
		log:     log.With("component", "analyzer"),
		workers: workers,
	}
}

// Group holds one PID's packets in sequence order.
type Group struct {
	PID     uint16
	Packets []*mpegts.Packet
}

// GroupByPID partitions packets by PID, preserving sequence order within
// each group. Groups are returned in ascending PID order.
func GroupByPID(packets []*mpegts.Packet) []Group {
	index := make(map[uint16]int)
	var groups []Group
	for _, pkt := range packets {
		pid := pkt.Header.PID
		i, ok := index[pid]
		if !ok {
			i = len(groups)
			index[pid] = i
			groups = append(groups, Group{PID: pid})
		}
		groups[i].Packets = append(groups[i].Packets, pkt)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].PID < groups[j].PID })
	return groups
}

// Analyze returns one PIDStat per PID present in packets, ordered by
// ascending PID. topo may be nil, in which case only PID 0 gets a role.
func (a *Analyzer) Analyze(ctx context.Context, packets []*mpegts.Packet, topo *program.Topology) ([]PIDStat, error) {
	groups := GroupByPID(packets)
	stats := make([]PIDStat, len(groups))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i := range groups {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			stats[i] = fold(groups[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range stats {
		classify(&stats[i], topo)
	}
	a.log.Debug("analysis complete", "pids", len(stats), "packets", len(packets), "workers", a.workers)
	return stats, nil
}

// fold computes the statistics of one group.
func fold(g Group) PIDStat {
	st := PIDStat{PID: g.PID, Packets: len(g.Packets)}
	st.ContinuityErrors = ContinuityErrors(g.Packets)
	for _, pkt := range g.Packets {
		if pkt.Header.PayloadUnitStartIndicator {
			st.PayloadUnitStart = true
		}
		if _, ok := pkt.PCR(); ok {
			st.PCRSamples++
		}
	}
	return st
}

// ContinuityErrors counts continuity counter breaks over packets of a single
// PID in sequence order. Packets without payload are neither checked nor
// used as the reference for the next packet.
func ContinuityErrors(packets []*mpegts.Packet) int {
	errs := 0
	var prev uint8
	havePrev := false
	for _, pkt := range packets {
		if !pkt.Header.AdaptationFieldControl.HasPayload() {
			continue
		}
		cc := pkt.Header.ContinuityCounter
		if havePrev && cc != (prev+1)&0x0F {
			errs++
		}
		prev = cc
		havePrev = true
	}
	return errs
}

func classify(st *PIDStat, topo *program.Topology) {
	st.IsPAT = st.PID == mpegts.PIDPAT
	if topo == nil {
		return
	}
	st.IsPMT = topo.IsPMTPID(st.PID)
	if c, ok := topo.Component(st.PID); ok {
		st.HasStreamType = true
		st.StreamType = c.StreamType
		st.Label = c.StreamType.String()
	}
	if p, ok := topo.ProgramForPID(st.PID); ok {
		st.Program = p.Number
	}
}
