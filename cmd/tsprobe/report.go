package main

import (
	"github.com/zsiec/tsprobe/internal/analyze"
	"github.com/zsiec/tsprobe/internal/pipeline"
)

type reportView struct {
	Packets   int           `json:"packets"`
	Malformed int           `json:"malformed"`
	Topology  string        `json:"topology_error,omitempty"`
	HasPAT    bool          `json:"has_pat"`
	Heuristic bool          `json:"heuristic_pmt"`
	Programs  []programView `json:"programs"`
	Longest   *uint16       `json:"longest_program,omitempty"`
	Streams   []streamView  `json:"streams"`
	Counts    []countView   `json:"program_packets"`
	Warnings  []string      `json:"warnings,omitempty"`
}

type programView struct {
	Number     uint16          `json:"number"`
	PMTPID     uint16          `json:"pmt_pid"`
	PCRPID     *uint16         `json:"pcr_pid,omitempty"`
	Components []componentView `json:"components"`
}

type componentView struct {
	PID        uint16 `json:"pid"`
	StreamType uint8  `json:"stream_type"`
	Label      string `json:"label"`
}

type streamView struct {
	PID              uint16 `json:"pid"`
	Packets          int    `json:"packets"`
	ContinuityErrors int    `json:"continuity_errors"`
	PCRSamples       int    `json:"pcr_samples"`
	PayloadUnitStart bool   `json:"payload_unit_start"`
	PAT              bool   `json:"pat,omitempty"`
	PMT              bool   `json:"pmt,omitempty"`
	StreamType       *uint8 `json:"stream_type,omitempty"`
	Label            string `json:"label,omitempty"`
	Program          uint16 `json:"program,omitempty"`
}

type countView struct {
	Program uint16 `json:"program"`
	Packets int    `json:"packets"`
}

func newReportView(rep *pipeline.Report) reportView {
	v := reportView{
		Packets:   rep.Total,
		Malformed: rep.Malformed,
		HasPAT:    rep.Topology.HasPAT,
		Heuristic: rep.Topology.Heuristic,
		Longest:   rep.Longest,
		Programs:  []programView{},
		Streams:   make([]streamView, 0, len(rep.Streams)),
		Counts:    make([]countView, 0, len(rep.ProgramCounts)),
	}
	if rep.TopologyErr != nil {
		v.Topology = rep.TopologyErr.Error()
	}
	for _, p := range rep.Topology.Programs {
		pv := programView{Number: p.Number, PMTPID: p.PMTPID, Components: []componentView{}}
		if pid, ok := p.PCRPID(); ok {
			pv.PCRPID = &pid
		}
		for _, c := range p.Components {
			pv.Components = append(pv.Components, componentView{
				PID:        c.PID,
				StreamType: uint8(c.StreamType),
				Label:      c.StreamType.String(),
			})
		}
		v.Programs = append(v.Programs, pv)
	}
	for _, st := range rep.Streams {
		v.Streams = append(v.Streams, newStreamView(st))
	}
	for _, pc := range rep.ProgramCounts {
		v.Counts = append(v.Counts, countView{Program: pc.Number, Packets: pc.Packets})
	}
	for _, w := range rep.Topology.Warnings {
		v.Warnings = append(v.Warnings, w.Error())
	}
	return v
}

func newStreamView(st analyze.PIDStat) streamView {
	sv := streamView{
		PID:              st.PID,
		Packets:          st.Packets,
		ContinuityErrors: st.ContinuityErrors,
		PCRSamples:       st.PCRSamples,
		PayloadUnitStart: st.PayloadUnitStart,
		PAT:              st.IsPAT,
		PMT:              st.IsPMT,
		Program:          st.Program,
	}
	if st.HasStreamType {
		code := uint8(st.StreamType)
		sv.StreamType = &code
		sv.Label = st.Label
	}
	return sv
}
