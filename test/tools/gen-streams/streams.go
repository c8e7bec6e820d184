package main

import (
	"github.com/zsiec/tsprobe/internal/clock"
	"github.com/zsiec/tsprobe/internal/mpegts"
	"github.com/zsiec/tsprobe/internal/mpegts/mpegtstest"
)

// StreamConfig describes one synthetic fixture.
type StreamConfig struct {
	Number      int    `json:"number"`
	Key         string `json:"key"`
	Description string `json:"description"`
	Programs    int    `json:"programs"`
	DurationSec int    `json:"durationSec"`
	// ClockOffsetSec shifts every PCR, for exercising relative time ranges.
	ClockOffsetSec int  `json:"clockOffsetSec"`
	OmitPAT        bool `json:"omitPat"`
	BadPATCRC      bool `json:"badPatCrc"`
	CCErrors       bool `json:"ccErrors"`
	Garbage        bool `json:"garbage"`
}

var streams = []StreamConfig{
	{
		Number: 1, Key: "single",
		Description: "one program, H.264 and AAC, 10s of PCR",
		Programs:    1, DurationSec: 10,
	},
	{
		Number: 2, Key: "multi",
		Description: "three programs with rising packet rates; program 3 is longest",
		Programs:    3, DurationSec: 10,
	},
	{
		Number: 3, Key: "no_pat",
		Description: "PMT without PAT, recovered by scanning",
		Programs:    1, DurationSec: 5, OmitPAT: true,
	},
	{
		Number: 4, Key: "glitches",
		Description: "bad PAT CRC, continuity gaps and a corrupt packet",
		Programs:    2, DurationSec: 5, BadPATCRC: true, CCErrors: true, Garbage: true,
	},
	{
		Number: 5, Key: "offset_clock",
		Description: "PCR starting at one hour",
		Programs:    1, DurationSec: 10, ClockOffsetSec: 3600,
	},
}

const (
	ticksPerStep   = clock.TicksPerSecond / 10
	tableEverySecs = 1
)

func pmtPID(program int) uint16   { return uint16(0x100 * program) }
func videoPID(program int) uint16 { return pmtPID(program) + 1 }
func audioPID(program int) uint16 { return pmtPID(program) + 2 }

// generate renders sc as transport stream bytes. Program n carries n video
// packets per 100ms step; the first of them carries its PCR.
func generate(sc StreamConfig) []byte {
	b := mpegtstest.NewBuilder()

	var programs []mpegtstest.Program
	for n := 1; n <= sc.Programs; n++ {
		programs = append(programs, mpegtstest.Program{Number: uint16(n), PMTPID: pmtPID(n)})
	}
	patCC := uint8(0)
	tables := func() {
		if !sc.OmitPAT {
			sec := mpegtstest.PATSection(1, programs)
			if sc.BadPATCRC {
				sec[len(sec)-1] ^= 0xFF
			}
			b.Raw(mpegtstest.Packet(mpegts.PIDPAT, patCC, true, mpegtstest.PSIPayload(sec)))
			patCC = (patCC + 1) & 0x0F
		}
		for n := 1; n <= sc.Programs; n++ {
			b.PMT(pmtPID(n), uint16(n), videoPID(n),
				mpegtstest.Stream{Type: mpegts.StreamTypeH264, PID: videoPID(n)},
				mpegtstest.Stream{Type: mpegts.StreamTypeAAC, PID: audioPID(n)})
		}
	}

	offset := int64(sc.ClockOffsetSec) * clock.TicksPerSecond
	steps := sc.DurationSec * 10
	for step := 0; step <= steps; step++ {
		if step%(tableEverySecs*10) == 0 {
			tables()
		}
		base := offset + int64(step)*ticksPerStep
		for n := 1; n <= sc.Programs; n++ {
			b.PCR(videoPID(n), base)
			for i := 1; i < n; i++ {
				b.Payload(videoPID(n), false, nil)
			}
			b.Payload(audioPID(n), step == 0, nil)
		}
		if sc.CCErrors && step%25 == 24 {
			// skip one counter value on program 1 audio
			b.Payload(audioPID(1), false, nil)
			b.Raw(mpegtstest.Packet(audioPID(1), 0x0F, false, nil))
		}
		if sc.Garbage && step == steps/2 {
			garbage := make([]byte, mpegts.PacketSize)
			b.Raw(garbage)
		}
	}
	return b.Bytes()
}
