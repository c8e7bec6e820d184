package analyze

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/tsprobe/internal/mpegts"
	"github.com/zsiec/tsprobe/internal/mpegts/mpegtstest"
	"github.com/zsiec/tsprobe/internal/program"
)

func ccSequence(pid uint16, ccs ...uint8) *mpegtstest.Builder {
	b := mpegtstest.NewBuilder()
	for i, cc := range ccs {
		b.Raw(mpegtstest.Packet(pid, cc, i == 0, nil))
	}
	return b
}

func TestContinuityErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		ccs  []uint8
		want int
	}{
		{"in_order", []uint8{0, 1, 2, 3}, 0},
		{"one_gap", []uint8{0, 1, 3, 4}, 1},
		{"wraparound", []uint8{14, 15, 0, 1}, 0},
		{"duplicate", []uint8{0, 1, 1, 2}, 1},
		{"two_gaps", []uint8{0, 5, 6, 9}, 2},
		{"single", []uint8{7}, 0},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ContinuityErrors(ccSequence(0x100, tc.ccs...).Packets())
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestContinuityErrors_AdaptationOnlyExcluded(t *testing.T) {
	t.Parallel()
	b := mpegtstest.NewBuilder().
		Raw(mpegtstest.Packet(0x100, 0, true, nil)).
		Raw(mpegtstest.AdaptationOnlyPacket(0x100, 9)).
		Raw(mpegtstest.Packet(0x100, 1, false, nil)).
		Raw(mpegtstest.PCRPacket(0x100, 12, false, 0, nil)).
		Raw(mpegtstest.Packet(0x100, 2, false, nil)).
		Raw(mpegtstest.Packet(0x100, 3, false, nil))

	assert.Equal(t, 0, ContinuityErrors(b.Packets()))
}

func TestContinuityErrors_ReservedControlExcluded(t *testing.T) {
	t.Parallel()
	reserved := mpegtstest.Packet(0x100, 7, false, nil)
	reserved[3] &^= 0x30 // adaptation_field_control = 00
	b := mpegtstest.NewBuilder().
		Raw(mpegtstest.Packet(0x100, 0, true, nil)).
		Raw(reserved).
		Raw(mpegtstest.Packet(0x100, 1, false, nil))

	assert.Equal(t, 0, ContinuityErrors(b.Packets()))
}

func TestAnalyze_PerPIDCountersAreIndependent(t *testing.T) {
	t.Parallel()
	// Interleave two PIDs; each is in order on its own even though the
	// absolute packet index jumps.
	b := mpegtstest.NewBuilder()
	for i := 0; i < 20; i++ {
		b.Payload(0x100, i == 0, nil)
		if i%3 == 0 {
			b.Payload(0x200, false, nil)
		}
	}
	stats, err := NewAnalyzer(nil, 4).Analyze(context.Background(), b.Packets(), nil)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, 0, stats[0].ContinuityErrors)
	assert.Equal(t, 0, stats[1].ContinuityErrors)
	assert.Equal(t, 20, stats[0].Packets)
	assert.Equal(t, 7, stats[1].Packets)
	assert.True(t, stats[0].PayloadUnitStart)
	assert.False(t, stats[1].PayloadUnitStart)
}

func TestAnalyze_RolesAndLabels(t *testing.T) {
	t.Parallel()
	b := mpegtstest.NewBuilder().
		PAT(mpegtstest.Program{Number: 1, PMTPID: 256}).
		PMT(256, 1, 100,
			mpegtstest.Stream{Type: mpegts.StreamTypeH264, PID: 101},
			mpegtstest.Stream{Type: mpegts.StreamTypeAAC, PID: 102},
		).
		PCR(100, 0).
		PCR(100, 3000).
		Repeat(101, 5).
		Repeat(102, 3).
		Repeat(0x1FFF, 2)
	packets := b.Packets()
	topo, err := program.NewResolver(nil).Resolve(packets)
	require.NoError(t, err)

	stats, err := NewAnalyzer(nil, 0).Analyze(context.Background(), packets, topo)
	require.NoError(t, err)

	var pids []uint16
	for _, st := range stats {
		pids = append(pids, st.PID)
	}
	assert.Equal(t, []uint16{0, 100, 101, 102, 256, 0x1FFF}, pids)

	byPID := make(map[uint16]PIDStat)
	for _, st := range stats {
		byPID[st.PID] = st
	}
	assert.True(t, byPID[0].IsPAT)
	assert.False(t, byPID[0].IsPMT)
	assert.True(t, byPID[256].IsPMT)
	assert.Equal(t, 2, byPID[100].PCRSamples)
	assert.False(t, byPID[100].HasStreamType)

	video := byPID[101]
	assert.True(t, video.HasStreamType)
	assert.Equal(t, "H.264", video.Label)
	assert.Equal(t, uint16(1), video.Program)
	assert.Equal(t, 5, video.Packets)

	assert.Equal(t, "AAC (ADTS)", byPID[102].Label)
	assert.Empty(t, byPID[0x1FFF].Label)
}

// Worker count must not change the result.
func TestAnalyze_Deterministic(t *testing.T) {
	t.Parallel()
	b := mpegtstest.NewBuilder()
	for i := 0; i < 500; i++ {
		pid := uint16(0x100 + (i*7)%37)
		b.Payload(pid, i%11 == 0, nil)
	}
	packets := b.Packets()

	want, err := NewAnalyzer(nil, 1).Analyze(context.Background(), packets, nil)
	require.NoError(t, err)
	for _, workers := range []int{2, 8, 64} {
		got, err := NewAnalyzer(nil, workers).Analyze(context.Background(), packets, nil)
		require.NoError(t, err)
		assert.Equal(t, want, got, "workers=%d", workers)
	}
}

func TestAnalyze_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewAnalyzer(nil, 1).Analyze(ctx, ccSequence(0x100, 0, 1).Packets(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyze_Empty(t *testing.T) {
	t.Parallel()
	stats, err := NewAnalyzer(nil, 2).Analyze(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestGroupByPID(t *testing.T) {
	t.Parallel()
	b := mpegtstest.NewBuilder().
		Payload(0x300, true, nil).
		Payload(0x100, true, nil).
		Payload(0x300, false, nil).
		Payload(0x200, true, nil)
	groups := GroupByPID(b.Packets())
	require.Len(t, groups, 3)
	assert.Equal(t, uint16(0x100), groups[0].PID)
	assert.Equal(t, uint16(0x200), groups[1].PID)
	assert.Equal(t, uint16(0x300), groups[2].PID)
	require.Len(t, groups[2].Packets, 2)
	assert.Equal(t, uint8(0), groups[2].Packets[0].Header.ContinuityCounter)
	assert.Equal(t, uint8(1), groups[2].Packets[1].Header.ContinuityCounter)
}
