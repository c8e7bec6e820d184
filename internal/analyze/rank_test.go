package analyze

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/tsprobe/internal/mpegts"
	"github.com/zsiec/tsprobe/internal/mpegts/mpegtstest"
	"github.com/zsiec/tsprobe/internal/program"
)

func twoPrograms(aPackets, bPackets int) []*mpegts.Packet {
	b := mpegtstest.NewBuilder().
		PAT(mpegtstest.Program{Number: 1, PMTPID: 0x100}, mpegtstest.Program{Number: 2, PMTPID: 0x200}).
		PMT(0x100, 1, 0x101, mpegtstest.Stream{Type: mpegts.StreamTypeH264, PID: 0x101}).
		PMT(0x200, 2, 0x201, mpegtstest.Stream{Type: mpegts.StreamTypeH264, PID: 0x201})
	// interleave so neither program is simply "first"
	for i := 0; i < aPackets || i < bPackets; i++ {
		if i < bPackets {
			b.Payload(0x201, i == 0, nil)
		}
		if i < aPackets {
			b.Payload(0x101, i == 0, nil)
		}
	}
	return b.Packets()
}

func resolve(t *testing.T, packets []*mpegts.Packet) *program.Topology {
	t.Helper()
	topo, err := program.NewResolver(nil).Resolve(packets)
	require.NoError(t, err)
	return topo
}

func TestLongest(t *testing.T) {
	t.Parallel()
	packets := twoPrograms(2000, 500)
	number, ok := Longest(packets, resolve(t, packets))
	require.True(t, ok)
	assert.Equal(t, uint16(1), number)
}

func TestLongest_SecondProgram(t *testing.T) {
	t.Parallel()
	packets := twoPrograms(10, 50)
	number, ok := Longest(packets, resolve(t, packets))
	require.True(t, ok)
	assert.Equal(t, uint16(2), number)
}

func TestLongest_TieTakesSmallestPID(t *testing.T) {
	t.Parallel()
	packets := twoPrograms(40, 40)
	number, ok := Longest(packets, resolve(t, packets))
	require.True(t, ok)
	assert.Equal(t, uint16(1), number, "PID 0x101 < 0x201")
}

func TestLongest_None(t *testing.T) {
	t.Parallel()
	packets := twoPrograms(0, 0)
	topo := resolve(t, packets)

	_, ok := Longest(packets, topo)
	assert.False(t, ok, "no elementary packets")

	_, ok = Longest(nil, topo)
	assert.False(t, ok, "empty sequence")

	_, ok = Longest(packets, nil)
	assert.False(t, ok, "no topology")
}

func TestProgramPacketCounts(t *testing.T) {
	t.Parallel()
	packets := twoPrograms(30, 12)
	counts := ProgramPacketCounts(packets, resolve(t, packets))
	assert.Equal(t, []ProgramCount{{Number: 1, Packets: 30}, {Number: 2, Packets: 12}}, counts)
}
