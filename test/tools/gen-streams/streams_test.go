package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/tsprobe/internal/analyze"
	"github.com/zsiec/tsprobe/internal/clock"
	"github.com/zsiec/tsprobe/internal/mpegts"
	"github.com/zsiec/tsprobe/internal/program"
)

func fixture(t *testing.T, key string) StreamConfig {
	t.Helper()
	for _, sc := range streams {
		if sc.Key == key {
			return sc
		}
	}
	t.Fatalf("no fixture %q", key)
	return StreamConfig{}
}

func decode(t *testing.T, sc StreamConfig) ([]*mpegts.Packet, int, *program.Topology, error) {
	t.Helper()
	packets, malformed := mpegts.DecodeAll(generate(sc))
	topo, err := program.NewResolver(nil).Resolve(packets)
	return packets, malformed, topo, err
}

func TestGenerate_Single(t *testing.T) {
	t.Parallel()
	packets, malformed, topo, err := decode(t, fixture(t, "single"))
	require.NoError(t, err)
	assert.Zero(t, malformed)
	require.Len(t, topo.Programs, 1)
	pcr, ok := topo.PCRPID(1)
	require.True(t, ok)
	assert.Equal(t, videoPID(1), pcr)

	first, last, ok := clock.Bounds(pcr, packets)
	require.True(t, ok)
	assert.Equal(t, int64(0), first)
	assert.Equal(t, int64(10*clock.TicksPerSecond), last)

	stats, err := analyze.NewAnalyzer(nil, 2).Analyze(context.Background(), packets, topo)
	require.NoError(t, err)
	for _, st := range stats {
		assert.Zero(t, st.ContinuityErrors, "PID %d", st.PID)
	}
}

func TestGenerate_MultiLongest(t *testing.T) {
	t.Parallel()
	packets, _, topo, err := decode(t, fixture(t, "multi"))
	require.NoError(t, err)
	assert.Len(t, topo.Programs, 3)
	n, ok := analyze.Longest(packets, topo)
	require.True(t, ok)
	assert.Equal(t, uint16(3), n)
}

func TestGenerate_NoPAT(t *testing.T) {
	t.Parallel()
	_, _, topo, err := decode(t, fixture(t, "no_pat"))
	require.NoError(t, err)
	assert.False(t, topo.HasPAT)
	assert.True(t, topo.Heuristic)
	_, ok := topo.Program(1)
	assert.True(t, ok)
}

func TestGenerate_Glitches(t *testing.T) {
	t.Parallel()
	packets, malformed, topo, err := decode(t, fixture(t, "glitches"))
	require.NoError(t, err)
	assert.Equal(t, 1, malformed)
	require.NotEmpty(t, topo.Warnings)
	assert.ErrorIs(t, topo.Warnings[0], program.ErrCRCMismatch)

	stats, err := analyze.NewAnalyzer(nil, 0).Analyze(context.Background(), packets, topo)
	require.NoError(t, err)
	total := 0
	for _, st := range stats {
		total += st.ContinuityErrors
	}
	assert.Positive(t, total)
}

func TestGenerate_OffsetClock(t *testing.T) {
	t.Parallel()
	packets, _, topo, err := decode(t, fixture(t, "offset_clock"))
	require.NoError(t, err)
	pcr, ok := topo.PCRPID(1)
	require.True(t, ok)

	_, err = clock.Locator{}.FindIndex(time.Hour+11*time.Second, pcr, packets)
	assert.ErrorIs(t, err, clock.ErrTimestampNotFound)

	abs, err := clock.Locator{}.FindIndex(time.Hour+5*time.Second, pcr, packets)
	require.NoError(t, err)
	rel, err := clock.Locator{Relative: true}.FindIndex(5*time.Second, pcr, packets)
	require.NoError(t, err)
	assert.Equal(t, abs, rel)
}

func TestWriteManifest(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, writeManifest(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var m Manifest
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Len(t, m.Streams, len(streams))
}
