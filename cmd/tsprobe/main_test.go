package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/tsprobe/internal/extract"
	"github.com/zsiec/tsprobe/internal/mpegts"
	"github.com/zsiec/tsprobe/internal/mpegts/mpegtstest"
)

func writeInput(t *testing.T) string {
	t.Helper()
	b := mpegtstest.NewBuilder().
		PAT(mpegtstest.Program{Number: 1, PMTPID: 256}).
		PMT(256, 1, 100,
			mpegtstest.Stream{Type: mpegts.StreamTypeH264, PID: 101},
			mpegtstest.Stream{Type: mpegts.StreamTypeAAC, PID: 102})
	for i := 0; i <= 10; i++ {
		b.PCR(100, int64(i)*90000)
		b.Payload(101, i == 0, nil)
		b.Payload(102, i == 0, nil)
		b.Payload(300, i == 0, nil)
	}
	path := filepath.Join(t.TempDir(), "in.ts")
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))
	return path
}

func TestParsePIDList(t *testing.T) {
	t.Parallel()
	pids, err := parsePIDList("0, 256,0x101")
	require.NoError(t, err)
	assert.Equal(t, []uint16{0, 256, 0x101}, pids)

	pids, err = parsePIDList("")
	require.NoError(t, err)
	assert.Nil(t, pids)

	for _, in := range []string{"abc", "8192", "1,,2", "-1"} {
		_, err := parsePIDList(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestParseIndexRange(t *testing.T) {
	t.Parallel()
	r, err := parseIndexRange("10:20")
	require.NoError(t, err)
	assert.Equal(t, extract.IndexRange{Start: 10, End: 20}, *r)

	for _, in := range []string{"10", "a:2", "1:b", "5:1", "-1:3"} {
		_, err := parseIndexRange(in)
		assert.ErrorIs(t, err, extract.ErrInvalidRange, "input %q", in)
	}
}

func TestRun_Usage(t *testing.T) {
	t.Parallel()
	assert.ErrorIs(t, run(context.Background(), nil, &bytes.Buffer{}), flag.ErrHelp)
	assert.ErrorIs(t, run(context.Background(), []string{"bogus"}, &bytes.Buffer{}), flag.ErrHelp)
}

func TestRun_AnalyzeJSON(t *testing.T) {
	t.Parallel()
	input := writeInput(t)
	metricsFile := filepath.Join(t.TempDir(), "tsprobe.prom")

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"analyze", "-json", "-metrics-file", metricsFile, input}, &out))

	var rep reportView
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	assert.Equal(t, 2+11*4, rep.Packets)
	require.Len(t, rep.Programs, 1)
	assert.Equal(t, uint16(256), rep.Programs[0].PMTPID)
	require.NotNil(t, rep.Programs[0].PCRPID)
	assert.Equal(t, uint16(100), *rep.Programs[0].PCRPID)
	require.NotNil(t, rep.Longest)
	assert.Equal(t, uint16(1), *rep.Longest)
	assert.Len(t, rep.Streams, 6)

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tsprobe_packets_decoded_total 46")
}

func TestRun_AnalyzeText(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"analyze", writeInput(t)}, &out))
	assert.Contains(t, out.String(), "program 1: PMT 256, PCR 100, 2 components")
	assert.Contains(t, out.String(), "H.264 (program 1)")
}

func TestRun_ExtractProgramTimeRange(t *testing.T) {
	t.Parallel()
	input := writeInput(t)
	output := filepath.Join(t.TempDir(), "out.ts")

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"extract", "-o", output, "-program", "1", "-time", "00:02-00:04", input}, &out))

	info, err := os.Stat(output)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	packets, malformed := mpegts.DecodeAll(data)
	require.Zero(t, malformed)
	require.NotEmpty(t, packets)

	first, ok := packets[0].PCR()
	require.True(t, ok)
	assert.Equal(t, int64(2*90000), first.Base)
	last, ok := packets[len(packets)-1].PCR()
	require.True(t, ok)
	assert.Equal(t, int64(4*90000), last.Base)
	for _, pkt := range packets {
		assert.NotEqual(t, uint16(300), pkt.Header.PID)
	}
}

func TestRun_ExtractFailureLeavesNoOutput(t *testing.T) {
	t.Parallel()
	input := writeInput(t)
	dir := t.TempDir()
	output := filepath.Join(dir, "out.ts")

	err := run(context.Background(), []string{"extract", "-o", output, "-program", "7", input}, &bytes.Buffer{})
	require.Error(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
