package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	t.Parallel()
	c := New()
	c.PacketsDecoded(100)
	c.PacketsDecoded(5)
	c.PacketsMalformed(2)
	c.SectionError(TablePAT)
	c.SectionError(TablePMT)
	c.SectionError(TablePMT)
	c.ContinuityErrors(3)
	c.PacketsWritten(42)

	assert.Equal(t, 105.0, testutil.ToFloat64(c.packetsDecoded))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.packetsMalformed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sectionErrors.WithLabelValues(TablePAT)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.sectionErrors.WithLabelValues(TablePMT)))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.continuityErrors))
	assert.Equal(t, 42.0, testutil.ToFloat64(c.packetsWritten))
}

func TestCollector_Nil(t *testing.T) {
	t.Parallel()
	var c *Collector
	assert.NotPanics(t, func() {
		c.PacketsDecoded(1)
		c.PacketsMalformed(1)
		c.SectionError(TablePAT)
		c.ContinuityErrors(1)
		c.PacketsWritten(1)
	})
	families, err := c.Gatherer().Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()
	c := New()
	c.PacketsDecoded(7)
	c.SectionError(TablePMT)

	path := filepath.Join(t.TempDir(), "tsprobe.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tsprobe_packets_decoded_total 7")
	assert.Contains(t, string(data), `tsprobe_section_errors_total{table="pmt"} 1`)
}

func TestWriteTextfile_BadPath(t *testing.T) {
	t.Parallel()
	err := New().WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"))
	assert.Error(t, err)
}
