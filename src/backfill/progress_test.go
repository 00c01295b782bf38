package backfill

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressSnapshot(t *testing.T) {
	start := time.Unix(1000, 0)
	p := newProgressReader(bytes.NewReader(make([]byte, 250)), 1000, start)
	_, err := io.Copy(io.Discard, p)
	require.NoError(t, err)

	s := p.snapshot(start.Add(5 * time.Second))
	assert.Equal(t, int64(250), s.Read)
	assert.InDelta(t, 25.0, s.Percent, 0.001)
	assert.InDelta(t, 50.0, s.BytesPerSec, 0.001)
	assert.Equal(t, 15*time.Second, s.ETA)
	assert.Contains(t, s.String(), "25.00%")
}

func TestProgressSnapshotUnknownLength(t *testing.T) {
	start := time.Unix(1000, 0)
	p := newProgressReader(bytes.NewReader(make([]byte, 2000)), -1, start)
	_, err := io.Copy(io.Discard, p)
	require.NoError(t, err)

	s := p.snapshot(start.Add(time.Second))
	assert.Zero(t, s.Percent)
	assert.Equal(t, "2.0 kB read, 2.0 kB/s", s.String())
}
