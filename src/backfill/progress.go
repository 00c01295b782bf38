package backfill

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"stock-cache/src/logger"

	"github.com/dustin/go-humanize"
)

// progressReader counts bytes flowing through a download.
type progressReader struct {
	r     io.Reader
	total int64
	start time.Time
	read  atomic.Int64
}

func newProgressReader(r io.Reader, total int64, start time.Time) *progressReader {
	return &progressReader{r: r, total: total, start: start}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read.Add(int64(n))
	return n, err
}

// -----------------------------------------------------------------------------

type progressSnapshot struct {
	Read        int64
	Total       int64
	Percent     float64
	BytesPerSec float64
	ETA         time.Duration
}

func (p *progressReader) snapshot(now time.Time) progressSnapshot {
	s := progressSnapshot{Read: p.read.Load(), Total: p.total}

	elapsed := now.Sub(p.start).Seconds()
	if elapsed > 0 {
		s.BytesPerSec = float64(s.Read) / elapsed
	}
	if s.Total > 0 {
		s.Percent = float64(s.Read) * 100 / float64(s.Total)
		if s.BytesPerSec > 0 && s.Read < s.Total {
			remaining := float64(s.Total-s.Read) / s.BytesPerSec
			s.ETA = time.Duration(remaining * float64(time.Second)).Round(time.Second)
		}
	}
	return s
}

func (s progressSnapshot) String() string {
	rate := humanize.Bytes(uint64(s.BytesPerSec)) + "/s"
	if s.Total <= 0 {
		return fmt.Sprintf("%s read, %s", humanize.Bytes(uint64(s.Read)), rate)
	}
	return fmt.Sprintf("%.2f%% (%s of %s), ETA %v, %s",
		s.Percent, humanize.Bytes(uint64(s.Read)), humanize.Bytes(uint64(s.Total)), s.ETA, rate)
}

// -----------------------------------------------------------------------------

// report logs a snapshot every interval until the returned stop func is called.
func (p *progressReader) report(ctx context.Context, interval time.Duration, log *logger.Logger) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				log.Info("Backfill download %s", p.snapshot(now))
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
