package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"stock-cache/src/backfill"
	"stock-cache/src/logger"
	"stock-cache/src/models"

	"github.com/klauspost/compress/gzip"
)

var errLimitReached = errors.New("limit reached")

// -----------------------------------------------------------------------------

// decoder prints the trade reports of an IEX TOPS capture, gzipped or not.
func main() {
	file := flag.String("file", "", "path to a .pcap, .pcapng or .gz capture")
	limit := flag.Int("limit", 0, "stop after this many trades (0 prints all)")
	batch := flag.Int("batch", 1000, "decoder batch size")
	flag.Parse()

	log := logger.NewLogger(nil, "decoder")
	defer log.Sync()

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Critical("Open %s: %v", *file, err)
	}
	defer f.Close()

	r, err := maybeGunzip(bufio.NewReaderSize(f, 1<<20))
	if err != nil {
		log.Critical("Open gzip stream: %v", err)
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	printed := 0
	stats, err := backfill.DecodeCapture(r, *batch, func(prices []models.MStockPrice) error {
		for _, p := range prices {
			if *limit > 0 && printed >= *limit {
				return errLimitReached
			}
			fmt.Fprintf(out, "%s\t%s\t%s\n", models.FormatTime(p.Time), p.Symbol, models.PriceFromFixed(p.Price).String())
			printed++
		}
		return nil
	}, log)
	if err != nil && !errors.Is(err, errLimitReached) {
		out.Flush()
		log.Critical("Decode failed: %v", err)
	}

	log.Info("%d frames, %d trades, %d skipped frames, %d failed payloads", stats.Frames, stats.Trades, stats.SkippedFrames, stats.FailedPayloads)
}

// -----------------------------------------------------------------------------

func maybeGunzip(r *bufio.Reader) (io.Reader, error) {
	magic, err := r.Peek(2)
	if err != nil || magic[0] != 0x1f || magic[1] != 0x8b {
		return r, nil
	}
	return gzip.NewReader(r)
}
