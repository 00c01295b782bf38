package backfill

import (
	"context"
	"errors"
	"testing"
	"time"

	"stock-cache/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerWaitsForAckBeforeContinuing(t *testing.T) {
	emitted := 0
	var persisted [][]models.MStockPrice

	job := func(ctx context.Context, emit EmitFunc) error {
		for i := 0; i < 3; i++ {
			emitted++
			if err := emit([]models.MStockPrice{{Symbol: "A", Time: int64(i)}}); err != nil {
				return err
			}
		}
		return nil
	}

	err := runWorker(context.Background(), job, func(ctx context.Context, prices []models.MStockPrice) error {
		// the worker is parked on the ack, so it cannot have produced more
		assert.Equal(t, len(persisted)+1, emitted)
		time.Sleep(5 * time.Millisecond)
		persisted = append(persisted, prices)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, persisted, 3)
	assert.Equal(t, int64(2), persisted[2][0].Time)
}

func TestWorkerReportsTerminalError(t *testing.T) {
	boom := errors.New("truncated capture")
	err := runWorker(context.Background(), func(ctx context.Context, emit EmitFunc) error {
		assert.NoError(t, emit([]models.MStockPrice{{Symbol: "A"}}))
		return boom
	}, func(context.Context, []models.MStockPrice) error { return nil })
	assert.ErrorIs(t, err, boom)
}

func TestWorkerReportsPanic(t *testing.T) {
	err := runWorker(context.Background(), func(ctx context.Context, emit EmitFunc) error {
		panic("bad frame")
	}, func(context.Context, []models.MStockPrice) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad frame")
}

func TestWorkerStopsWhenPersistenceFails(t *testing.T) {
	boom := errors.New("insert failed")
	var jobErr error
	err := runWorker(context.Background(), func(ctx context.Context, emit EmitFunc) error {
		jobErr = emit([]models.MStockPrice{{Symbol: "A"}})
		return jobErr
	}, func(context.Context, []models.MStockPrice) error { return boom })

	assert.ErrorIs(t, err, boom)
	// runWorker returns only after the worker exited
	assert.ErrorIs(t, jobErr, context.Canceled)
}
