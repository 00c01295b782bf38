package backfill

import (
	"context"
	"fmt"

	"stock-cache/src/interfaces"
	"stock-cache/src/models"

	"github.com/google/uuid"
)

// EmitFunc hands a decoded batch to the caller and blocks until it is acknowledged.
type EmitFunc func(prices []models.MStockPrice) error

// Job is the fetch/decode work run inside a worker.
type Job func(ctx context.Context, emit EmitFunc) error

// workerMessage is a batch, or a terminal message when Final is set.
type workerMessage struct {
	ID     uuid.UUID
	Prices []models.MStockPrice
	Final  bool
	Err    error
}

// worker runs a Job on its own goroutine and talks to the caller only through
// its mailbox and ack channel.
type worker struct {
	mailbox chan workerMessage
	acks    chan uuid.UUID
	exited  chan struct{}
}

// -----------------------------------------------------------------------------

// runWorker starts job in a worker and persists each batch through onBatch
// before acknowledging it. It returns once the worker has exited.
func runWorker(ctx context.Context, job Job, onBatch interfaces.BatchFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	w := &worker{
		mailbox: make(chan workerMessage, 1),
		acks:    make(chan uuid.UUID, 1),
		exited:  make(chan struct{}),
	}
	defer func() {
		cancel()
		<-w.exited
	}()

	go w.run(ctx, job)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-w.mailbox:
			if msg.Final {
				return msg.Err
			}
			if err := onBatch(ctx, msg.Prices); err != nil {
				return err
			}
			w.acks <- msg.ID
		}
	}
}

// -----------------------------------------------------------------------------

func (w *worker) run(ctx context.Context, job Job) {
	defer close(w.exited)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("backfill worker panic: %v", r)
			}
		}()
		return job(ctx, w.emit(ctx))
	}()

	select {
	case w.mailbox <- workerMessage{Final: true, Err: err}:
	case <-ctx.Done():
	}
}

// -----------------------------------------------------------------------------

func (w *worker) emit(ctx context.Context) EmitFunc {
	return func(prices []models.MStockPrice) error {
		id := uuid.New()
		select {
		case w.mailbox <- workerMessage{ID: id, Prices: prices}:
		case <-ctx.Done():
			return ctx.Err()
		}

		for {
			select {
			case ack := <-w.acks:
				if ack == id {
					return nil
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
