package dataset

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// stageDelay paces the parsing stages.
const stageDelay = 800 * time.Millisecond

// parseStage is one step of the parsing pipeline.
type parseStage struct {
	progress int
	message  string
}

var parseStages = []parseStage{
	{30, "validating data file"},
	{60, "extracting content"},
	{85, "building structured records"},
}

// Processor runs dataset parsing jobs in the background. Start returns
// immediately; each job updates the record and publishes progress as it
// advances. Jobs observe the processor's base context so shutdown cancels
// them, and Shutdown waits for in-flight jobs to finish.
type Processor struct {
	store    *Store
	notifier *Notifier
	logger   *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewProcessor creates a processor whose jobs stop when Shutdown is called.
func NewProcessor(store *Store, notifier *Notifier, logger *slog.Logger) *Processor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Processor{
		store:    store,
		notifier: notifier,
		logger:   logger,
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Start launches the parsing job for a dataset and returns immediately.
func (p *Processor) Start(datasetID uuid.UUID) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(datasetID)
	}()
}

// Shutdown cancels running jobs and waits for them to exit, up to the
// context deadline.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor) run(datasetID uuid.UUID) {
	ctx := p.baseCtx

	if err := p.advance(ctx, datasetID, StatusProcessing, 5, "parse job accepted"); err != nil {
		p.fail(datasetID, err)
		return
	}

	for _, stage := range parseStages {
		select {
		case <-ctx.Done():
			p.fail(datasetID, ctx.Err())
			return
		case <-time.After(stageDelay):
		}
		if err := p.advance(ctx, datasetID, StatusProcessing, stage.progress, stage.message); err != nil {
			p.fail(datasetID, err)
			return
		}
	}

	if err := p.advance(ctx, datasetID, StatusReady, 100, "dataset ready"); err != nil {
		p.fail(datasetID, err)
		return
	}
	p.logger.Info("dataset processed", "dataset_id", datasetID)
}

func (p *Processor) advance(ctx context.Context, datasetID uuid.UUID, status string, progress int, message string) error {
	if err := p.store.SetProgress(ctx, datasetID, status, progress); err != nil {
		return err
	}
	p.notifier.Publish(ProgressUpdate{
		DatasetID: datasetID,
		Status:    status,
		Progress:  progress,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

func (p *Processor) fail(datasetID uuid.UUID, cause error) {
	p.logger.Error("dataset processing failed",
		"dataset_id", datasetID,
		"error", cause)

	// Record the failure with a fresh context; the job context may
	// already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.store.SetFailed(ctx, datasetID, cause.Error()); err != nil {
		p.logger.Warn("recording dataset failure", "dataset_id", datasetID, "error", err)
	}
	p.notifier.Publish(ProgressUpdate{
		DatasetID: datasetID,
		Status:    StatusFailed,
		Progress:  0,
		Message:   cause.Error(),
		Timestamp: time.Now().UTC(),
	})
}
