package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ceramicnetwork/go-registry/common/codec"
	"github.com/ceramicnetwork/go-registry/models"
)

type UploadServiceOpts struct {
	Account     string
	Store       models.ContentStore
	Ledger      models.LedgerClient
	Credits     *CreditsGate
	Invalidator models.CacheInvalidator
	Pending     *PendingTracker
	// Concurrency bounds simultaneous gateway uploads within a batch
	Concurrency int
	// OnEvent, if set, receives every state and progress change
	OnEvent func(models.UploadEvent)
	// Notifier, if set, is alerted when the ledger rejects a batch
	Notifier      models.Notifier
	Logger        models.Logger
	MetricService models.MetricService
}

// UploadService is the per-session upload state machine. It runs at most one batch at a time: a call made while a
// batch is in flight is rejected without side effects.
type UploadService struct {
	account       string
	store         models.ContentStore
	ledger        models.LedgerClient
	credits       *CreditsGate
	invalidator   models.CacheInvalidator
	pending       *PendingTracker
	concurrency   int
	onEvent       func(models.UploadEvent)
	notifier      models.Notifier
	logger        models.Logger
	metricService models.MetricService
	lock          sync.Mutex
	state         models.UploadState
	now           func() time.Time
}

func NewUploadService(opts UploadServiceOpts) *UploadService {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = models.DefaultUploadConcurrency
	}
	onEvent := opts.OnEvent
	if onEvent == nil {
		onEvent = func(models.UploadEvent) {}
	}
	return &UploadService{
		account:       opts.Account,
		store:         opts.Store,
		ledger:        opts.Ledger,
		credits:       opts.Credits,
		invalidator:   opts.Invalidator,
		pending:       opts.Pending,
		concurrency:   concurrency,
		onEvent:       onEvent,
		notifier:      opts.Notifier,
		logger:        opts.Logger,
		metricService: opts.MetricService,
		now:           time.Now,
	}
}

func (u *UploadService) State() models.UploadState {
	u.lock.Lock()
	defer u.lock.Unlock()
	return u.state
}

// Upload stores every item, stores a manifest listing them, and registers that manifest with the ledger. It returns
// once the ledger reports the outcome of the storage request.
func (u *UploadService) Upload(ctx context.Context, items []models.UploadItem) (*models.UploadResult, error) {
	if len(items) == 0 {
		return nil, models.ErrEmptyBatch
	}
	if err := u.begin(); err != nil {
		u.metricService.Count(ctx, models.MetricName_UploadRejectedBusy, 1)
		return nil, err
	}

	jobId := uuid.New()
	u.logger.Infof("upload: starting job %s with %d items", jobId, len(items))
	u.metricService.Count(ctx, models.MetricName_UploadStarted, 1)
	u.metricService.Distribution(ctx, models.MetricName_BatchSize, len(items))

	progress := newProgressTracker(items, func(percent int) {
		u.onEvent(models.UploadEvent{JobId: jobId, State: models.UploadState_Uploading, Progress: percent})
	})
	result, err := u.run(ctx, jobId, items, progress)
	u.finish(jobId, progress.current(), err)
	if err != nil {
		u.logger.Errorf("upload: job %s failed: %v", jobId, err)
		var txErr *models.TransactionFailedError
		if errors.As(err, &txErr) {
			u.metricService.Count(ctx, models.MetricName_UploadTransactionFailed, 1)
			if u.notifier != nil {
				u.notifier.SendAlert("Storage request rejected", fmt.Sprintf("job %s for %s: %v", jobId, u.account, txErr))
			}
		}
		u.metricService.Count(ctx, models.MetricName_UploadFailed, 1)
		return nil, err
	}
	u.logger.Infof("upload: job %s registered manifest %s", jobId, result.ManifestCid)
	u.metricService.Count(ctx, models.MetricName_UploadSucceeded, 1)
	return result, nil
}

func (u *UploadService) run(ctx context.Context, jobId uuid.UUID, items []models.UploadItem, progress *progressTracker) (*models.UploadResult, error) {
	u.onEvent(models.UploadEvent{JobId: jobId, State: models.UploadState_Uploading})
	files, err := u.uploadItems(ctx, items, progress)
	if err != nil {
		return nil, err
	}

	manifestCid, err := u.uploadBatchManifest(ctx, jobId, files)
	if err != nil {
		return nil, err
	}
	progress.complete()

	u.transition(models.UploadState_Submitting)
	u.onEvent(models.UploadEvent{JobId: jobId, State: models.UploadState_Submitting, Progress: models.MaxUploadProgress})
	if err = u.submit(ctx, jobId, manifestCid); err != nil {
		return nil, err
	}

	if u.pending != nil {
		u.pending.Track(u.account, files, u.now())
	}
	if u.invalidator != nil {
		u.invalidator.Invalidate(u.account)
	}
	return &models.UploadResult{JobId: jobId, ManifestCid: manifestCid, Files: files}, nil
}

func (u *UploadService) uploadItems(ctx context.Context, items []models.UploadItem, progress *progressTracker) ([]models.BatchManifestItem, error) {
	files := make([]models.BatchManifestItem, len(items))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)
	for i, item := range items {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			cid, err := u.uploadItem(gCtx, item, progress)
			if err != nil {
				return err
			}
			files[i] = models.BatchManifestItem{FileName: item.Name, Cid: cid}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

func (u *UploadService) uploadItem(ctx context.Context, item models.UploadItem, progress *progressTracker) (string, error) {
	if err := u.credits.EnsureSpendable(ctx); err != nil {
		return "", err
	}
	if item.IsExternal() {
		cid, err := codec.NormalizeCid(item.Cid)
		if err != nil {
			return "", fmt.Errorf("upload: %s: %w", item.Name, err)
		}
		progress.add(1)
		return cid, nil
	}

	var sent atomic.Int64
	cid, err := u.store.Add(ctx, item.Name, item.Reader, func(n int64) {
		sent.Add(n)
		progress.add(n)
	})
	if err != nil {
		return "", fmt.Errorf("upload: %s: %w", item.Name, err)
	}
	// Top up in case the store reported fewer bytes than declared
	if remaining := item.Size - sent.Load(); remaining > 0 {
		progress.add(remaining)
	}
	u.metricService.Count(ctx, models.MetricName_GatewayBytesUploaded, int(sent.Load()))
	return cid, nil
}

func (u *UploadService) uploadBatchManifest(ctx context.Context, jobId uuid.UUID, files []models.BatchManifestItem) (string, error) {
	manifest, err := json.Marshal(files)
	if err != nil {
		return "", err
	}
	cid, err := u.store.Add(ctx, jobId.String()+models.BatchManifestSuffix, bytes.NewReader(manifest), nil)
	if err != nil {
		return "", fmt.Errorf("upload: batch manifest: %w", err)
	}
	return cid, nil
}

func (u *UploadService) submit(ctx context.Context, jobId uuid.UUID, manifestCid string) error {
	ctx, cancel := context.WithTimeout(ctx, models.LedgerSubmitTimeout)
	defer cancel()

	statuses, err := u.ledger.SubmitStorageRequest(ctx, []models.FileRequest{{
		FileHash: codec.EncodeCid(manifestCid),
		FileName: codec.EncodeCid(jobId.String() + models.BatchManifestSuffix),
	}})
	if err != nil {
		return err
	}
	return awaitTransaction(ctx, statuses)
}

func (u *UploadService) begin() error {
	u.lock.Lock()
	defer u.lock.Unlock()

	if u.state != models.UploadState_Idle {
		return models.ErrUploadInProgress
	}
	u.state = models.UploadState_Uploading
	return nil
}

func (u *UploadService) transition(state models.UploadState) {
	u.lock.Lock()
	defer u.lock.Unlock()
	u.state = state
}

// finish reports the terminal event. A failed job keeps the progress it had reached.
func (u *UploadService) finish(jobId uuid.UUID, progress int, err error) {
	u.transition(models.UploadState_Idle)
	u.onEvent(models.UploadEvent{JobId: jobId, State: models.UploadState_Idle, Progress: progress, Err: err})
}
