package services

import (
	"context"

	"github.com/ceramicnetwork/go-registry/models"
)

type UnpinService struct {
	account       string
	ledger        models.LedgerClient
	invalidator   models.CacheInvalidator
	logger        models.Logger
	metricService models.MetricService
}

func NewUnpinService(
	account string,
	ledger models.LedgerClient,
	invalidator models.CacheInvalidator,
	logger models.Logger,
	metricService models.MetricService,
) *UnpinService {
	return &UnpinService{account, ledger, invalidator, logger, metricService}
}

// Unpin asks the ledger to stop storing the given files. The cached listing is only dropped once the ledger accepts
// the request.
func (u UnpinService) Unpin(ctx context.Context, files []models.UnpinRequest) error {
	if len(files) == 0 {
		return models.ErrEmptyBatch
	}
	ctx, cancel := context.WithTimeout(ctx, models.LedgerSubmitTimeout)
	defer cancel()

	err := u.unpin(ctx, files)
	if err != nil {
		u.logger.Errorf("unpin: failed for %d files: %v", len(files), err)
		u.metricService.Count(ctx, models.MetricName_UnpinFailed, 1)
		return err
	}
	u.logger.Infof("unpin: removed %d files", len(files))
	u.metricService.Count(ctx, models.MetricName_UnpinSucceeded, 1)
	if u.invalidator != nil {
		u.invalidator.Invalidate(u.account)
	}
	return nil
}

func (u UnpinService) unpin(ctx context.Context, files []models.UnpinRequest) error {
	statuses, err := u.ledger.SubmitUnpin(ctx, files)
	if err != nil {
		return err
	}
	return awaitTransaction(ctx, statuses)
}
