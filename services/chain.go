package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ceramicnetwork/go-registry/common/codec"
	"github.com/ceramicnetwork/go-registry/models"
)

// ChainIndexService reads what the ledger knows about an account.
type ChainIndexService struct {
	ledger        models.LedgerClient
	logger        models.Logger
	metricService models.MetricService
}

func NewChainIndexService(ledger models.LedgerClient, logger models.Logger, metricService models.MetricService) *ChainIndexService {
	return &ChainIndexService{ledger, logger, metricService}
}

// FetchStorageRequests returns every storage request of the account. Records whose CID cannot be decoded are skipped.
func (c ChainIndexService) FetchStorageRequests(ctx context.Context, account string) ([]*models.StorageRequestRecord, error) {
	requests, err := c.ledger.StorageRequests(ctx, account)
	if err != nil {
		return nil, ledgerUnavailable(err)
	}
	records := make([]*models.StorageRequestRecord, 0, len(requests))
	for _, request := range requests {
		if request == nil {
			continue
		}
		cid, err := codec.DecodeCid([]byte(request.FileHash))
		if err != nil {
			c.logger.Warnf("chain: skipping storage request for %s: %v", account, err)
			c.metricService.Count(ctx, models.MetricName_InvalidLedgerRecord, 1)
			continue
		}
		records = append(records, &models.StorageRequestRecord{
			Cid:           cid,
			FileNameRaw:   []byte(request.FileName),
			CreatedAt:     request.CreatedAt,
			IsAssigned:    request.IsAssigned,
			LastChargedAt: request.LastChargedAt,
			MinerIds:      request.MinerIds,
		})
	}
	return records, nil
}

// FetchTotalStoredBytes returns 0 when the ledger has no record for the account.
func (c ChainIndexService) FetchTotalStoredBytes(ctx context.Context, account string) (uint64, error) {
	total, err := c.ledger.TotalStoredBytes(ctx, account)
	if err != nil {
		return 0, ledgerUnavailable(err)
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// FetchManifestPointer returns the CID of the account's manifest, or nil if the account has none. A profile that does
// not decode to a CID is treated as no manifest.
func (c ChainIndexService) FetchManifestPointer(ctx context.Context, account string) (*string, error) {
	profile, err := c.ledger.UserProfile(ctx, account)
	if err != nil {
		return nil, ledgerUnavailable(err)
	}
	if profile == nil || len(*profile) == 0 {
		return nil, nil
	}
	cid, err := codec.DecodeCid([]byte(*profile))
	if err != nil {
		c.logger.Debugf("chain: profile for %s holds no manifest: %v", account, err)
		return nil, nil
	}
	return &cid, nil
}

func ledgerUnavailable(err error) error {
	if errors.Is(err, models.ErrLedgerUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrLedgerUnavailable, err)
}
