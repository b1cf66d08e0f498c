package services

import (
	"context"
	"time"

	"github.com/ceramicnetwork/go-registry/models"
)

// ReconciliationService builds an account's file listing from the ledger and the account's manifest. Only a failure
// to enumerate storage requests fails the fetch; every other source degrades to what is available.
type ReconciliationService struct {
	chain         *ChainIndexService
	manifest      *ManifestService
	store         models.SnapshotStore
	pending       *PendingTracker
	logger        models.Logger
	metricService models.MetricService
	now           func() time.Time
}

func NewReconciliationService(
	chain *ChainIndexService,
	manifest *ManifestService,
	store models.SnapshotStore,
	pending *PendingTracker,
	logger models.Logger,
	metricService models.MetricService,
) *ReconciliationService {
	if store == nil {
		store = NewMemorySnapshotStore()
	}
	return &ReconciliationService{chain, manifest, store, pending, logger, metricService, time.Now}
}

func (r *ReconciliationService) Fetch(ctx context.Context, account string) (*models.Snapshot, error) {
	records, err := r.chain.FetchStorageRequests(ctx, account)
	if err != nil {
		r.logger.Errorf("reconcile: error fetching storage requests for %s: %v", account, err)
		r.metricService.Count(ctx, models.MetricName_ReconcileFailed, 1)
		return nil, err
	}

	var assigned, unassigned []*models.StorageRequestRecord
	for _, record := range records {
		if record.IsAssigned {
			assigned = append(assigned, record)
		} else {
			unassigned = append(unassigned, record)
		}
	}
	input := MergeInput{
		Assigned: assigned,
		Expanded: r.manifest.ExpandUnassigned(ctx, unassigned),
		Manifest: r.fetchManifest(ctx, account),
	}
	if r.pending != nil {
		input.Pending = r.pending.Pending(account)
	}
	if input.Previous, err = r.store.Load(ctx, account); err != nil {
		r.logger.Warnf("reconcile: error loading previous snapshot for %s: %v", account, err)
	}

	totalStoredBytes, err := r.chain.FetchTotalStoredBytes(ctx, account)
	if err != nil {
		r.logger.Warnf("reconcile: error fetching stored bytes for %s: %v", account, err)
	}

	snapshot := &models.Snapshot{
		Files:            Merge(input),
		TotalStoredBytes: totalStoredBytes,
		FetchedAt:        r.now(),
	}
	if r.pending != nil {
		confirmed := make(map[string]bool, len(snapshot.Files))
		for _, file := range snapshot.Files {
			if !file.IsPending() {
				confirmed[file.Cid] = true
			}
		}
		r.pending.Confirm(account, confirmed)
	}
	if err = r.store.Save(ctx, account, snapshot); err != nil {
		r.logger.Warnf("reconcile: error saving snapshot for %s: %v", account, err)
	}
	r.logger.Debugf("reconcile: %s has %d files (%d requests)", account, len(snapshot.Files), len(records))
	r.metricService.Count(ctx, models.MetricName_ReconcileSucceeded, 1)
	r.metricService.Distribution(ctx, models.MetricName_SnapshotFiles, len(snapshot.Files))
	return snapshot, nil
}

func (r *ReconciliationService) fetchManifest(ctx context.Context, account string) []*models.ManifestEntry {
	pointer, err := r.chain.FetchManifestPointer(ctx, account)
	if err != nil {
		r.logger.Warnf("reconcile: error fetching manifest pointer for %s: %v", account, err)
		r.metricService.Count(ctx, models.MetricName_ManifestDegraded, 1)
		return nil
	}
	if pointer == nil {
		return nil
	}
	entries, err := r.manifest.FetchManifest(ctx, *pointer)
	if err != nil {
		r.logger.Warnf("reconcile: continuing without manifest for %s: %v", account, err)
		r.metricService.Count(ctx, models.MetricName_ManifestDegraded, 1)
		return nil
	}
	return entries
}
