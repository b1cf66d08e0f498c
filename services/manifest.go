package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator"
	"golang.org/x/sync/errgroup"

	"github.com/ceramicnetwork/go-registry/common/codec"
	"github.com/ceramicnetwork/go-registry/models"
)

// ManifestService reads manifests and per-request info objects from the content store.
type ManifestService struct {
	store         models.ContentStore
	logger        models.Logger
	metricService models.MetricService
	validator     *validator.Validate
	fetchTimeout  time.Duration
}

func NewManifestService(store models.ContentStore, logger models.Logger, metricService models.MetricService) *ManifestService {
	return &ManifestService{store, logger, metricService, validator.New(), models.GatewayFetchTimeout}
}

// FetchManifest returns the entries of the manifest stored at cid. Entries missing required fields or carrying an
// undecodable CID are dropped; a manifest that cannot be fetched or parsed yields ErrManifestFetchFailed.
func (m ManifestService) FetchManifest(ctx context.Context, cid string) ([]*models.ManifestEntry, error) {
	docEntries := make([]*models.ManifestDocumentEntry, 0)
	if err := m.fetchJson(ctx, cid, &docEntries); err != nil {
		return nil, err
	}
	entries := make([]*models.ManifestEntry, 0, len(docEntries))
	for _, docEntry := range docEntries {
		if docEntry == nil {
			continue
		}
		if err := m.validator.Struct(docEntry); err != nil {
			m.logger.Warnf("manifest: skipping invalid entry in %s: %v", cid, err)
			continue
		}
		entryCid, err := codec.DecodeCid([]byte(docEntry.FileHash))
		if err != nil {
			m.logger.Warnf("manifest: skipping entry %s in %s: %v", docEntry.FileName, cid, err)
			continue
		}
		entries = append(entries, &models.ManifestEntry{
			Cid:           entryCid,
			FileNameRaw:   []byte(docEntry.FileName),
			SizeBytes:     docEntry.FileSize,
			CreatedAt:     docEntry.CreatedAt,
			IsAssigned:    docEntry.IsAssigned,
			LastChargedAt: docEntry.LastChargedAt,
			MinerIds:      docEntry.MinerIds,
		})
	}
	return entries, nil
}

// FetchBatchManifest returns the files listed in a batch info object.
func (m ManifestService) FetchBatchManifest(ctx context.Context, cid string) ([]models.BatchManifestItem, error) {
	items := make([]models.BatchManifestItem, 0)
	if err := m.fetchJson(ctx, cid, &items); err != nil {
		return nil, err
	}
	valid := items[:0]
	for _, item := range items {
		if err := m.validator.Struct(item); err != nil {
			m.logger.Warnf("manifest: skipping invalid item in %s: %v", cid, err)
			continue
		}
		itemCid, err := codec.DecodeCid([]byte(item.Cid))
		if err != nil {
			m.logger.Warnf("manifest: skipping item %s in %s: %v", item.FileName, cid, err)
			continue
		}
		valid = append(valid, models.BatchManifestItem{FileName: item.FileName, Cid: itemCid})
	}
	return valid, nil
}

// ExpandUnassigned turns unassigned storage requests into file entries using each request's info object. A request
// whose info object cannot be read, or lists nothing usable, is returned as a single entry of its own. Output order
// follows the order of records.
func (m ManifestService) ExpandUnassigned(ctx context.Context, records []*models.StorageRequestRecord) []models.FileEntry {
	expanded := make([][]models.FileEntry, len(records))
	var g errgroup.Group
	g.SetLimit(models.DefaultExpandConcurrency)
	for i, record := range records {
		g.Go(func() error {
			expanded[i] = m.expand(ctx, record)
			return nil
		})
	}
	g.Wait()

	entries := make([]models.FileEntry, 0, len(records))
	for _, e := range expanded {
		entries = append(entries, e...)
	}
	return entries
}

func (m ManifestService) expand(ctx context.Context, record *models.StorageRequestRecord) []models.FileEntry {
	items, err := m.FetchBatchManifest(ctx, record.Cid)
	if err != nil || len(items) == 0 {
		if err == nil {
			err = fmt.Errorf("info object lists no files")
		}
		m.logger.Warnf("manifest: using unexpanded request %s: %v", record.Cid, err)
		m.metricService.Count(ctx, models.MetricName_ExpansionFallback, 1)
		return []models.FileEntry{recordEntry(record)}
	}
	entries := make([]models.FileEntry, len(items))
	for i, item := range items {
		entries[i] = models.FileEntry{
			Name:          item.FileName,
			Cid:           item.Cid,
			CreatedAt:     record.CreatedAt,
			IsAssigned:    record.IsAssigned,
			LastChargedAt: record.LastChargedAt,
			MinerIds:      record.MinerIds,
			Source:        models.FileSource_Ledger,
		}
	}
	return entries
}

func (m ManifestService) fetchJson(ctx context.Context, cid string, v any) error {
	fCtx, fCancel := context.WithTimeout(ctx, m.fetchTimeout)
	defer fCancel()

	data, err := m.store.Get(fCtx, cid)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", models.ErrManifestFetchFailed, cid, err)
	}
	if err = json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", models.ErrManifestFetchFailed, cid, err)
	}
	return nil
}
