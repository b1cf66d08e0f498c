package services

import (
	"sort"

	"github.com/ceramicnetwork/go-registry/common/codec"
	"github.com/ceramicnetwork/go-registry/models"
)

type MergeInput struct {
	Assigned []*models.StorageRequestRecord
	// Expanded holds the entries produced from unassigned requests
	Expanded []models.FileEntry
	Manifest []*models.ManifestEntry
	Pending  []models.FileEntry
	Previous *models.Snapshot
}

// Merge combines ledger and manifest views of an account into one listing with at most one entry per CID, sorted by
// creation block, newest first. Ledger entries come before manifest-only entries, which come before local pending
// entries, when blocks tie. Ledger entries take size and name from the manifest only when they lack them, and detail
// known from the previous snapshot fills gaps in the new one.
func Merge(in MergeInput) []models.FileEntry {
	files := make([]models.FileEntry, 0, len(in.Assigned)+len(in.Expanded)+len(in.Manifest)+len(in.Pending))
	seen := make(map[string]int, cap(files))
	add := func(entry models.FileEntry) {
		if _, found := seen[entry.Cid]; found {
			return
		}
		seen[entry.Cid] = len(files)
		files = append(files, entry)
	}

	for _, record := range in.Assigned {
		add(recordEntry(record))
	}
	for _, entry := range in.Expanded {
		add(entry)
	}
	for _, manifestEntry := range in.Manifest {
		if idx, found := seen[manifestEntry.Cid]; found {
			if files[idx].Source == models.FileSource_Ledger {
				fillFromManifest(&files[idx], manifestEntry)
			}
			continue
		}
		add(manifestFileEntry(manifestEntry))
	}
	for _, entry := range in.Pending {
		add(entry)
	}

	if in.Previous != nil {
		previous := make(map[string]*models.FileEntry, len(in.Previous.Files))
		for i := range in.Previous.Files {
			previous[in.Previous.Files[i].Cid] = &in.Previous.Files[i]
		}
		for i := range files {
			if prior, found := previous[files[i].Cid]; found {
				fillFromPrevious(&files[i], prior)
			}
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].CreatedAt > files[j].CreatedAt
	})
	return files
}

func recordEntry(record *models.StorageRequestRecord) models.FileEntry {
	return models.FileEntry{
		Name:          codec.DecodeName(record.FileNameRaw),
		Cid:           record.Cid,
		CreatedAt:     record.CreatedAt,
		IsAssigned:    record.IsAssigned,
		LastChargedAt: record.LastChargedAt,
		MinerIds:      record.MinerIds,
		Source:        models.FileSource_Ledger,
	}
}

func manifestFileEntry(entry *models.ManifestEntry) models.FileEntry {
	return models.FileEntry{
		Name:          codec.DecodeText(entry.FileNameRaw),
		Cid:           entry.Cid,
		SizeBytes:     entry.SizeBytes,
		CreatedAt:     entry.CreatedAt,
		IsAssigned:    entry.IsAssigned,
		LastChargedAt: entry.LastChargedAt,
		MinerIds:      entry.MinerIds,
		Source:        models.FileSource_Manifest,
	}
}

func fillFromManifest(entry *models.FileEntry, manifestEntry *models.ManifestEntry) {
	if entry.SizeBytes == nil {
		entry.SizeBytes = manifestEntry.SizeBytes
	}
	if len(entry.Name) == 0 {
		entry.Name = codec.DecodeText(manifestEntry.FileNameRaw)
	}
}

func fillFromPrevious(entry *models.FileEntry, prior *models.FileEntry) {
	if len(entry.MinerIds) == 0 && len(prior.MinerIds) > 0 {
		entry.MinerIds = prior.MinerIds
	}
	if entry.SizeBytes == nil && prior.SizeBytes != nil {
		entry.SizeBytes = prior.SizeBytes
	}
	if len(entry.Name) == 0 {
		entry.Name = prior.Name
	}
}
