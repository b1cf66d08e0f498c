package models

import "time"

// StorageRequestRecord is the ledger's view of one object the account asked the network to store.
type StorageRequestRecord struct {
	Cid           string
	FileNameRaw   []byte
	CreatedAt     uint64 // block number
	IsAssigned    bool
	LastChargedAt uint64 // block number
	MinerIds      []string
}

// ManifestEntry is one file listed in the account's off-chain manifest.
type ManifestEntry struct {
	Cid           string
	FileNameRaw   []byte
	SizeBytes     *uint64
	CreatedAt     uint64
	IsAssigned    bool
	LastChargedAt uint64
	MinerIds      []string
}

// PendingUpload marks an entry known only locally. A nil *PendingUpload on a FileEntry means the entry is confirmed
// by the ledger or the manifest.
type PendingUpload struct {
	Since time.Time `json:"since"`
}

type FileSource uint8

const (
	FileSource_Ledger FileSource = iota
	FileSource_Manifest
	FileSource_Local
)

type FileEntry struct {
	Name          string         `json:"name"`
	Cid           string         `json:"cid"`
	SizeBytes     *uint64        `json:"size,omitempty"`
	CreatedAt     uint64         `json:"createdAt"`
	IsAssigned    bool           `json:"assigned"`
	LastChargedAt uint64         `json:"lastChargedAt"`
	MinerIds      []string       `json:"minerIds,omitempty"`
	PendingUpload *PendingUpload `json:"pending,omitempty"`
	Source        FileSource     `json:"source"`
}

func (f FileEntry) IsPending() bool {
	return f.PendingUpload != nil
}

// Snapshot is the immutable result of one reconciliation cycle.
type Snapshot struct {
	Files            []FileEntry `json:"files"`
	TotalStoredBytes uint64      `json:"totalStoredBytes"`
	FetchedAt        time.Time   `json:"fetchedAt"`
}

// BatchManifestItem is one line of the JSON object uploaded alongside every batch. The same shape is read back when
// expanding unassigned storage requests.
type BatchManifestItem struct {
	FileName string `json:"filename" validate:"required"`
	Cid      string `json:"cid" validate:"required"`
}

// ManifestDocumentEntry is the gateway representation of a ManifestEntry.
type ManifestDocumentEntry struct {
	FileName      string   `json:"file_name" validate:"required"`
	FileHash      string   `json:"file_hash" validate:"required"`
	FileSize      *uint64  `json:"file_size_in_bytes,omitempty"`
	CreatedAt     uint64   `json:"created_at"`
	IsAssigned    bool     `json:"is_assigned"`
	LastChargedAt uint64   `json:"last_charged_at"`
	MinerIds      []string `json:"miner_ids,omitempty"`
}
