package models

import (
	"context"
	"io"
	"math/big"
)

// LedgerClient is the narrow view of the ledger used by the registry. Implementations decode wire errors into
// LedgerError values before handing statuses back.
type LedgerClient interface {
	StorageRequests(ctx context.Context, account string) ([]*LedgerStorageRequest, error)
	TotalStoredBytes(ctx context.Context, account string) (*uint64, error)
	UserProfile(ctx context.Context, account string) (*string, error)
	SubmitStorageRequest(ctx context.Context, files []FileRequest) (<-chan TxStatus, error)
	SubmitUnpin(ctx context.Context, files []UnpinRequest) (<-chan TxStatus, error)
}

// LedgerStorageRequest is a storage request as returned by the ledger, before CID decoding.
type LedgerStorageRequest struct {
	FileHash      string   `json:"fileHash"`
	FileName      string   `json:"fileName"`
	CreatedAt     uint64   `json:"createdAt"`
	IsAssigned    bool     `json:"isAssigned"`
	LastChargedAt uint64   `json:"lastChargedAt"`
	MinerIds      []string `json:"minerIds"`
}

// ContentStore is the content-addressed gateway. Add reports uploaded bytes through progress, if non-nil.
type ContentStore interface {
	Add(ctx context.Context, name string, r io.Reader, progress func(n int64)) (string, error)
	Get(ctx context.Context, cid string) ([]byte, error)
}

// CreditsOracle returns the spendable balance, or nil if the account has no balance record.
type CreditsOracle interface {
	Balance(ctx context.Context) (*big.Rat, error)
}

type SnapshotStore interface {
	Load(ctx context.Context, account string) (*Snapshot, error)
	Save(ctx context.Context, account string, snapshot *Snapshot) error
}

type CacheInvalidator interface {
	Invalidate(account string)
}

// Notifier delivers operator alerts. Implementations that have nowhere to deliver a notification drop it.
type Notifier interface {
	SendAlert(title, desc string) error
	SendWarning(title, desc string) error
}

type MetricService interface {
	Count(ctx context.Context, name MetricName, val int) error
	Distribution(ctx context.Context, name MetricName, val int) error
	Shutdown(ctx context.Context)
}

type Logger interface {
	Debugf(template string, args ...interface{})
	Debugw(msg string, args ...interface{})
	Errorf(template string, args ...interface{})
	Fatalf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Infoln(args ...interface{})
	Warnf(template string, args ...interface{})
	Sync() error
}
