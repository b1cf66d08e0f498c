package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ceramicnetwork/go-registry/models"
)

var snapshotBucket = []byte("snapshots")

// SnapshotDatabase keeps the last reconciled snapshot per account in a bbolt file so previously-known file detail
// survives restarts.
type SnapshotDatabase struct {
	db *bolt.DB
}

func NewSnapshotDb(path string) (*SnapshotDatabase, error) {
	boltDb, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("snapshot db: error opening %s: %w", path, err)
	}
	if err = boltDb.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotBucket)
		return err
	}); err != nil {
		boltDb.Close()
		return nil, fmt.Errorf("snapshot db: error creating bucket: %w", err)
	}
	return &SnapshotDatabase{boltDb}, nil
}

func (sdb *SnapshotDatabase) Load(_ context.Context, account string) (*models.Snapshot, error) {
	var snapshot *models.Snapshot
	err := sdb.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(snapshotBucket).Get([]byte(account))
		if data == nil {
			return nil
		}
		snapshot = new(models.Snapshot)
		return json.Unmarshal(data, snapshot)
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot db: error loading %s: %w", account, err)
	}
	return snapshot, nil
}

func (sdb *SnapshotDatabase) Save(_ context.Context, account string, snapshot *models.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	if err = sdb.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotBucket).Put([]byte(account), data)
	}); err != nil {
		return fmt.Errorf("snapshot db: error saving %s: %w", account, err)
	}
	return nil
}

func (sdb *SnapshotDatabase) Close() error {
	return sdb.db.Close()
}
