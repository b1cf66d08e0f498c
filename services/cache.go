package services

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ceramicnetwork/go-registry/models"
)

// SnapshotCache holds the latest snapshot per account for a short freshness window.
type SnapshotCache struct {
	lru *expirable.LRU[string, *models.Snapshot]
}

func NewSnapshotCache(size int, ttl time.Duration) *SnapshotCache {
	if size <= 0 {
		size = models.DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = models.DefaultCacheTtl
	}
	return &SnapshotCache{expirable.NewLRU[string, *models.Snapshot](size, nil, ttl)}
}

func (s *SnapshotCache) Get(account string) (*models.Snapshot, bool) {
	return s.lru.Get(account)
}

func (s *SnapshotCache) Set(account string, snapshot *models.Snapshot) {
	s.lru.Add(account, snapshot)
}

func (s *SnapshotCache) Invalidate(account string) {
	s.lru.Remove(account)
}
