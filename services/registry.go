package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ceramicnetwork/go-registry/models"
)

type SnapshotFetcher interface {
	Fetch(ctx context.Context, account string) (*models.Snapshot, error)
}

// RegistryService is the cached read path for file listings. Snapshots are only ever written to the cache by the
// service's own fetches; callers can force a fetch or drop an account's snapshot but never write one.
type RegistryService struct {
	fetcher         SnapshotFetcher
	cache           *SnapshotCache
	pending         *PendingTracker
	refreshInterval time.Duration
	notifier        models.Notifier
	logger          models.Logger
	metricService   models.MetricService
	group           singleflight.Group
	lock            sync.Mutex
	generations     map[string]uint64
	lastRead        map[string]time.Time
	now             func() time.Time
}

func NewRegistryService(
	fetcher SnapshotFetcher,
	cache *SnapshotCache,
	pending *PendingTracker,
	refreshInterval time.Duration,
	notifier models.Notifier,
	logger models.Logger,
	metricService models.MetricService,
) *RegistryService {
	if refreshInterval <= 0 {
		refreshInterval = models.DefaultCacheRefreshInterval
	}
	return &RegistryService{
		fetcher:         fetcher,
		cache:           cache,
		pending:         pending,
		refreshInterval: refreshInterval,
		notifier:        notifier,
		logger:          logger,
		metricService:   metricService,
		generations:     make(map[string]uint64),
		lastRead:        make(map[string]time.Time),
		now:             time.Now,
	}
}

// Files returns the account's reconciled listing. With refresh set the cache is bypassed.
func (r *RegistryService) Files(ctx context.Context, account string, refresh bool) (*models.Snapshot, error) {
	r.touch(account)
	if !refresh {
		if snapshot, found := r.cache.Get(account); found {
			r.metricService.Count(ctx, models.MetricName_ReconcileCacheHit, 1)
			return snapshot, nil
		}
	}
	return r.fetch(ctx, account)
}

// Invalidate drops the account's cached snapshot. Fetches already in flight will not repopulate the cache.
func (r *RegistryService) Invalidate(account string) {
	r.lock.Lock()
	r.generations[account]++
	r.lock.Unlock()

	r.group.Forget(account)
	r.cache.Invalidate(account)
}

// Run refreshes, on every tick, the accounts read within the last few refresh intervals, until ctx is done.
func (r *RegistryService) Run(ctx context.Context) {
	ticker := time.NewTicker(r.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Infof("registry: stopped background refresh")
			return
		case <-ticker.C:
			r.refreshAll(ctx)
		}
	}
}

func (r *RegistryService) refreshAll(ctx context.Context) {
	if r.pending != nil {
		for account, entries := range r.pending.Prune(r.now()) {
			r.warnUnconfirmed(account, entries)
		}
	}
	for _, account := range r.activeAccounts() {
		if _, err := r.fetch(ctx, account); err != nil {
			r.logger.Errorf("registry: background refresh failed for %s: %v", account, err)
		}
	}
}

func (r *RegistryService) warnUnconfirmed(account string, entries []models.FileEntry) {
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name + " (" + entry.Cid + ")"
	}
	r.logger.Warnf("registry: uploads for %s were never confirmed: %v", account, names)
	if r.notifier != nil {
		r.notifier.SendWarning(
			"Unconfirmed uploads",
			fmt.Sprintf("%d uploads for %s were not confirmed within %s: %s", len(entries), account, r.pending.StaleAfter(), strings.Join(names, ", ")),
		)
	}
}

func (r *RegistryService) fetch(ctx context.Context, account string) (*models.Snapshot, error) {
	result, err, _ := r.group.Do(account, func() (interface{}, error) {
		generation := r.generation(account)
		snapshot, err := r.fetcher.Fetch(ctx, account)
		if err != nil {
			return nil, err
		}
		r.lock.Lock()
		if r.generations[account] == generation {
			r.cache.Set(account, snapshot)
		}
		r.lock.Unlock()
		return snapshot, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Snapshot), nil
}

func (r *RegistryService) generation(account string) uint64 {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.generations[account]
}

func (r *RegistryService) touch(account string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.lastRead[account] = r.now()
}

func (r *RegistryService) activeAccounts() []string {
	r.lock.Lock()
	defer r.lock.Unlock()

	cutoff := r.now().Add(-3 * r.refreshInterval)
	accounts := make([]string, 0, len(r.lastRead))
	for account, lastRead := range r.lastRead {
		if lastRead.Before(cutoff) {
			delete(r.lastRead, account)
			delete(r.generations, account)
			continue
		}
		accounts = append(accounts, account)
	}
	return accounts
}
