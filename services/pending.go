package services

import (
	"sync"
	"time"

	"github.com/ceramicnetwork/go-registry/models"
)

// IsStale reports whether a locally pending entry has waited longer than threshold for either source to confirm it.
// Confirmed entries are never stale.
func IsStale(entry models.FileEntry, now time.Time, threshold time.Duration) bool {
	if entry.PendingUpload == nil {
		return false
	}
	return now.Sub(entry.PendingUpload.Since) >= threshold
}

// PendingTracker remembers files from submitted batches until a reconciliation sees them.
type PendingTracker struct {
	lock       sync.Mutex
	staleAfter time.Duration
	entries    map[string][]models.FileEntry
}

func NewPendingTracker(staleAfter time.Duration) *PendingTracker {
	if staleAfter <= 0 {
		staleAfter = models.DefaultPendingStaleAfter
	}
	return &PendingTracker{staleAfter: staleAfter, entries: make(map[string][]models.FileEntry)}
}

func (p *PendingTracker) Track(account string, files []models.BatchManifestItem, now time.Time) {
	p.lock.Lock()
	defer p.lock.Unlock()

	for _, file := range files {
		p.entries[account] = append(p.entries[account], models.FileEntry{
			Name:          file.FileName,
			Cid:           file.Cid,
			PendingUpload: &models.PendingUpload{Since: now},
			Source:        models.FileSource_Local,
		})
	}
}

// Pending returns a copy of the account's unconfirmed entries.
func (p *PendingTracker) Pending(account string) []models.FileEntry {
	p.lock.Lock()
	defer p.lock.Unlock()

	return append([]models.FileEntry(nil), p.entries[account]...)
}

// Confirm forgets every pending entry whose CID is in confirmed.
func (p *PendingTracker) Confirm(account string, confirmed map[string]bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.filter(account, func(entry models.FileEntry) bool { return !confirmed[entry.Cid] })
}

// Prune forgets pending entries that have gone stale and returns them by account.
func (p *PendingTracker) Prune(now time.Time) map[string][]models.FileEntry {
	p.lock.Lock()
	defer p.lock.Unlock()

	pruned := make(map[string][]models.FileEntry)
	for account := range p.entries {
		p.filter(account, func(entry models.FileEntry) bool {
			if IsStale(entry, now, p.staleAfter) {
				pruned[account] = append(pruned[account], entry)
				return false
			}
			return true
		})
	}
	return pruned
}

func (p *PendingTracker) StaleAfter() time.Duration {
	return p.staleAfter
}

func (p *PendingTracker) filter(account string, keep func(models.FileEntry) bool) {
	kept := p.entries[account][:0]
	for _, entry := range p.entries[account] {
		if keep(entry) {
			kept = append(kept, entry)
		}
	}
	if len(kept) == 0 {
		delete(p.entries, account)
		return
	}
	p.entries[account] = kept
}
