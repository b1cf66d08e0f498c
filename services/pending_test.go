package services

import (
	"testing"
	"time"

	"github.com/ceramicnetwork/go-registry/models"
)

func TestIsStale(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := map[string]struct {
		entry    models.FileEntry
		expected bool
	}{
		"confirmed entry": {
			entry:    models.FileEntry{Cid: "bafy"},
			expected: false,
		},
		"recently uploaded": {
			entry:    models.FileEntry{PendingUpload: &models.PendingUpload{Since: now.Add(-29 * time.Minute)}},
			expected: false,
		},
		"at threshold": {
			entry:    models.FileEntry{PendingUpload: &models.PendingUpload{Since: now.Add(-30 * time.Minute)}},
			expected: true,
		},
		"long overdue": {
			entry:    models.FileEntry{PendingUpload: &models.PendingUpload{Since: now.Add(-5 * time.Hour)}},
			expected: true,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			Assert(t, test.expected, IsStale(test.entry, now, models.DefaultPendingStaleAfter), "incorrect staleness")
		})
	}
}

func TestPendingTracker(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewPendingTracker(time.Hour)
	tracker.Track("alice", []models.BatchManifestItem{{FileName: "a", Cid: "cidA"}, {FileName: "b", Cid: "cidB"}}, now)
	tracker.Track("bob", []models.BatchManifestItem{{FileName: "c", Cid: "cidC"}}, now.Add(30*time.Minute))

	pending := tracker.Pending("alice")
	Assert(t, []string{"cidA", "cidB"}, cids(pending), "incorrect pending entries")
	Assert(t, models.FileSource_Local, pending[0].Source, "incorrect source")
	Assert(t, now, pending[0].PendingUpload.Since, "incorrect since")

	tracker.Confirm("alice", map[string]bool{"cidA": true})
	Assert(t, []string{"cidB"}, cids(tracker.Pending("alice")), "confirmed entry not removed")

	pruned := tracker.Prune(now.Add(time.Hour))
	Assert(t, []string{"cidB"}, cids(pruned["alice"]), "incorrect pruned entries")
	Assert(t, 1, len(pruned), "fresh entries reported as pruned")
	Assert(t, 0, len(tracker.Pending("alice")), "stale entry not pruned")
	Assert(t, []string{"cidC"}, cids(tracker.Pending("bob")), "fresh entry pruned")
}
