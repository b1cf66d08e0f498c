package services

import (
	"sync"

	"github.com/ceramicnetwork/go-registry/models"
)

// progressTracker converts uploaded bytes into a whole percentage. It never reports 100 until complete is called,
// which happens once the batch manifest itself has been stored.
type progressTracker struct {
	lock     sync.Mutex
	total    int64
	done     int64
	reported int
	report   func(int)
}

func newProgressTracker(items []models.UploadItem, report func(int)) *progressTracker {
	var total int64
	for _, item := range items {
		if item.IsExternal() {
			total++
		} else {
			total += item.Size
		}
	}
	if total <= 0 {
		total = 1
	}
	return &progressTracker{total: total, report: report}
}

func (p *progressTracker) add(n int64) {
	if n <= 0 {
		return
	}
	p.lock.Lock()
	defer p.lock.Unlock()

	p.done += n
	if p.done > p.total {
		p.done = p.total
	}
	percent := int(p.done * models.MaxUploadProgress / p.total)
	if percent > models.MaxUploadProgress-1 {
		percent = models.MaxUploadProgress - 1
	}
	if percent > p.reported {
		p.reported = percent
		p.report(percent)
	}
}

// current is the last percentage reported.
func (p *progressTracker) current() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.reported
}

func (p *progressTracker) complete() {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.reported = models.MaxUploadProgress
	p.report(models.MaxUploadProgress)
}
