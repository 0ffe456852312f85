package stats

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// DurationDigest estimates duration percentiles in constant memory.
// Safe for concurrent use.
type DurationDigest struct {
	mu     sync.Mutex
	digest *tdigest.TDigest
	count  int
}

// NewDurationDigest creates an empty digest.
func NewDurationDigest() *DurationDigest {
	return &DurationDigest{
		digest: tdigest.NewWithCompression(100), // ~100 centroids
	}
}

// Add records one duration.
func (d *DurationDigest) Add(v time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.digest.Add(float64(v)/float64(time.Millisecond), 1)
	d.count++
}

// Quantile returns the estimated q-quantile (0..1), or 0 when empty.
func (d *DurationDigest) Quantile(q float64) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.count == 0 {
		return 0
	}
	return time.Duration(d.digest.Quantile(q) * float64(time.Millisecond))
}

// Count returns the number of recorded durations.
func (d *DurationDigest) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}
