// Package journal keeps a bounded record of retired batches for the status
// endpoint. Entries hold counters and timings only, never result payloads:
// a retired batch is forgotten by the coordinator, and nothing here can be
// used to replay or reuse its outcome.
package journal

import (
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Outcome classifies how a batch ended.
type Outcome string

const (
	// OutcomeSuccess means the transport call completed and its value was
	// fanned out.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailure means the transport call failed and the error was
	// fanned out.
	OutcomeFailure Outcome = "failure"
	// OutcomeCanceled means every joined caller withdrew before an outcome
	// was delivered.
	OutcomeCanceled Outcome = "canceled"
)

// Record describes one retired batch.
type Record struct {
	Signature string        `json:"signature"`
	Target    string        `json:"target"`
	Joined    int           `json:"joined"`
	Canceled  int           `json:"canceled"`
	Outcome   Outcome       `json:"outcome"`
	Dispatch  time.Duration `json:"dispatchNs"`
	Lifetime  time.Duration `json:"lifetimeNs"`
	RetiredAt time.Time     `json:"retiredAt"`
}

// Journal is a fixed-size, newest-wins record of retired batches. Safe for
// concurrent use.
type Journal struct {
	entries *lru.Cache[uint64, Record]
	seq     atomic.Uint64
}

// New creates a journal holding at most size records.
func New(size int) (*Journal, error) {
	entries, err := lru.New[uint64, Record](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &Journal{entries: entries}, nil
}

// Add records a retired batch, evicting the oldest record when full.
func (j *Journal) Add(rec Record) {
	j.entries.Add(j.seq.Add(1), rec)
}

// Snapshot returns the retained records, newest first.
func (j *Journal) Snapshot() []Record {
	keys := j.entries.Keys()
	records := make([]Record, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if rec, ok := j.entries.Peek(keys[i]); ok {
			records = append(records, rec)
		}
	}
	return records
}

// Len returns the number of retained records.
func (j *Journal) Len() int {
	return j.entries.Len()
}
