package rehydration

import (
	"context"
	"fmt"

	"github.com/dharsanguruparan/rehydrator/internal/model"
)

// MaxBatchSize is the API's limit on ids per request.
const MaxBatchSize = 25

// StatusMissing is the status given to a requested id the response did not
// mention. It matches no API phrase, so it is recorded as not available.
const StatusMissing = "no record returned for requested id"

// Fetcher retrieves the records for one batch of ids.
type Fetcher interface {
	Rehydrate(ctx context.Context, ids []string) ([]model.ActivityRecord, error)
}

// Requester drives one Fetcher call per batch, strictly one at a time.
type Requester struct {
	fetcher   Fetcher
	batchSize int
}

// NewRequester constructs a Requester. A batchSize outside 1..MaxBatchSize
// is clamped to MaxBatchSize.
func NewRequester(fetcher Fetcher, batchSize int) *Requester {
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	return &Requester{fetcher: fetcher, batchSize: batchSize}
}

// Batches splits ids into consecutive groups of at most size elements.
func Batches(ids []string, size int) [][]string {
	if size <= 0 {
		size = MaxBatchSize
	}
	groups := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		groups = append(groups, ids[start:end])
	}
	return groups
}

// Run requests every batch of ids in order and hands each returned record to
// fn in response order, followed by a StatusMissing record for every
// requested id the response left out. It returns the number of requests
// issued. The first error from the fetcher or from fn stops the run.
func (r *Requester) Run(ctx context.Context, ids []string, fn func(model.ActivityRecord) error) (int, error) {
	requests := 0
	for i, group := range Batches(ids, r.batchSize) {
		records, err := r.fetcher.Rehydrate(ctx, group)
		requests++
		if err != nil {
			return requests, fmt.Errorf("batch %d: %w", i+1, err)
		}
		seen := make(map[string]struct{}, len(records))
		for _, rec := range records {
			seen[rec.ID] = struct{}{}
			if err := fn(rec); err != nil {
				return requests, err
			}
		}
		for _, id := range group {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			if err := fn(model.ActivityRecord{ID: id, Status: StatusMissing}); err != nil {
				return requests, err
			}
		}
	}
	return requests, nil
}
