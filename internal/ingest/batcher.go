// Package ingest runs the per-connection ingestion pipeline: batched upsert,
// archival sweep and status promotion.
package ingest

import (
	"context"
	"log/slog"

	"job_distributor/internal/model"
)

// DefaultBatchSize is the number of offers written per batch.
const DefaultBatchSize = 100

// OfferWriter stores one offer keyed by (external id, connection).
type OfferWriter interface {
	UpsertOffer(ctx context.Context, o *model.Offer) error
}

// FailedOffer describes an offer that could not be stored.
type FailedOffer struct {
	ExternalID string `json:"externalId"`
	Reason     string `json:"reason"`
}

// BatchResult summarizes one ingest call.
type BatchResult struct {
	Processed     int           `json:"processed"`
	Failed        int           `json:"failed"`
	FailedDetails []FailedOffer `json:"failedDetails,omitempty"`
}

// Batcher upserts offers in fixed-size batches. A failing offer is recorded
// and the rest of its batch continues.
type Batcher struct {
	store OfferWriter
	size  int
	log   *slog.Logger
}

// NewBatcher creates a Batcher. A non-positive size uses DefaultBatchSize.
func NewBatcher(store OfferWriter, size int, log *slog.Logger) *Batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Batcher{store: store, size: size, log: log}
}

// Ingest stores offers and reports both counts. Offers left unwritten when
// ctx is cancelled are counted as failed.
func (b *Batcher) Ingest(ctx context.Context, offers []model.Offer) BatchResult {
	var res BatchResult
	for start := 0; start < len(offers); start += b.size {
		end := min(start+b.size, len(offers))
		for i := start; i < end; i++ {
			o := &offers[i]
			if err := ctx.Err(); err != nil {
				res.fail(o.ExternalID, err.Error())
				continue
			}
			if err := b.store.UpsertOffer(ctx, o); err != nil {
				res.fail(o.ExternalID, err.Error())
				continue
			}
			res.Processed++
		}
		b.log.Debug("batch stored", "from", start, "to", end, "processed", res.Processed, "failed", res.Failed)
	}
	return res
}

func (r *BatchResult) fail(externalID, reason string) {
	r.Failed++
	r.FailedDetails = append(r.FailedDetails, FailedOffer{ExternalID: externalID, Reason: reason})
}
