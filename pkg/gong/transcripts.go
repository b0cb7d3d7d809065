package gong

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for transcript batches.
var (
	gongTranscriptBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gong_transcript_batches_total",
		Help: "Total transcript batch requests by outcome",
	}, []string{"outcome"})

	gongTranscriptsFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gong_transcripts_fetched_total",
		Help: "Total transcripts fetched successfully",
	})
)

// BatchSize is the upstream ceiling on call IDs per transcript request.
const BatchSize = 100

// FetchResult is the outcome of a batched transcript fetch. Transcripts
// holds every payload the API returned; FailedIDs lists the IDs of
// batches whose request failed after retries were exhausted. Keeping the
// two apart lets callers distinguish "fetch failed" from "no transcript
// exists upstream" (absent from both).
type FetchResult struct {
	Transcripts map[string]*Transcript
	FailedIDs   []string
}

// BatchOutcome describes one completed batch: the IDs it fetched, the
// IDs it failed for, and the payloads it returned.
type BatchOutcome struct {
	Succeeded   []string
	Failed      []string
	Transcripts map[string]*Transcript
}

// BatchDone is invoked after each batch. Returning an error aborts the
// remaining batches; the orchestrator uses this to fail the run when
// checkpointing breaks.
type BatchDone func(BatchOutcome) error

// FetchTranscripts fetches transcripts for the given call IDs in batches
// of at most BatchSize via POST /v2/calls/transcript. A batch that fails
// permanently is recorded in FailedIDs and the loop moves on; partial
// failure never aborts the whole fetch. onBatch may be nil.
//
// The filter's date bounds must cover the calls being fetched; the API
// intersects callIds with the date window.
func (c *Client) FetchTranscripts(ctx context.Context, r DateRange, callIDs []string, onBatch BatchDone) (*FetchResult, error) {
	result := &FetchResult{
		Transcripts: make(map[string]*Transcript, len(callIDs)),
	}

	for start := 0; start < len(callIDs); start += BatchSize {
		end := start + BatchSize
		if end > len(callIDs) {
			end = len(callIDs)
		}
		batch := callIDs[start:end]

		fetched, err := c.fetchTranscriptBatch(ctx, r, batch)
		if err != nil {
			if ctx.Err() != nil {
				// An operator abort is not a partial-batch failure;
				// surface it so the run can checkpoint and stop.
				return result, err
			}
			gongTranscriptBatchesTotal.WithLabelValues("failed").Inc()
			c.logger.Error().
				Err(err).
				Int("batch_start", start).
				Int("batch_size", len(batch)).
				Msg("Transcript batch failed, continuing with next batch")
			result.FailedIDs = append(result.FailedIDs, batch...)
			if onBatch != nil {
				if cbErr := onBatch(BatchOutcome{Failed: batch}); cbErr != nil {
					return result, cbErr
				}
			}
			continue
		}

		for id, tr := range fetched {
			result.Transcripts[id] = tr
		}
		gongTranscriptBatchesTotal.WithLabelValues("ok").Inc()
		gongTranscriptsFetchedTotal.Add(float64(len(fetched)))
		c.logger.Debug().
			Int("batch_start", start).
			Int("requested", len(batch)).
			Int("returned", len(fetched)).
			Msg("Transcript batch complete")
		if onBatch != nil {
			// The whole batch counts as fetched: a call absent from the
			// response has no transcript upstream, and re-requesting it
			// on resume would never change that.
			if cbErr := onBatch(BatchOutcome{Succeeded: batch, Transcripts: fetched}); cbErr != nil {
				return result, cbErr
			}
		}
	}

	c.logger.Info().
		Int("requested", len(callIDs)).
		Int("fetched", len(result.Transcripts)).
		Int("failed", len(result.FailedIDs)).
		Msg("Transcript fetch complete")
	return result, nil
}

// transcriptResponse is the wire shape of POST /v2/calls/transcript.
type transcriptResponse struct {
	CallTranscripts []Transcript `json:"callTranscripts"`
}

// fetchTranscriptBatch issues one batch request and returns the payloads
// it came back with, keyed by call ID.
func (c *Client) fetchTranscriptBatch(ctx context.Context, r DateRange, batch []string) (map[string]*Transcript, error) {
	body := struct {
		Filter callFilter `json:"filter"`
	}{
		Filter: callFilter{
			FromDateTime: r.FromDateTime(),
			ToDateTime:   r.ToDateTime(),
			CallIDs:      batch,
		},
	}

	var resp transcriptResponse
	if err := c.do(ctx, http.MethodPost, "/v2/calls/transcript", nil, body, &resp); err != nil {
		return nil, err
	}

	fetched := make(map[string]*Transcript, len(resp.CallTranscripts))
	for i := range resp.CallTranscripts {
		tr := resp.CallTranscripts[i]
		if tr.CallID == "" {
			continue
		}
		fetched[tr.CallID] = &tr
	}
	return fetched, nil
}
