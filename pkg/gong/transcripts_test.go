package gong_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/salesops/gongsync/internal/testutil"
	"github.com/salesops/gongsync/pkg/gong"
)

func makeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("call-%04d", i)
	}
	return ids
}

func TestFetchTranscripts_BatchPartition(t *testing.T) {
	tests := []struct {
		count       int
		wantBatches int
	}{
		{count: 0, wantBatches: 0},
		{count: 1, wantBatches: 1},
		{count: 100, wantBatches: 1},
		{count: 101, wantBatches: 2},
		{count: 250, wantBatches: 3},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d ids", tt.count), func(t *testing.T) {
			mock := testutil.NewMockGong()
			defer mock.Close()

			client := newTestClient(t, mock.URL())
			ids := makeIDs(tt.count)
			result, err := client.FetchTranscripts(context.Background(),
				mustDateRange(t, "2024-01-01", "2024-03-31"), ids, nil)
			if err != nil {
				t.Fatalf("FetchTranscripts() error = %v", err)
			}

			if len(mock.TranscriptBatches) != tt.wantBatches {
				t.Errorf("server saw %d batches, want %d", len(mock.TranscriptBatches), tt.wantBatches)
			}

			// Batches are bounded, non-overlapping, and cover the input
			// exactly once in order.
			var flattened []string
			for i, batch := range mock.TranscriptBatches {
				if len(batch) > gong.BatchSize {
					t.Errorf("batch %d has %d ids, want <= %d", i, len(batch), gong.BatchSize)
				}
				flattened = append(flattened, batch...)
			}
			if len(flattened) != len(ids) {
				t.Fatalf("batches cover %d ids, want %d", len(flattened), len(ids))
			}
			for i := range ids {
				if flattened[i] != ids[i] {
					t.Fatalf("batched id[%d] = %s, want %s", i, flattened[i], ids[i])
				}
			}
			if len(result.Transcripts) != tt.count {
				t.Errorf("result has %d transcripts, want %d", len(result.Transcripts), tt.count)
			}
		})
	}
}

func TestFetchTranscripts_PartialBatchTolerance(t *testing.T) {
	mock := testutil.NewMockGong()
	defer mock.Close()
	// Batch 2 of 3 fails permanently (the client treats a 500 as fatal,
	// so the second request is its only attempt).
	mock.FailTranscriptBatches[2] = true

	client := newTestClient(t, mock.URL())
	ids := makeIDs(250)
	result, err := client.FetchTranscripts(context.Background(),
		mustDateRange(t, "2024-01-01", "2024-03-31"), ids, nil)

	if err != nil {
		t.Fatalf("FetchTranscripts() error = %v, want nil (partial failure is tolerated)", err)
	}
	if len(result.Transcripts) != 150 {
		t.Errorf("result has %d transcripts, want 150 (batches 1 and 3)", len(result.Transcripts))
	}
	if len(result.FailedIDs) != 100 {
		t.Fatalf("FailedIDs has %d ids, want 100 (batch 2)", len(result.FailedIDs))
	}
	for i, id := range result.FailedIDs {
		if want := ids[100+i]; id != want {
			t.Fatalf("FailedIDs[%d] = %s, want %s", i, id, want)
		}
	}
	// Failed ids never leak into the transcript map
	for _, id := range result.FailedIDs {
		if _, ok := result.Transcripts[id]; ok {
			t.Errorf("id %s present in both Transcripts and FailedIDs", id)
		}
	}
}

func TestFetchTranscripts_MissingUpstreamIsNotFailure(t *testing.T) {
	mock := testutil.NewMockGong()
	defer mock.Close()
	mock.NoTranscript["call-0001"] = true

	client := newTestClient(t, mock.URL())
	result, err := client.FetchTranscripts(context.Background(),
		mustDateRange(t, "2024-01-01", "2024-03-31"), makeIDs(3), nil)
	if err != nil {
		t.Fatalf("FetchTranscripts() error = %v", err)
	}

	if len(result.Transcripts) != 2 {
		t.Errorf("result has %d transcripts, want 2", len(result.Transcripts))
	}
	if len(result.FailedIDs) != 0 {
		t.Errorf("FailedIDs = %v, want empty: a call without a transcript is not a fetch failure", result.FailedIDs)
	}
}

func TestFetchTranscripts_OnBatchCheckpoints(t *testing.T) {
	mock := testutil.NewMockGong()
	defer mock.Close()
	mock.FailTranscriptBatches[2] = true

	var succeeded, failed [][]string
	client := newTestClient(t, mock.URL())
	_, err := client.FetchTranscripts(context.Background(),
		mustDateRange(t, "2024-01-01", "2024-03-31"), makeIDs(250),
		func(batch gong.BatchOutcome) error {
			if len(batch.Succeeded) > 0 {
				succeeded = append(succeeded, batch.Succeeded)
				if len(batch.Transcripts) != len(batch.Succeeded) {
					t.Errorf("batch has %d transcripts for %d succeeded ids",
						len(batch.Transcripts), len(batch.Succeeded))
				}
			}
			if len(batch.Failed) > 0 {
				failed = append(failed, batch.Failed)
			}
			return nil
		})
	if err != nil {
		t.Fatalf("FetchTranscripts() error = %v", err)
	}

	if len(succeeded) != 2 {
		t.Errorf("onBatch saw %d successful batches, want 2", len(succeeded))
	}
	if len(failed) != 1 || len(failed[0]) != 100 {
		t.Errorf("onBatch saw failed batches %v, want one batch of 100", len(failed))
	}
}

func TestFetchTranscripts_OnBatchErrorAborts(t *testing.T) {
	mock := testutil.NewMockGong()
	defer mock.Close()

	checkpointErr := fmt.Errorf("disk full")
	client := newTestClient(t, mock.URL())
	_, err := client.FetchTranscripts(context.Background(),
		mustDateRange(t, "2024-01-01", "2024-03-31"), makeIDs(250),
		func(gong.BatchOutcome) error {
			return checkpointErr
		})

	if err == nil {
		t.Fatal("FetchTranscripts() error = nil, want checkpoint error to abort")
	}
	if len(mock.TranscriptBatches) != 1 {
		t.Errorf("server saw %d batches, want 1 (aborted after first checkpoint failure)", len(mock.TranscriptBatches))
	}
}

func TestFetchTranscripts_Empty(t *testing.T) {
	mock := testutil.NewMockGong()
	defer mock.Close()

	client := newTestClient(t, mock.URL())
	result, err := client.FetchTranscripts(context.Background(),
		mustDateRange(t, "2024-01-01", "2024-03-31"), nil, nil)
	if err != nil {
		t.Fatalf("FetchTranscripts() error = %v", err)
	}
	if len(result.Transcripts) != 0 || len(result.FailedIDs) != 0 {
		t.Errorf("result = %d transcripts, %d failed; want empty", len(result.Transcripts), len(result.FailedIDs))
	}
	if mock.TranscriptRequests != 0 {
		t.Errorf("server saw %d requests, want 0", mock.TranscriptRequests)
	}
}
