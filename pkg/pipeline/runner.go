// Package pipeline sequences the sync run: discovery of calls in a date
// range, resume-aware transcript fetching, and artifact persistence,
// checkpointing progress after every state-changing step.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/salesops/gongsync/pkg/artifacts"
	"github.com/salesops/gongsync/pkg/gong"
	"github.com/salesops/gongsync/pkg/logging"
	"github.com/salesops/gongsync/pkg/progress"
)

// Prometheus metrics for pipeline runs.
var (
	gongPipelineRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gong_pipeline_runs_total",
		Help: "Total pipeline runs by outcome",
	}, []string{"outcome"})

	gongPipelineDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gong_pipeline_duration_seconds",
		Help:    "Wall-clock duration of pipeline runs",
		Buckets: []float64{1, 10, 60, 300, 900, 3600},
	})
)

// ResumePolicy controls whether a run reuses previously discovered calls
// from the snapshot or always re-runs discovery.
type ResumePolicy string

const (
	// ResumeReuseCached skips discovery whenever the snapshot already
	// holds discovered calls, even if a fresh query would return
	// different results. Resumability over freshness.
	ResumeReuseCached ResumePolicy = "reuse_cached"

	// ResumeAlwaysRediscover re-runs discovery on every run, keeping only
	// the fetched-ID progress that still matches discovered calls.
	ResumeAlwaysRediscover ResumePolicy = "always_rediscover"
)

// Config holds the run parameters.
type Config struct {
	// DateRange bounds discovery.
	DateRange gong.DateRange

	// TitleFilter optionally narrows discovered calls by title keywords.
	// "a and b" requires all keywords; a comma- or space-separated list
	// matches any. Empty means no filtering.
	TitleFilter string

	// Resume selects the discovery reuse behavior. Defaults to
	// ResumeReuseCached.
	Resume ResumePolicy

	// Progress, when set, observes discovery progress for UI purposes.
	Progress gong.ListProgress
}

// Summary reports what a run accomplished.
type Summary struct {
	RunID        string
	Discovered   int
	Filtered     int
	Fetched      int
	FailedIDs    []string
	FromExisting int
	Started      time.Time
	Finished     time.Time
}

// Duration is the run's wall-clock time.
func (s *Summary) Duration() time.Duration {
	return s.Finished.Sub(s.Started)
}

// Runner owns one pipeline run against one output directory. The
// snapshot has a single-writer assumption: concurrent runs against the
// same output directory are undefined behavior.
type Runner struct {
	client    *gong.Client
	snapshots *progress.Store
	artifacts *artifacts.Store
	config    Config
	logger    zerolog.Logger
}

// NewRunner assembles a runner from its collaborators.
func NewRunner(client *gong.Client, snapshots *progress.Store, store *artifacts.Store, cfg Config) *Runner {
	if cfg.Resume == "" {
		cfg.Resume = ResumeReuseCached
	}
	return &Runner{
		client:    client,
		snapshots: snapshots,
		artifacts: store,
		config:    cfg,
		logger:    logging.NewLogger("pipeline"),
	}
}

// Run executes discovery, resume-aware fetch, and persistence. On any
// failure, including an operator interrupt via ctx, the snapshot is saved
// best-effort and the error returned; re-invoking the pipeline resumes
// from the checkpoint. There is no run-level auto-retry.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		RunID:   uuid.NewString(),
		Started: time.Now(),
	}
	logger := r.logger.With().Str("run_id", summary.RunID).Logger()
	logger.Info().
		Str("from", r.config.DateRange.FromDateTime()).
		Str("to", r.config.DateRange.ToDateTime()).
		Str("resume_policy", string(r.config.Resume)).
		Msg("Starting sync run")

	snap := r.snapshots.Load()

	summary, err := r.run(ctx, logger, snap, summary)
	summary.Finished = time.Now()
	gongPipelineDurationSeconds.Observe(summary.Duration().Seconds())

	if err != nil {
		gongPipelineRunsTotal.WithLabelValues("failed").Inc()
		if saveErr := r.snapshots.Save(snap); saveErr != nil {
			logger.Error().Err(saveErr).Msg("Could not checkpoint progress after failure")
		}
		logger.Error().Err(err).Msg("Sync run failed, progress checkpointed for resume")
		return summary, err
	}

	gongPipelineRunsTotal.WithLabelValues("ok").Inc()
	logger.Info().
		Int("discovered", summary.Discovered).
		Int("fetched", summary.Fetched).
		Int("failed", len(summary.FailedIDs)).
		Dur("duration", summary.Duration()).
		Msg("Sync run complete")
	return summary, nil
}

func (r *Runner) run(ctx context.Context, logger zerolog.Logger, snap *progress.Snapshot, summary *Summary) (*Summary, error) {
	// Discovering
	if len(snap.Calls) > 0 && r.config.Resume == ResumeReuseCached {
		logger.Info().
			Int("calls", len(snap.Calls)).
			Msg("Resuming with previously discovered calls, skipping discovery")
	} else {
		calls, err := r.client.ListCallsExtensive(ctx, r.config.DateRange, r.config.Progress)
		if err != nil {
			return summary, fmt.Errorf("discovery: %w", err)
		}
		snap.SetCalls(calls)
		if err := r.snapshots.Save(snap); err != nil {
			return summary, fmt.Errorf("checkpoint after discovery: %w", err)
		}
	}
	summary.Discovered = len(snap.Calls)

	calls := filterCalls(snap.Calls, r.config.TitleFilter)
	summary.Filtered = len(calls)
	if r.config.TitleFilter != "" {
		logger.Info().
			Int("matched", len(calls)).
			Int("discovered", len(snap.Calls)).
			Str("filter", r.config.TitleFilter).
			Msg("Applied title filter")
	}
	if len(calls) == 0 {
		logger.Info().Msg("No calls to process")
		return summary, r.finish(snap, calls, nil, summary)
	}

	// Fetching
	transcripts := make(map[string]*gong.Transcript)
	missing := snap.MissingIDs(calls)

	if len(missing) == 0 {
		logger.Info().Msg("All transcripts already fetched, loading from artifacts")
	} else {
		logger.Info().
			Int("missing", len(missing)).
			Int("already_fetched", len(calls)-len(missing)).
			Msg("Fetching transcripts")

		callsByID := make(map[string]gong.Call, len(calls))
		for _, c := range calls {
			callsByID[c.ID] = c
		}

		result, err := r.client.FetchTranscripts(ctx, r.config.DateRange, missing,
			func(batch gong.BatchOutcome) error {
				if len(batch.Succeeded) == 0 {
					return nil
				}
				// Persist the batch's payloads before checkpointing so a
				// resumed run can reload them from disk.
				for id, tr := range batch.Transcripts {
					if err := r.artifacts.WriteCall(callsByID[id], tr); err != nil {
						return fmt.Errorf("persist batch payload %s: %w", id, err)
					}
				}
				snap.MarkFetched(batch.Succeeded...)
				if err := r.snapshots.Save(snap); err != nil {
					return fmt.Errorf("checkpoint after batch: %w", err)
				}
				return nil
			})
		if err != nil {
			return summary, fmt.Errorf("fetch transcripts: %w", err)
		}

		summary.Fetched = len(result.Transcripts)
		summary.FailedIDs = result.FailedIDs
		for id, tr := range result.Transcripts {
			transcripts[id] = tr
		}
	}

	// Merge previously fetched transcripts from disk so the final result
	// set is deduplicated by call ID, not reset to this run's batches.
	var previouslyFetched []string
	for _, c := range calls {
		if snap.IsFetched(c.ID) {
			if _, have := transcripts[c.ID]; !have {
				previouslyFetched = append(previouslyFetched, c.ID)
			}
		}
	}
	for id, tr := range r.artifacts.LoadTranscripts(previouslyFetched) {
		transcripts[id] = tr
		summary.FromExisting++
	}

	// Persisting
	return summary, r.finish(snap, calls, transcripts, summary)
}

// finish writes all artifacts and clears the snapshot.
func (r *Runner) finish(snap *progress.Snapshot, calls []gong.Call, transcripts map[string]*gong.Transcript, summary *Summary) error {
	for _, call := range calls {
		if call.ID == "" {
			continue
		}
		tr := transcripts[call.ID]
		if err := r.artifacts.WriteCall(call, tr); err != nil {
			return fmt.Errorf("persist call %s: %w", call.ID, err)
		}
		if tr != nil {
			if err := r.artifacts.WriteFormattedTranscript(call, tr); err != nil {
				return fmt.Errorf("persist transcript %s: %w", call.ID, err)
			}
		}
	}
	if err := r.artifacts.WriteMetadataCSV(calls, transcripts); err != nil {
		return fmt.Errorf("persist metadata: %w", err)
	}
	if err := r.snapshots.Clear(); err != nil {
		return err
	}
	return nil
}
