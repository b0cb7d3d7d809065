// Package progress persists the pipeline's checkpoint: which calls have
// been discovered and which call IDs have had transcripts fetched. The
// snapshot lives only for the duration of one run; it is written on every
// state-changing step and deleted on successful completion, so a crash
// loses at most the in-flight batch.
//
// The snapshot file has a single-writer assumption. Concurrent runs
// against the same output directory are unsupported and can corrupt it;
// there is no inter-process locking.
package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/salesops/gongsync/pkg/gong"
)

// SnapshotFileName is the checkpoint file written under the output
// directory.
const SnapshotFileName = "download_progress.json"

// Snapshot is the resumable unit of work. Invariant: every fetched ID is
// the ID of a discovered call.
type Snapshot struct {
	// Calls holds the discovered calls in discovery order.
	Calls []gong.Call

	// FetchedIDs is the set of call IDs whose transcripts have been
	// fetched. A genuine set in memory; serialized as a sorted array at
	// the storage boundary.
	FetchedIDs map[string]struct{}
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{FetchedIDs: make(map[string]struct{})}
}

// MarkFetched adds the given IDs to the fetched set.
func (s *Snapshot) MarkFetched(ids ...string) {
	for _, id := range ids {
		s.FetchedIDs[id] = struct{}{}
	}
}

// IsFetched reports whether the given call ID has been fetched.
func (s *Snapshot) IsFetched(id string) bool {
	_, ok := s.FetchedIDs[id]
	return ok
}

// MissingIDs returns the IDs of the given calls that have not been
// fetched yet, in the calls' order.
func (s *Snapshot) MissingIDs(calls []gong.Call) []string {
	var missing []string
	for _, c := range calls {
		if c.ID == "" {
			continue
		}
		if !s.IsFetched(c.ID) {
			missing = append(missing, c.ID)
		}
	}
	return missing
}

// SetCalls replaces the discovered calls and drops fetched IDs that no
// longer correspond to a discovered call, preserving the snapshot
// invariant after a re-discovery.
func (s *Snapshot) SetCalls(calls []gong.Call) {
	s.Calls = calls
	known := make(map[string]struct{}, len(calls))
	for _, c := range calls {
		known[c.ID] = struct{}{}
	}
	for id := range s.FetchedIDs {
		if _, ok := known[id]; !ok {
			delete(s.FetchedIDs, id)
		}
	}
}

// snapshotFile is the on-disk JSON shape.
type snapshotFile struct {
	DiscoveredRecords []gong.Call `json:"discovered_records"`
	FetchedIDs        []string    `json:"fetched_ids"`
}

// Store reads and writes the snapshot file.
type Store struct {
	path   string
	logger zerolog.Logger
}

// NewStore creates a store persisting under dir.
func NewStore(dir string, logger zerolog.Logger) *Store {
	return &Store{
		path:   filepath.Join(dir, SnapshotFileName),
		logger: logger,
	}
}

// Path returns the snapshot file location.
func (st *Store) Path() string {
	return st.path
}

// Load reads the persisted snapshot. A missing file or any decode error
// degrades to an empty snapshot (logged, never surfaced): losing a
// checkpoint only costs re-fetching, while failing the run here would
// cost the whole run.
func (st *Store) Load() *Snapshot {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			st.logger.Warn().Err(err).Str("path", st.path).
				Msg("Could not read progress snapshot, starting fresh")
		}
		return NewSnapshot()
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		st.logger.Warn().Err(err).Str("path", st.path).
			Msg("Corrupt progress snapshot, starting fresh")
		return NewSnapshot()
	}

	snap := NewSnapshot()
	snap.Calls = file.DiscoveredRecords
	snap.MarkFetched(file.FetchedIDs...)
	st.logger.Debug().
		Int("discovered", len(snap.Calls)).
		Int("fetched", len(snap.FetchedIDs)).
		Msg("Loaded progress snapshot")
	return snap
}

// Save serializes and overwrites the snapshot, writing through a temp
// file and rename so a crash mid-write cannot truncate the previous
// checkpoint. A write failure is returned: silently failing to
// checkpoint would defeat the resume guarantee.
func (st *Store) Save(snap *Snapshot) error {
	ids := make([]string, 0, len(snap.FetchedIDs))
	for id := range snap.FetchedIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data, err := json.MarshalIndent(snapshotFile{
		DiscoveredRecords: snap.Calls,
		FetchedIDs:        ids,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := st.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, st.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}

	st.logger.Debug().
		Int("discovered", len(snap.Calls)).
		Int("fetched", len(ids)).
		Msg("Saved progress snapshot")
	return nil
}

// Clear deletes the snapshot file. Called only after a run completes
// successfully; a missing file is not an error.
func (st *Store) Clear() error {
	if err := os.Remove(st.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}
