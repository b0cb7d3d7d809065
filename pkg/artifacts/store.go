// Package artifacts writes the pipeline's durable outputs: per-call raw
// JSON documents, formatted text transcripts, and the consolidated
// metadata CSV. The raw JSON documents double as the source previously
// fetched transcripts are reloaded from on resume.
package artifacts

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/salesops/gongsync/pkg/gong"
)

// ErrNotFound indicates no artifact exists for the requested call.
var ErrNotFound = errors.New("artifact not found")

// Subdirectories under the store root.
const (
	rawJSONDir     = "raw_json"
	transcriptsDir = "transcripts"
)

// MetadataCSVName is the consolidated metadata file.
const MetadataCSVName = "calls_metadata.csv"

// callDocument is the on-disk shape of one call's raw JSON artifact.
type callDocument struct {
	CallMetadata gong.Call        `json:"call_metadata"`
	Transcript   *gong.Transcript `json:"transcript,omitempty"`
}

// Store manages artifacts under a single output directory.
type Store struct {
	root   string
	logger zerolog.Logger
}

// NewStore creates the store, ensuring the directory layout exists.
func NewStore(root string, logger zerolog.Logger) (*Store, error) {
	for _, dir := range []string{root, filepath.Join(root, rawJSONDir), filepath.Join(root, transcriptsDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create artifact directory %s: %w", dir, err)
		}
	}
	return &Store{root: root, logger: logger}, nil
}

// Root returns the output directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) rawPath(callID string) string {
	return filepath.Join(s.root, rawJSONDir, "call_"+callID+".json")
}

// WriteCall persists the raw JSON document for one call. transcript may
// be nil when none exists or the fetch failed.
func (s *Store) WriteCall(call gong.Call, transcript *gong.Transcript) error {
	doc := callDocument{CallMetadata: call, Transcript: transcript}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal call %s: %w", call.ID, err)
	}
	if err := os.WriteFile(s.rawPath(call.ID), data, 0o644); err != nil {
		return fmt.Errorf("write call %s: %w", call.ID, err)
	}
	return nil
}

// ReadTranscript loads the transcript from a previously written raw JSON
// document. Returns ErrNotFound when no document exists or the document
// carries no transcript.
func (s *Store) ReadTranscript(callID string) (*gong.Transcript, error) {
	data, err := os.ReadFile(s.rawPath(callID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read call %s: %w", callID, err)
	}

	var doc callDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode call %s: %w", callID, err)
	}
	if doc.Transcript == nil {
		return nil, ErrNotFound
	}
	return doc.Transcript, nil
}

// LoadTranscripts reads previously written transcripts for the given
// call IDs, skipping those without one. Used on resume to merge prior
// work into the current run's result set.
func (s *Store) LoadTranscripts(callIDs []string) map[string]*gong.Transcript {
	loaded := make(map[string]*gong.Transcript)
	for _, id := range callIDs {
		tr, err := s.ReadTranscript(id)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.logger.Warn().Err(err).Str("call_id", id).
					Msg("Could not load existing transcript")
			}
			continue
		}
		loaded[id] = tr
	}
	s.logger.Debug().
		Int("requested", len(callIDs)).
		Int("loaded", len(loaded)).
		Msg("Loaded existing transcripts")
	return loaded
}

// WriteFormattedTranscript renders a human-readable transcript with a
// metadata header and speaker-resolved lines, named by call date and ID.
func (s *Store) WriteFormattedTranscript(call gong.Call, transcript *gong.Transcript) error {
	if transcript == nil {
		return nil
	}

	date := "unknown-date"
	if t := call.StartedTime(); !t.IsZero() {
		date = t.UTC().Format("2006-01-02")
	}
	path := filepath.Join(s.root, transcriptsDir, fmt.Sprintf("%s_%s.txt", date, call.ID))

	var b strings.Builder
	fmt.Fprintf(&b, "Call: %s\n", call.Title)
	fmt.Fprintf(&b, "Date: %s\n", date)
	fmt.Fprintf(&b, "Duration: %d minutes\n", call.DurationMinutes())
	if len(call.Parties) > 0 {
		fmt.Fprintf(&b, "Participants: %s\n", joinParticipants(call.Parties))
	}
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	speakers := speakerNames(call.Parties)
	for _, m := range transcript.Monologues {
		name := speakers[m.SpeakerID]
		if name == "" {
			name = "Speaker " + m.SpeakerID
		}
		for _, sent := range m.Sentences {
			fmt.Fprintf(&b, "[%s] %s: %s\n", formatOffset(sent.Start), name, sent.Text)
		}
		b.WriteString("\n")
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write transcript %s: %w", call.ID, err)
	}
	return nil
}

// WriteMetadataCSV writes the consolidated per-call metadata table.
func (s *Store) WriteMetadataCSV(calls []gong.Call, transcripts map[string]*gong.Transcript) error {
	path := filepath.Join(s.root, MetadataCSVName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metadata csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"call_id", "title", "started", "duration_minutes",
		"direction", "participants", "has_transcript",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, call := range calls {
		_, has := transcripts[call.ID]
		row := []string{
			call.ID,
			call.Title,
			call.Started,
			fmt.Sprintf("%d", call.DurationMinutes()),
			call.Direction,
			joinParticipants(call.Parties),
			fmt.Sprintf("%t", has),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write csv row for %s: %w", call.ID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush metadata csv: %w", err)
	}
	s.logger.Info().Int("calls", len(calls)).Str("path", path).Msg("Wrote metadata CSV")
	return nil
}

// speakerNames maps speaker IDs to participant names.
func speakerNames(parties []gong.Party) map[string]string {
	names := make(map[string]string, len(parties))
	for _, p := range parties {
		if p.SpeakerID != "" && p.Name != "" {
			names[p.SpeakerID] = p.Name
		}
	}
	return names
}

// joinParticipants renders a semicolon-separated participant list.
func joinParticipants(parties []gong.Party) string {
	parts := make([]string, 0, len(parties))
	for _, p := range parties {
		name := p.Name
		if name == "" {
			name = p.EmailAddress
		}
		if name == "" {
			continue
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, "; ")
}

// formatOffset renders a millisecond offset as mm:ss.
func formatOffset(ms int64) string {
	secs := ms / 1000
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
