package gong

import (
	"fmt"
	"time"
)

// Call is one call's metadata as returned by the listing endpoints.
// Calls are immutable once discovered; the authoritative copy is whatever
// the API returned at discovery time.
type Call struct {
	ID          string  `json:"id"`
	URL         string  `json:"url,omitempty"`
	Title       string  `json:"title,omitempty"`
	Started     string  `json:"started,omitempty"`
	Duration    int     `json:"duration,omitempty"` // seconds
	Direction   string  `json:"direction,omitempty"`
	System      string  `json:"system,omitempty"`
	Media       string  `json:"media,omitempty"`
	Language    string  `json:"language,omitempty"`
	WorkspaceID string  `json:"workspaceId,omitempty"`
	Parties     []Party `json:"parties,omitempty"`
}

// StartedTime parses the call's start timestamp.
// Returns the zero time if the field is empty or malformed.
func (c Call) StartedTime() time.Time {
	t, err := time.Parse(time.RFC3339, c.Started)
	if err != nil {
		return time.Time{}
	}
	return t
}

// DurationMinutes converts the call duration from seconds to whole minutes.
func (c Call) DurationMinutes() int {
	return c.Duration / 60
}

// Party is one participant on a call.
type Party struct {
	ID           string `json:"id,omitempty"`
	SpeakerID    string `json:"speakerId,omitempty"`
	Name         string `json:"name,omitempty"`
	EmailAddress string `json:"emailAddress,omitempty"`
	Title        string `json:"title,omitempty"`
	Affiliation  string `json:"affiliation,omitempty"` // "Internal" or "External"
}

// Transcript is the heavy per-call payload, fetched separately from the
// call metadata because the listing endpoints do not include it.
type Transcript struct {
	CallID     string      `json:"callId"`
	Monologues []Monologue `json:"transcript"`
}

// Monologue is one speaker turn within a transcript.
type Monologue struct {
	SpeakerID string     `json:"speakerId"`
	Topic     string     `json:"topic,omitempty"`
	Sentences []Sentence `json:"sentences"`
}

// Sentence is a single utterance with millisecond offsets into the call.
type Sentence struct {
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Text  string `json:"text"`
}

// DateRange bounds a discovery query. Both dates are inclusive calendar
// days; the API itself is queried with [start, end+1day) half-open
// semantics, which FromDateTime/ToDateTime render.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// dateLayout is the calendar-date format accepted by ParseDateRange.
const dateLayout = "2006-01-02"

// ParseDateRange parses start/end dates in YYYY-MM-DD form and validates
// their ordering.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.ParseInLocation(dateLayout, start, time.UTC)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse start date %q: %w", start, err)
	}
	e, err := time.ParseInLocation(dateLayout, end, time.UTC)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse end date %q: %w", end, err)
	}
	r := DateRange{Start: s, End: e}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// Validate checks that the range is well-formed (start <= end).
func (r DateRange) Validate() error {
	if r.Start.After(r.End) {
		return fmt.Errorf("invalid date range: start %s after end %s",
			r.Start.Format(dateLayout), r.End.Format(dateLayout))
	}
	return nil
}

// FromDateTime is the inclusive lower query bound: midnight UTC on the
// start date.
func (r DateRange) FromDateTime() string {
	return r.Start.UTC().Format(dateLayout) + "T00:00:00Z"
}

// ToDateTime is the exclusive upper query bound: midnight UTC on the day
// after the inclusive end date. The API returns calls strictly before this
// instant, so using end-of-day instead would silently drop the last day's
// calls.
func (r DateRange) ToDateTime() string {
	return r.End.UTC().AddDate(0, 0, 1).Format(dateLayout) + "T00:00:00Z"
}
