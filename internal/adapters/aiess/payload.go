// Package aiess decodes the event payloads pushed by the aiess feed, over
// the webhook or the message stream.
package aiess

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/bnstats/internal/domain/model"
	"github.com/okian/bnstats/internal/domain/reconcile"
)

// Payload types.
const (
	TypeNominate = "nominate"
	TypeReset    = "reset"
)

var (
	ErrUnknownType = errors.New("unknown payload type")
	ErrMalformed   = errors.New("malformed payload")
)

// Payload is one push from aiess.
type Payload struct {
	Type   string            `json:"type"`
	Events []json.RawMessage `json:"events"`
}

type event struct {
	ID           string    `json:"id"`
	BeatmapsetID int64     `json:"beatmapsetId"`
	UserID       int64     `json:"userId"`
	ArtistTitle  string    `json:"artistTitle"`
	CreatorID    int64     `json:"creatorId"`
	CreatorName  string    `json:"creatorName"`
	Timestamp    timestamp `json:"timestamp"`
	Modes        []string  `json:"modes"`
	Content      string    `json:"content"`
	DiscussionID int64     `json:"discussionId"`
	Obviousness  *int      `json:"obviousness"`
	Severity     *int      `json:"severity"`
	Type         string    `json:"type"`
}

// timestamp accepts RFC 3339 with or without a zone and the plain
// "YYYY-MM-DD hh:mm:ss" form. Zone-less values are taken as UTC.
type timestamp struct{ time.Time }

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

// Decode parses a raw payload into reconciliation events. Nominations
// become KindNomination; resets become KindResetPerformed, so the latest
// nominators before them are linked as affected.
func Decode(body []byte) ([]reconcile.Event, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return p.Decode()
}

// Decode converts the payload's events.
func (p Payload) Decode() ([]reconcile.Event, error) {
	var kind reconcile.Kind
	switch strings.ToLower(p.Type) {
	case TypeNominate:
		kind = reconcile.KindNomination
	case TypeReset:
		kind = reconcile.KindResetPerformed
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, p.Type)
	}

	out := make([]reconcile.Event, 0, len(p.Events))
	for i, raw := range p.Events {
		var e event
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("%w: event %d: %v", ErrMalformed, i, err)
		}
		ev := reconcile.Event{
			Kind:         kind,
			ID:           e.ID,
			BeatmapsetID: e.BeatmapsetID,
			UserID:       e.UserID,
			ArtistTitle:  e.ArtistTitle,
			CreatorID:    e.CreatorID,
			CreatorName:  e.CreatorName,
			Timestamp:    e.Timestamp.Time,
			Modes:        e.Modes,
		}
		if kind == reconcile.KindResetPerformed {
			typ, ok := model.ParseResetType(e.Type)
			if !ok {
				return nil, fmt.Errorf("%w: event %d: reset type %q", ErrMalformed, i, e.Type)
			}
			ev.ResetType = typ
			ev.Obviousness = e.Obviousness
			ev.Severity = e.Severity
			ev.Content = e.Content
			ev.DiscussionID = e.DiscussionID
		}
		out = append(out, ev)
	}
	return out, nil
}
