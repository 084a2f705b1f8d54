// Package reconcile turns upstream moderator activity into idempotent
// updates of the nomination and reset records, and keeps the roster and
// beatmap metadata in sync.
package reconcile

import (
	"fmt"
	"time"

	"github.com/okian/bnstats/internal/domain/model"
)

// Kind classifies an upstream event.
type Kind int

const (
	// KindNomination is a nomination by UserID.
	KindNomination Kind = iota + 1
	// KindResetReceived is a reset that happened to ModeratorID's nomination.
	KindResetReceived
	// KindResetPerformed is a reset UserID performed on someone else's nomination.
	KindResetPerformed
)

func (k Kind) String() string {
	switch k {
	case KindNomination:
		return "nomination"
	case KindResetReceived:
		return "reset_received"
	case KindResetPerformed:
		return "reset_performed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one raw upstream activity record.
type Event struct {
	Kind         Kind
	ModeratorID  int64 // moderator whose feed reported the event; zero means UserID
	ID           string
	BeatmapsetID int64
	UserID       int64 // nominator, or the user who performed the reset
	ArtistTitle  string
	CreatorID    int64
	CreatorName  string
	Timestamp    time.Time
	Modes        []string // site mode names the event applies to
	Obviousness  *int
	Severity     *int
	ResetType    model.ResetType
	Content      string
	DiscussionID int64
}

func (e Event) moderator() int64 {
	if e.ModeratorID != 0 {
		return e.ModeratorID
	}
	return e.UserID
}

func (e Event) validate() error {
	if e.BeatmapsetID == 0 || e.UserID == 0 {
		return fmt.Errorf("%w: %s without beatmapset or user", ErrInvalidEvent, e.Kind)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: %s on set %d without timestamp", ErrInvalidEvent, e.Kind, e.BeatmapsetID)
	}
	return nil
}

func rating(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// Member is a roster entry as reported by the roster source.
type Member struct {
	ID       int64
	SiteID   string
	Username string
	Modes    []string // site mode names; "none" for NAT members without a mode
	IsBN     bool
	IsNAT    bool
}
