package scoring

import (
	"fmt"

	"github.com/okian/bnstats/internal/domain/model"
)

// ResolveModes decides which modes a nomination counts for. An explicit
// attribution wins; otherwise the moderator's modes are intersected with
// the modes present in the set. A derived attribution matching more than
// one mode is ambiguous.
func ResolveModes(nom model.Nomination, user model.User, set model.BeatmapSet) ([]model.Mode, error) {
	if len(nom.AsModes) > 0 {
		return nom.AsModes, nil
	}
	derived := model.IntersectModes(user.Modes, set.Modes())
	if len(derived) > 1 {
		return nil, fmt.Errorf("%w: set %d matches %v", ErrAmbiguousMode, nom.BeatmapsetID, derived)
	}
	return derived, nil
}

// MapperRepetition counts how often the creator of beatmapsetID was
// nominated in history, excluding the set itself. self counts distinct
// sets nominated by userID; other counts distinct sets nominated by anyone
// else.
func MapperRepetition(history []model.Nomination, userID, beatmapsetID int64) (self, other int) {
	selfSeen := map[int64]struct{}{beatmapsetID: {}}
	otherSeen := map[int64]struct{}{beatmapsetID: {}}
	for _, n := range history {
		seen := otherSeen
		if n.UserID == userID {
			seen = selfSeen
		}
		if _, ok := seen[n.BeatmapsetID]; ok {
			continue
		}
		seen[n.BeatmapsetID] = struct{}{}
		if n.UserID == userID {
			self++
		} else {
			other++
		}
	}
	return self, other
}
