package model

import (
	"fmt"
	"strings"
)

// Mode is an osu! game mode.
type Mode int

const (
	ModeStandard Mode = 0
	ModeTaiko    Mode = 1
	ModeCatch    Mode = 2
	ModeMania    Mode = 3
)

// AllModes lists every game mode in id order.
var AllModes = []Mode{ModeStandard, ModeTaiko, ModeCatch, ModeMania}

// String returns the site name of the mode (osu, taiko, catch, mania).
func (m Mode) String() string {
	switch m {
	case ModeStandard:
		return "osu"
	case ModeTaiko:
		return "taiko"
	case ModeCatch:
		return "catch"
	case ModeMania:
		return "mania"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps a site mode name to a Mode. "fruits" is accepted for catch.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "osu", "standard", "0":
		return ModeStandard, true
	case "taiko", "1":
		return ModeTaiko, true
	case "catch", "fruits", "2":
		return ModeCatch, true
	case "mania", "3":
		return ModeMania, true
	default:
		return 0, false
	}
}

// ParseModes maps site names to modes, dropping unknown names and duplicates.
func ParseModes(names []string) []Mode {
	out := make([]Mode, 0, len(names))
	for _, n := range names {
		m, ok := ParseMode(n)
		if ok && !ContainsMode(out, m) {
			out = append(out, m)
		}
	}
	return out
}

// ContainsMode reports whether m is in modes.
func ContainsMode(modes []Mode, m Mode) bool {
	for _, x := range modes {
		if x == m {
			return true
		}
	}
	return false
}

// IntersectModes returns the modes present in both a and b, in a's order.
func IntersectModes(a, b []Mode) []Mode {
	out := make([]Mode, 0, len(a))
	for _, m := range a {
		if ContainsMode(b, m) && !ContainsMode(out, m) {
			out = append(out, m)
		}
	}
	return out
}

// MapStatus is the upstream ranking status of a beatmap.
type MapStatus int

const (
	StatusGraveyard MapStatus = -2
	StatusWIP       MapStatus = -1
	StatusPending   MapStatus = 0
	StatusRanked    MapStatus = 1
	StatusApproved  MapStatus = 2
	StatusQualified MapStatus = 3
	StatusLoved     MapStatus = 4
)

// Validated reports whether the status is final (Ranked or Approved).
// Validated maps are never refetched and score the ranked bonus.
func (s MapStatus) Validated() bool {
	return s == StatusRanked || s == StatusApproved
}

func (s MapStatus) String() string {
	switch s {
	case StatusGraveyard:
		return "Graveyard"
	case StatusWIP:
		return "WIP"
	case StatusPending:
		return "Pending"
	case StatusRanked:
		return "Ranked"
	case StatusApproved:
		return "Approved"
	case StatusQualified:
		return "Qualified"
	case StatusLoved:
		return "Loved"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Genre is the upstream genre id of a beatmapset.
type Genre int

const (
	GenreAny         Genre = 0
	GenreUnspecified Genre = 1
	GenreVideoGame   Genre = 2
	GenreAnime       Genre = 3
	GenreRock        Genre = 4
	GenrePop         Genre = 5
	GenreOther       Genre = 6
	GenreNovelty     Genre = 7
	GenreHipHop      Genre = 9
	GenreElectronic  Genre = 10
	GenreMetal       Genre = 11
	GenreClassical   Genre = 12
	GenreFolk        Genre = 13
	GenreJazz        Genre = 14
)

var genreNames = map[Genre]string{
	GenreAny:         "Any",
	GenreUnspecified: "Unspecified",
	GenreVideoGame:   "Video Game",
	GenreAnime:       "Anime",
	GenreRock:        "Rock",
	GenrePop:         "Pop",
	GenreOther:       "Other",
	GenreNovelty:     "Novelty",
	GenreHipHop:      "Hip Hop",
	GenreElectronic:  "Electronic",
	GenreMetal:       "Metal",
	GenreClassical:   "Classical",
	GenreFolk:        "Folk",
	GenreJazz:        "Jazz",
}

func (g Genre) String() string {
	if n, ok := genreNames[g]; ok {
		return n
	}
	return fmt.Sprintf("genre(%d)", int(g))
}

// Language is the upstream language id of a beatmapset.
type Language int

const (
	LanguageAny          Language = 0
	LanguageUnspecified  Language = 1
	LanguageEnglish      Language = 2
	LanguageJapanese     Language = 3
	LanguageChinese      Language = 4
	LanguageInstrumental Language = 5
	LanguageKorean       Language = 6
	LanguageFrench       Language = 7
	LanguageGerman       Language = 8
	LanguageSwedish      Language = 9
	LanguageSpanish      Language = 10
	LanguageItalian      Language = 11
	LanguageRussian      Language = 12
	LanguagePolish       Language = 13
	LanguageOther        Language = 14
)

var languageNames = map[Language]string{
	LanguageAny:          "Any",
	LanguageUnspecified:  "Unspecified",
	LanguageEnglish:      "English",
	LanguageJapanese:     "Japanese",
	LanguageChinese:      "Chinese",
	LanguageInstrumental: "Instrumental",
	LanguageKorean:       "Korean",
	LanguageFrench:       "French",
	LanguageGerman:       "German",
	LanguageSwedish:      "Swedish",
	LanguageSpanish:      "Spanish",
	LanguageItalian:      "Italian",
	LanguageRussian:      "Russian",
	LanguagePolish:       "Polish",
	LanguageOther:        "Other",
}

func (l Language) String() string {
	if n, ok := languageNames[l]; ok {
		return n
	}
	return fmt.Sprintf("language(%d)", int(l))
}

// Difficulty is the named tier of a single difficulty, derived from star rating.
type Difficulty int

const (
	DifficultyEasy Difficulty = iota
	DifficultyNormal
	DifficultyHard
	DifficultyInsane
	DifficultyExtra
	DifficultyExtreme
)

// DifficultyFromStars buckets a star rating into its tier.
func DifficultyFromStars(sr float64) Difficulty {
	switch {
	case sr >= 6.5:
		return DifficultyExtreme
	case sr >= 5.3:
		return DifficultyExtra
	case sr >= 4.0:
		return DifficultyInsane
	case sr >= 2.7:
		return DifficultyHard
	case sr >= 2.0:
		return DifficultyNormal
	default:
		return DifficultyEasy
	}
}

func (d Difficulty) String() string {
	switch d {
	case DifficultyEasy:
		return "Easy"
	case DifficultyNormal:
		return "Normal"
	case DifficultyHard:
		return "Hard"
	case DifficultyInsane:
		return "Insane"
	case DifficultyExtra:
		return "Extra"
	case DifficultyExtreme:
		return "Extreme"
	default:
		return fmt.Sprintf("difficulty(%d)", int(d))
	}
}

// ResetType distinguishes disqualifications from pops.
type ResetType string

const (
	ResetDisqualify ResetType = "disqualify"
	ResetPop        ResetType = "pop"
)

// LinkCount is how many prior nominators a reset of this type penalises.
func (t ResetType) LinkCount() int {
	if t == ResetDisqualify {
		return 2
	}
	return 1
}

// ParseResetType accepts the upstream spellings of reset types.
func ParseResetType(s string) (ResetType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disqualify", "disqualified", "disqualification":
		return ResetDisqualify, true
	case "pop", "popped", "nomination_reset", "reset":
		return ResetPop, true
	default:
		return "", false
	}
}

// CalculatorName identifies a scoring strategy.
type CalculatorName string

const (
	CalculatorNaxess CalculatorName = "naxess"
	CalculatorRen    CalculatorName = "ren"
)
