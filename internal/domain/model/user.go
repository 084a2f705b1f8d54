package model

import "time"

// User is a member of the moderator roster.
type User struct {
	ID          int64
	Username    string
	SiteID      string // BN site document id, needed by the activity endpoint
	Modes       []Mode
	IsBN        bool
	IsNAT       bool
	LastUpdated time.Time
	Favor       Favor
}

// Favor is the cached preference profile derived from recent nominations.
type Favor struct {
	GenreFavor   []string
	LangFavor    []string
	TopDiffFavor []string
	AvgLength    int
	AvgDiffs     int
	LengthFavor  string
	SizeFavor    string
}
