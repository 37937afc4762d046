package database

import (
	"time"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Filter narrows a guideline listing. Zero values mean "no constraint".
type Filter struct {
	Source    string
	Specialty string // case-insensitive substring of any tag
	Year      int    // unknown dates never match
	Limit     int
	Offset    int
}

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}

func (f Filter) offset() int {
	if f.Offset < 0 {
		return 0
	}
	return f.Offset
}

type Stats struct {
	Total    int            `json:"total"`
	Recent   int            `json:"recent"`
	BySource map[string]int `json:"by_source"`
}

// Run is the persisted record of one ingestion cycle.
type Run struct {
	ID               string            `json:"id" bson:"_id"`
	Reason           string            `json:"reason" bson:"reason"`
	Status           string            `json:"status" bson:"status"`
	Succeeded        bool              `json:"succeeded" bson:"succeeded"`
	Aborted          bool              `json:"aborted" bson:"aborted"`
	StartedAt        time.Time         `json:"started_at" bson:"started_at"`
	FinishedAt       time.Time         `json:"finished_at" bson:"finished_at"`
	SourcesAttempted int               `json:"sources_attempted" bson:"sources_attempted"`
	SourcesFailed    int               `json:"sources_failed" bson:"sources_failed"`
	ItemsSeen        int               `json:"items_seen" bson:"items_seen"`
	ItemsNew         int               `json:"items_new" bson:"items_new"`
	ItemsUpdated     int               `json:"items_updated" bson:"items_updated"`
	ItemsRejected    int               `json:"items_rejected" bson:"items_rejected"`
	ItemsFailed      int               `json:"items_failed" bson:"items_failed"`
	ItemsReenriched  int               `json:"items_reenriched" bson:"items_reenriched"`
	Fallbacks        int               `json:"fallbacks" bson:"fallbacks"`
	SourceErrors     map[string]string `json:"source_errors" bson:"source_errors"`
}
