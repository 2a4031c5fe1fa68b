// Package audit serves the per-pharmacy audit event timeline written by shared.AuditLogger.
package audit

import (
	"encoding/json"
	"time"
)

// TimelineFilters narrows the timeline. From and To are inclusive calendar days.
type TimelineFilters struct {
	PharmacyID string
	From       time.Time
	To         time.Time
	Actor      string
	Entity     string
	Action     string
	Page       int
	PageSize   int
}

// Event is one recorded mutation.
type Event struct {
	ID       int64           `json:"id"`
	At       time.Time       `json:"at"`
	ActorID  string          `json:"actor_id,omitempty"`
	Action   string          `json:"action"`
	Entity   string          `json:"entity"`
	EntityID string          `json:"entity_id"`
	Meta     json.RawMessage `json:"meta,omitempty"`
}

// PagingInfo describes the window returned by Timeline.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result wraps one page of events.
type Result struct {
	Events []Event    `json:"events"`
	Paging PagingInfo `json:"paging"`
}

// Query is what the repository receives: a half-open [From, Until) window.
type Query struct {
	PharmacyID string
	From       time.Time
	Until      time.Time
	Actor      string
	Entity     string
	Action     string
	Limit      int
	Offset     int
}

const (
	defaultPageSize = 20
	maxPageSize     = 50
	// DefaultRange is used when the caller gives no from date.
	DefaultRange = 7 * 24 * time.Hour
	// MaxRange bounds a single timeline query.
	MaxRange = 90 * 24 * time.Hour
)
