package models

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of an application. Hiring and Viewed are
// leads (a discovered opportunity, not yet a confirmed application).
type Status string

const (
	StatusApplied   Status = "Applied"
	StatusInterview Status = "Interview"
	StatusOffer     Status = "Offer"
	StatusRejected  Status = "Rejected"
	StatusHiring    Status = "Hiring"
	StatusViewed    Status = "Viewed"
)

// AllStatuses lists every valid status, in funnel order.
func AllStatuses() []Status {
	return []Status{StatusHiring, StatusViewed, StatusApplied, StatusInterview, StatusOffer, StatusRejected}
}

// ParseStatus resolves a free-text status (case-insensitive) to the enum.
func ParseStatus(s string) (Status, bool) {
	for _, st := range AllStatuses() {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, true
		}
	}
	return "", false
}

func (s Status) Valid() bool {
	_, ok := ParseStatus(string(s))
	return ok
}

// Rank orders statuses by forward progress. Automated merges may only move
// an application to an equal or higher rank.
func (s Status) Rank() int {
	switch s {
	case StatusHiring, StatusViewed:
		return 0
	case StatusApplied:
		return 1
	case StatusInterview:
		return 2
	case StatusOffer, StatusRejected:
		return 3
	}
	return -1
}

// Source records which channel created a record. Provenance is never
// overwritten by a later merge.
type Source string

const (
	SourceManual    Source = "manual"
	SourceLinkedIn  Source = "linkedin_extension"
	SourceEmailSync Source = "email_sync"
	SourceAutoApply Source = "auto_application"
)

func ParseSource(s string) (Source, bool) {
	switch Source(strings.TrimSpace(s)) {
	case SourceManual:
		return SourceManual, true
	case SourceLinkedIn:
		return SourceLinkedIn, true
	case SourceEmailSync:
		return SourceEmailSync, true
	case SourceAutoApply:
		return SourceAutoApply, true
	}
	return "", false
}

// Confidence ranks sources for merge precedence. A user-entered record
// always wins over automated ones.
func (s Source) Confidence() int {
	switch s {
	case SourceManual:
		return 3
	case SourceEmailSync:
		return 2
	case SourceLinkedIn, SourceAutoApply:
		return 1
	}
	return 0
}

// Application is one tracked job application, owned by a single user.
type Application struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OwnerID string `gorm:"index:idx_owner_company_role,priority:1;not null" json:"owner_id"`

	// Company and Role keep the casing the user saw; CompanyNorm and
	// RoleNorm hold the trimmed, lower-cased forms used for dedup.
	Company     string `gorm:"not null" json:"company"`
	Role        string `gorm:"not null" json:"role"`
	CompanyNorm string `gorm:"index:idx_owner_company_role,priority:2;not null" json:"-"`
	RoleNorm    string `gorm:"index:idx_owner_company_role,priority:3;not null" json:"-"`

	Status      Status    `gorm:"size:16;default:'Applied'" json:"status"`
	DateApplied time.Time `gorm:"index" json:"date_applied"`
	Source      Source    `gorm:"size:32" json:"source"`
	AIChance    *int      `json:"ai_chance,omitempty"`
	JobLink     string    `json:"job_link"`

	// DedupKey guards the concurrent duplicate-create race: two syncs
	// inserting the same draft collide here and the loser falls back to
	// an update. The key buckets DateApplied into 14-day windows.
	DedupKey string `gorm:"uniqueIndex;size:512;not null" json:"-"`
}

// dedupBucketSeconds is the width of one DedupKey date bucket.
const dedupBucketSeconds = 14 * 24 * 60 * 60

// DedupKeyFor builds the owner-scoped uniqueness key for a draft.
func DedupKeyFor(ownerID, companyNorm, roleNorm string, dateApplied time.Time) string {
	bucket := dateApplied.Unix() / dedupBucketSeconds
	return fmt.Sprintf("%s|%s|%s|%d", ownerID, companyNorm, roleNorm, bucket)
}

// EventType classifies a calendar entry.
type EventType string

const (
	EventMeeting   EventType = "meeting"
	EventInterview EventType = "interview"
	EventRemark    EventType = "remark"
)

// CalendarEvent is derived from status transitions (or created manually by
// the user). It references an application loosely: deleting the application
// leaves the event in place.
type CalendarEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	OwnerID     string    `gorm:"index;not null" json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	EventDate   time.Time `gorm:"index" json:"event_date"`
	EventType   EventType `gorm:"size:16" json:"event_type"`
	Source      Source    `gorm:"size:32" json:"source"`

	// ApplicationID+Status form the idempotency key: replaying the same
	// transition never produces a second event.
	ApplicationID string `gorm:"uniqueIndex:idx_event_app_status;size:36" json:"application_id"`
	Status        Status `gorm:"uniqueIndex:idx_event_app_status;size:16" json:"status"`
}

// SyncState is the per-owner Gmail incremental-sync bookmark.
type SyncState struct {
	OwnerID       string    `gorm:"primaryKey"`
	LastHistoryID uint64    `json:"last_history_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ProcessedEmail marks a Gmail message as already classified so restarts
// and full-sync fallbacks never process a message twice.
type ProcessedEmail struct {
	ID        string `gorm:"primaryKey"`
	CreatedAt time.Time
}
