package services

import (
	"strings"
	"time"

	"github.com/applytrack/applytrack/internal/dtos"
	"github.com/applytrack/applytrack/internal/models"
)

// clockSkewTolerance is how far into the future a reported dateApplied may
// sit before we clamp it to the ingestion moment.
const clockSkewTolerance = 5 * time.Minute

// dateLayouts are tried in order when parsing inbound date strings.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
}

// Draft is a normalized, not-yet-persisted candidate application. It is the
// only shape downstream components see; nobody past the Normalizer branches
// on raw source payloads.
type Draft struct {
	Company     string
	Role        string
	CompanyNorm string
	RoleNorm    string
	Status      models.Status
	DateApplied time.Time
	Source      models.Source
	JobLink     string
}

// Normalizer converts heterogeneous source payloads into canonical drafts.
type Normalizer struct {
	now func() time.Time
}

func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// Normalize validates and canonicalizes one inbound item. Company and role
// must be non-empty after trimming; everything else has a default.
func (n *Normalizer) Normalize(kind models.Source, item dtos.SyncItem) (Draft, error) {
	company := strings.TrimSpace(item.Company)
	role := strings.TrimSpace(item.Role)
	if company == "" {
		return Draft{}, validationErr("company", "must not be empty")
	}
	if role == "" {
		return Draft{}, validationErr("role", "must not be empty")
	}

	status := models.StatusApplied
	if st, ok := models.ParseStatus(item.Status); ok {
		status = st
	}

	date := n.resolveDate(item)

	return Draft{
		Company:     company,
		Role:        role,
		CompanyNorm: normalizeName(company),
		RoleNorm:    normalizeName(role),
		Status:      status,
		DateApplied: date,
		Source:      kind,
		JobLink:     strings.TrimSpace(item.JobLink),
	}, nil
}

// resolveDate prefers the explicit applied date, falls back to the scrape
// timestamp, then to now. Dates beyond the clock-skew tolerance are clamped
// to the ingestion moment so nothing is ever recorded in the future.
func (n *Normalizer) resolveDate(item dtos.SyncItem) time.Time {
	now := n.now()

	raw := item.DateApplied
	if raw == "" {
		raw = item.Date
	}
	if raw == "" {
		return now
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			if t.After(now.Add(clockSkewTolerance)) {
				return now
			}
			return t
		}
	}
	// Unparsable timestamps from scrapes are treated as absent.
	return now
}

// normalizeName lower-cases and collapses internal whitespace. Used for
// comparison only; display fields keep their original casing.
func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
