package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/applytrack/applytrack/internal/dtos"
	"github.com/applytrack/applytrack/internal/models"
)

// SyncReport is the aggregate result of one batch.
type SyncReport struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Updated int `json:"updated"`
}

// SyncService drives a batch of raw items through Normalizer -> Resolver ->
// Store. Items are processed in input order; a later duplicate in the same
// batch sees the row an earlier item created.
type SyncService struct {
	normalizer *Normalizer
	resolver   *Resolver
	log        *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewSyncService(normalizer *Normalizer, resolver *Resolver, log *slog.Logger) *SyncService {
	return &SyncService{
		normalizer: normalizer,
		resolver:   resolver,
		log:        log,
		inFlight:   make(map[string]struct{}),
	}
}

// RunSync ingests one batch for one owner. Per-item failures (validation,
// backward automated transitions) are absorbed into the skipped count; only
// structural store failures abort the call. Already-committed items stay
// committed when the caller's context expires mid-batch.
func (s *SyncService) RunSync(ctx context.Context, ownerID string, kind models.Source, items []dtos.SyncItem) (SyncReport, error) {
	if _, ok := models.ParseSource(string(kind)); !ok {
		return SyncReport{}, validationErr("source", "unknown source kind")
	}

	if !s.acquire(ownerID) {
		return SyncReport{}, ErrSyncInProgress
	}
	defer s.release(ownerID)

	var report SyncReport
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			// Caller gave up; remaining items are abandoned, committed
			// ones stay.
			return report, err
		}

		draft, err := s.normalizer.Normalize(kind, item)
		if err != nil {
			if IsValidationError(err) {
				s.log.Debug("sync item skipped", "owner", ownerID, "reason", err)
				report.Skipped++
				continue
			}
			return report, err
		}

		_, outcome, err := s.resolver.Apply(ctx, ownerID, draft)
		if err != nil {
			return report, err
		}
		switch outcome {
		case OutcomeAdded:
			report.Added++
		case OutcomeUpdated:
			report.Updated++
		default:
			report.Skipped++
		}
	}

	s.log.Info("sync finished",
		"owner", ownerID,
		"source", kind,
		"added", report.Added,
		"updated", report.Updated,
		"skipped", report.Skipped,
	)
	return report, nil
}

// acquire takes the per-owner in-flight slot. Debounces a double-clicked
// sync without serializing different owners behind each other.
func (s *SyncService) acquire(ownerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[ownerID]; busy {
		return false
	}
	s.inFlight[ownerID] = struct{}{}
	return true
}

func (s *SyncService) release(ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, ownerID)
}
