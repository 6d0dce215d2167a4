package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/applytrack/applytrack/internal/dtos"
	"github.com/applytrack/applytrack/internal/models"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"gorm.io/gorm"
)

// EmailService polls Gmail and feeds classified messages into the sync
// pipeline as email_sync batches. It is an adapter around an external
// collaborator: everything it produces still goes through the Normalizer
// and Resolver like any other source.
type EmailService struct {
	db          *gorm.DB
	llm         *LLMService
	gmailClient *gmail.Service
	syncService *SyncService
	log         *slog.Logger

	ownerID      string
	pollInterval time.Duration
}

func NewEmailService(db *gorm.DB, llm *LLMService, gmailClient *gmail.Service, syncService *SyncService, log *slog.Logger, ownerID string, pollInterval time.Duration) *EmailService {
	return &EmailService{
		db:           db,
		llm:          llm,
		gmailClient:  gmailClient,
		syncService:  syncService,
		log:          log,
		ownerID:      ownerID,
		pollInterval: pollInterval,
	}
}

// StartWatcher begins background polling. Degrades to disabled when no
// Gmail client is configured. The goroutines stop when ctx is cancelled.
func (s *EmailService) StartWatcher(ctx context.Context) {
	if s.gmailClient == nil || s.llm == nil {
		s.log.Warn("email watcher disabled: no gmail client or llm configured")
		return
	}

	go s.SyncEmails(ctx)

	ticker := time.NewTicker(s.pollInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SyncEmails(ctx)
			}
		}
	}()
}

// SyncEmails runs one poll cycle: pick a strategy (bootstrap full sync or
// incremental from the saved history id), classify new messages, and hand
// the resulting tuples to RunSync.
func (s *EmailService) SyncEmails(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	s.log.Info("email watcher: starting sync cycle", "owner", s.ownerID)

	state, err := s.loadState(ctx)
	if err != nil {
		s.log.Error("email watcher: load state", "error", err)
		return
	}

	var messages []*gmail.Message
	var newHistoryID uint64

	if state.LastHistoryID == 0 {
		messages, newHistoryID, err = s.performFullSync(ctx)
	} else {
		messages, newHistoryID, err = s.performIncrementalSync(ctx, state.LastHistoryID)
		if err != nil && isHistoryExpiredError(err) {
			// Google dropped the old history window; start over.
			s.log.Warn("email watcher: history id expired, falling back to full sync")
			messages, newHistoryID, err = s.performFullSync(ctx)
		}
	}
	if err != nil {
		s.log.Error("email watcher: sync failed", "error", err)
		return
	}

	items, seen := s.classifyNew(ctx, messages)
	if !s.ingest(ctx, items, seen) {
		// Nothing was marked processed and the history bookmark stays put,
		// so the next cycle sees the same messages again.
		return
	}

	if newHistoryID > state.LastHistoryID {
		if err := s.saveHistoryID(ctx, newHistoryID); err != nil {
			s.log.Error("email watcher: save history id", "error", err)
		}
	}
}

// classifyNew filters out already-processed messages and classifies the
// rest. It returns the application tuples plus the ids of every message it
// looked at; the ids are only marked processed once the batch is accepted.
func (s *EmailService) classifyNew(ctx context.Context, messages []*gmail.Message) ([]dtos.SyncItem, []string) {
	var items []dtos.SyncItem
	var seen []string
	for _, msg := range messages {
		var count int64
		err := s.db.WithContext(ctx).Model(&models.ProcessedEmail{}).Where("id = ?", msg.Id).Count(&count).Error
		if err != nil {
			s.log.Warn("email watcher: processed lookup failed", "message", msg.Id, "error", err)
			continue
		}
		if count > 0 {
			continue
		}

		headers := parseHeaders(msg)
		item, err := s.llm.ClassifyEmail(ctx, headers["Subject"], headers["From"], getEmailBody(msg))
		if err != nil {
			s.log.Warn("email watcher: classification failed", "message", msg.Id, "error", err)
			continue
		}
		if item != nil {
			items = append(items, *item)
		}
		seen = append(seen, msg.Id)
	}
	return items, seen
}

// ingest hands the classified batch to the sync pipeline. Messages are
// marked processed only after the batch is accepted: a rejected cycle (an
// overlapping sync holds the owner's slot, or the store failed mid-batch)
// leaves them unmarked so the next cycle retries them. The resolver makes
// the retry idempotent.
func (s *EmailService) ingest(ctx context.Context, items []dtos.SyncItem, seen []string) bool {
	if len(items) > 0 {
		report, err := s.syncService.RunSync(ctx, s.ownerID, models.SourceEmailSync, items)
		if errors.Is(err, ErrSyncInProgress) {
			s.log.Warn("email watcher: another sync in flight, retrying next cycle")
			return false
		}
		if err != nil {
			s.log.Error("email watcher: ingest failed", "error", err)
			return false
		}
		s.log.Info("email watcher: ingested",
			"added", report.Added, "updated", report.Updated, "skipped", report.Skipped)
	}

	s.markProcessed(ctx, seen)
	return true
}

func (s *EmailService) markProcessed(ctx context.Context, ids []string) {
	for _, id := range ids {
		if err := s.db.WithContext(ctx).Create(&models.ProcessedEmail{ID: id}).Error; err != nil {
			s.log.Warn("email watcher: mark processed failed", "message", id, "error", err)
		}
	}
}

// performFullSync scans the last 7 days of candidate mail and resets the
// history anchor to the account's current position.
func (s *EmailService) performFullSync(ctx context.Context) ([]*gmail.Message, uint64, error) {
	var resp *gmail.ListMessagesResponse

	q := "subject:(application OR interview OR update OR offer OR rejected OR status) newer_than:7d"

	err := retry(3, time.Second, func() error {
		var e error
		resp, e = s.gmailClient.Users.Messages.List("me").Q(q).MaxResults(50).Context(ctx).Do()
		return e
	})
	if err != nil {
		return nil, 0, err
	}

	profile, err := s.gmailClient.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return nil, 0, err
	}

	return s.expandMessages(ctx, resp.Messages), profile.HistoryId, nil
}

// performIncrementalSync asks Gmail only for what changed since startID.
func (s *EmailService) performIncrementalSync(ctx context.Context, startID uint64) ([]*gmail.Message, uint64, error) {
	var resp *gmail.ListHistoryResponse

	err := retry(3, time.Second, func() error {
		var e error
		call := s.gmailClient.Users.History.List("me").StartHistoryId(startID)
		call.HistoryTypes("messageAdded")
		resp, e = call.Context(ctx).Do()
		return e
	})
	if err != nil {
		return nil, 0, err
	}

	var headers []*gmail.Message
	for _, h := range resp.History {
		for _, added := range h.MessagesAdded {
			if added.Message != nil {
				headers = append(headers, added.Message)
			}
		}
	}

	return s.expandMessages(ctx, headers), resp.HistoryId, nil
}

// expandMessages fetches full bodies for a list of message headers.
func (s *EmailService) expandMessages(ctx context.Context, headers []*gmail.Message) []*gmail.Message {
	var full []*gmail.Message
	for _, h := range headers {
		retry(2, 500*time.Millisecond, func() error {
			msg, err := s.gmailClient.Users.Messages.Get("me", h.Id).Context(ctx).Do()
			if err == nil {
				full = append(full, msg)
			}
			return err
		})
	}
	return full
}

func (s *EmailService) loadState(ctx context.Context) (*models.SyncState, error) {
	var state models.SyncState
	err := s.db.WithContext(ctx).
		Where(models.SyncState{OwnerID: s.ownerID}).
		FirstOrCreate(&state).Error
	if err != nil {
		return nil, fmt.Errorf("load sync state: %w", err)
	}
	return &state, nil
}

func (s *EmailService) saveHistoryID(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).
		Model(&models.SyncState{}).
		Where("owner_id = ?", s.ownerID).
		Update("last_history_id", id).Error
}

// retry runs f with exponential backoff. History-expired errors fail fast
// so the caller can switch to a full sync.
func retry(attempts int, sleep time.Duration, f func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = f()
		if err == nil {
			return nil
		}
		if isHistoryExpiredError(err) {
			return err
		}
		time.Sleep(sleep)
		sleep *= 2
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, err)
}

func isHistoryExpiredError(err error) bool {
	var gErr *googleapi.Error
	return errors.As(err, &gErr) && gErr.Code == 404
}

func parseHeaders(msg *gmail.Message) map[string]string {
	res := make(map[string]string)
	if msg.Payload == nil {
		return res
	}
	for _, h := range msg.Payload.Headers {
		res[h.Name] = h.Value
	}
	return res
}

func getEmailBody(msg *gmail.Message) string {
	if msg.Payload == nil {
		return ""
	}
	if msg.Payload.Body != nil && msg.Payload.Body.Data != "" {
		d, _ := base64.URLEncoding.DecodeString(msg.Payload.Body.Data)
		return string(d)
	}
	for _, mime := range []string{"text/plain", "text/html"} {
		for _, part := range msg.Payload.Parts {
			if part.MimeType == mime && part.Body != nil && part.Body.Data != "" {
				d, _ := base64.URLEncoding.DecodeString(part.Body.Data)
				return string(d)
			}
		}
	}
	return ""
}
