package services

import (
	"context"
	"fmt"
	"time"

	"github.com/applytrack/applytrack/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Actor identifies who is asking for a status change. Users are
// authoritative over their own data; automated merges are forward-only.
type Actor int

const (
	ActorUserEdit Actor = iota
	ActorAutomatedMerge
)

// Lifecycle validates and applies status transitions, and derives calendar
// events when a transition implies a real-world occurrence.
type Lifecycle struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLifecycle(db *gorm.DB) *Lifecycle {
	return &Lifecycle{db: db, now: time.Now}
}

// ApplyTransition moves app to newStatus, persisting the change and
// mutating app in place. Automated merges may only move forward in rank;
// a backward automated move fails with ErrInvalidTransition and leaves the
// stored status untouched.
func (l *Lifecycle) ApplyTransition(ctx context.Context, app *models.Application, newStatus models.Status, actor Actor) error {
	if !newStatus.Valid() {
		return validationErr("status", fmt.Sprintf("unknown status %q", newStatus))
	}
	if actor == ActorAutomatedMerge && newStatus.Rank() < app.Status.Rank() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, app.Status, newStatus)
	}

	if newStatus != app.Status {
		if err := l.db.WithContext(ctx).Model(app).Update("status", newStatus).Error; err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		app.Status = newStatus
	}

	return l.emitForStatus(ctx, app)
}

// EmitForNewApplication derives calendar events for a freshly created row,
// so an application ingested directly at Interview or Offer still shows up
// in the calendar.
func (l *Lifecycle) EmitForNewApplication(ctx context.Context, app *models.Application) error {
	return l.emitForStatus(ctx, app)
}

// emitForStatus creates the derived calendar event for Interview and Offer
// states. Idempotent per (applicationID, status): replays hit the unique
// index and are dropped.
func (l *Lifecycle) emitForStatus(ctx context.Context, app *models.Application) error {
	var eventType models.EventType
	var title string
	switch app.Status {
	case models.StatusInterview:
		eventType = models.EventInterview
		title = fmt.Sprintf("Interview: %s - %s", app.Company, app.Role)
	case models.StatusOffer:
		eventType = models.EventRemark
		title = fmt.Sprintf("Offer received: %s - %s", app.Company, app.Role)
	default:
		return nil
	}

	eventDate := app.DateApplied
	if now := l.now(); now.After(eventDate) {
		eventDate = now
	}

	event := models.CalendarEvent{
		OwnerID:       app.OwnerID,
		Title:         title,
		Description:   fmt.Sprintf("Status of %s at %s changed to %s", app.Role, app.Company, app.Status),
		EventDate:     eventDate,
		EventType:     eventType,
		Source:        models.SourceAutoApply,
		ApplicationID: app.ID,
		Status:        app.Status,
	}

	err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "application_id"}, {Name: "status"}},
			DoNothing: true,
		}).
		Create(&event).Error
	if err != nil {
		return fmt.Errorf("emit calendar event: %w", err)
	}
	return nil
}

// ListEvents returns the owner's calendar events in chronological order.
func (l *Lifecycle) ListEvents(ctx context.Context, ownerID string) ([]models.CalendarEvent, error) {
	var events []models.CalendarEvent
	err := l.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("event_date asc").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	return events, nil
}
