package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/applytrack/applytrack/internal/dtos"
	"github.com/applytrack/applytrack/internal/models"
	"gorm.io/gorm"
)

// ApplicationService is the direct CRUD surface for manual entry and edits.
// Creates route through the Resolver so a manually re-entered application
// still lands on its existing row; edits go through the Lifecycle so the
// calendar side effects fire.
type ApplicationService struct {
	db         *gorm.DB
	normalizer *Normalizer
	resolver   *Resolver
	lifecycle  *Lifecycle
}

func NewApplicationService(db *gorm.DB, normalizer *Normalizer, resolver *Resolver, lifecycle *Lifecycle) *ApplicationService {
	return &ApplicationService{db: db, normalizer: normalizer, resolver: resolver, lifecycle: lifecycle}
}

// Create ingests a manual form submission.
func (s *ApplicationService) Create(ctx context.Context, ownerID string, req dtos.CreateApplicationRequest) (*models.Application, error) {
	draft, err := s.normalizer.Normalize(models.SourceManual, dtos.SyncItem{
		Company:     req.Company,
		Role:        req.Role,
		Status:      req.Status,
		DateApplied: req.DateApplied,
		JobLink:     req.JobLink,
	})
	if err != nil {
		return nil, err
	}

	app, _, err := s.resolver.Apply(ctx, ownerID, draft)
	if err != nil {
		return nil, err
	}
	return app, nil
}

// Get returns one application scoped to its owner.
func (s *ApplicationService) Get(ctx context.Context, ownerID, id string) (*models.Application, error) {
	var app models.Application
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&app).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	return &app, nil
}

// List returns the owner's applications, most recent first.
func (s *ApplicationService) List(ctx context.Context, ownerID string) ([]models.Application, error) {
	var apps []models.Application
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("date_applied desc").
		Find(&apps).Error
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

// Update patches fields on an owned application. The user is authoritative:
// status moves in any direction, including backward out of a terminal
// state. Provenance (Source) is never rewritten.
func (s *ApplicationService) Update(ctx context.Context, ownerID, id string, req dtos.UpdateApplicationRequest) (*models.Application, error) {
	app, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if req.Company != nil {
		company := *req.Company
		if normalizeName(company) == "" {
			return nil, validationErr("company", "must not be empty")
		}
		updates["company"] = company
		updates["company_norm"] = normalizeName(company)
	}
	if req.Role != nil {
		role := *req.Role
		if normalizeName(role) == "" {
			return nil, validationErr("role", "must not be empty")
		}
		updates["role"] = role
		updates["role_norm"] = normalizeName(role)
	}
	if req.DateApplied != nil {
		t, err := parseDate(*req.DateApplied)
		if err != nil {
			return nil, err
		}
		updates["date_applied"] = t
	}
	if req.JobLink != nil {
		updates["job_link"] = *req.JobLink
	}
	if req.AIChance != nil {
		// Written by the external scorer; the engine just stores it.
		updates["ai_chance"] = *req.AIChance
	}

	if len(updates) > 0 {
		norm := pick(updates, "company_norm", app.CompanyNorm)
		roleNorm := pick(updates, "role_norm", app.RoleNorm)
		date := app.DateApplied
		if d, ok := updates["date_applied"].(time.Time); ok {
			date = d
		}
		updates["dedup_key"] = dedupKeyAfterChange(ctx, s.db, app,
			models.DedupKeyFor(ownerID, norm, roleNorm, date))

		if err := s.db.WithContext(ctx).Model(app).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update application: %w", err)
		}
	}

	if req.Status != nil {
		status, ok := models.ParseStatus(*req.Status)
		if !ok {
			return nil, validationErr("status", fmt.Sprintf("unknown status %q", *req.Status))
		}
		if err := s.lifecycle.ApplyTransition(ctx, app, status, ActorUserEdit); err != nil {
			return nil, err
		}
	}

	return s.Get(ctx, ownerID, id)
}

// Delete hard-deletes an owned application. Calendar events are independent
// and survive.
func (s *ApplicationService) Delete(ctx context.Context, ownerID, id string) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&models.Application{})
	if result.Error != nil {
		return fmt.Errorf("delete application: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, validationErr("date_applied", fmt.Sprintf("unparsable date %q", s))
}

func pick(updates map[string]any, key, fallback string) string {
	if v, ok := updates[key].(string); ok {
		return v
	}
	return fallback
}
