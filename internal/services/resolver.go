package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/applytrack/applytrack/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// matchWindow is the dedup tolerance around DateApplied. Scrape timestamps
// drift from the true applied date, so two records for the same company and
// role within this window are treated as the same application event.
const matchWindow = 14 * 24 * time.Hour

// Action is the resolver's decision for a draft.
type Action int

const (
	ActionCreate Action = iota
	ActionUpdate
	ActionSkip
)

// Outcome is what actually happened once the decision was applied.
type Outcome int

const (
	OutcomeAdded Outcome = iota
	OutcomeUpdated
	OutcomeSkipped
)

// Resolution is the decision for one draft. Target is the matched row for
// Update and Skip.
type Resolution struct {
	Action Action
	Target *models.Application
}

// Resolver decides whether a draft is a new application or a re-sighting of
// an existing one, and applies the confidence-ranked merge policy. All row
// mutation flows through here (and the Lifecycle) so the dedup and
// transition invariants hold.
type Resolver struct {
	db        *gorm.DB
	lifecycle *Lifecycle
}

func NewResolver(db *gorm.DB, lifecycle *Lifecycle) *Resolver {
	return &Resolver{db: db, lifecycle: lifecycle}
}

// Resolve finds the best matching existing application for the draft:
// same owner, normalized company and role equality, and DateApplied within
// the match window. Most recently updated wins, highest id breaks ties.
func (r *Resolver) Resolve(ctx context.Context, ownerID string, d Draft) (Resolution, error) {
	target, err := r.findMatch(ctx, ownerID, d)
	if err != nil {
		return Resolution{}, err
	}
	if target == nil {
		return Resolution{Action: ActionCreate}, nil
	}

	// A low-confidence draft never clobbers a higher-confidence record
	// unless it reports forward progress on the same lead.
	if d.Source.Confidence() < target.Source.Confidence() {
		if d.Status.Rank() > target.Status.Rank() {
			return Resolution{Action: ActionUpdate, Target: target}, nil
		}
		return Resolution{Action: ActionSkip, Target: target}, nil
	}
	return Resolution{Action: ActionUpdate, Target: target}, nil
}

// Apply resolves the draft and persists the decision. The returned
// application is the created or updated row (nil when skipped).
func (r *Resolver) Apply(ctx context.Context, ownerID string, d Draft) (*models.Application, Outcome, error) {
	res, err := r.Resolve(ctx, ownerID, d)
	if err != nil {
		return nil, OutcomeSkipped, err
	}

	switch res.Action {
	case ActionCreate:
		app, err := r.create(ctx, ownerID, d)
		if errors.Is(err, ErrConflictOnCreate) {
			// A concurrent sync won the insert race. The row exists now;
			// retry as a merge against it.
			return r.merge(ctx, app, d)
		}
		if err != nil {
			return nil, OutcomeSkipped, err
		}
		return app, OutcomeAdded, nil
	case ActionUpdate:
		return r.merge(ctx, res.Target, d)
	default:
		return res.Target, OutcomeSkipped, nil
	}
}

func (r *Resolver) findMatch(ctx context.Context, ownerID string, d Draft) (*models.Application, error) {
	var matches []models.Application
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND company_norm = ? AND role_norm = ?", ownerID, d.CompanyNorm, d.RoleNorm).
		Where("date_applied BETWEEN ? AND ?", d.DateApplied.Add(-matchWindow), d.DateApplied.Add(matchWindow)).
		Order("updated_at desc, id desc").
		Find(&matches).Error
	if err != nil {
		return nil, fmt.Errorf("find match: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

// create inserts a new row guarded by the owner-scoped dedup key. When a
// concurrent writer already inserted the same draft, the insert degrades to
// a no-op and ErrConflictOnCreate is returned along with the existing row.
func (r *Resolver) create(ctx context.Context, ownerID string, d Draft) (*models.Application, error) {
	app := models.Application{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Company:     d.Company,
		Role:        d.Role,
		CompanyNorm: d.CompanyNorm,
		RoleNorm:    d.RoleNorm,
		Status:      d.Status,
		DateApplied: d.DateApplied,
		Source:      d.Source,
		JobLink:     d.JobLink,
		DedupKey:    models.DedupKeyFor(ownerID, d.CompanyNorm, d.RoleNorm, d.DateApplied),
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedup_key"}},
			DoNothing: true,
		}).
		Create(&app)
	if result.Error != nil {
		return nil, fmt.Errorf("create application: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var existing models.Application
		err := r.db.WithContext(ctx).
			Where("dedup_key = ?", app.DedupKey).
			First(&existing).Error
		if err != nil {
			return nil, fmt.Errorf("fetch conflicting application: %w", err)
		}
		return &existing, ErrConflictOnCreate
	}

	if err := r.lifecycle.EmitForNewApplication(ctx, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// merge applies the draft onto an existing row under the confidence policy.
func (r *Resolver) merge(ctx context.Context, target *models.Application, d Draft) (*models.Application, Outcome, error) {
	if d.Source.Confidence() < target.Source.Confidence() {
		return r.restrictedMerge(ctx, target, d)
	}
	return r.fullMerge(ctx, target, d)
}

// restrictedMerge is the manual-precedence path: only status (forward
// progress) and a later DateApplied may change. Company casing, job link
// and everything else the user entered stay untouched.
func (r *Resolver) restrictedMerge(ctx context.Context, target *models.Application, d Draft) (*models.Application, Outcome, error) {
	if d.Status.Rank() <= target.Status.Rank() {
		return target, OutcomeSkipped, nil
	}

	if err := r.lifecycle.ApplyTransition(ctx, target, d.Status, ActorAutomatedMerge); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return target, OutcomeSkipped, nil
		}
		return nil, OutcomeSkipped, err
	}

	if d.DateApplied.After(target.DateApplied) {
		key := dedupKeyAfterChange(ctx, r.db, target,
			models.DedupKeyFor(target.OwnerID, target.CompanyNorm, target.RoleNorm, d.DateApplied))
		updates := map[string]any{
			"date_applied": d.DateApplied,
			"dedup_key":    key,
		}
		if err := r.db.WithContext(ctx).Model(target).Updates(updates).Error; err != nil {
			return nil, OutcomeSkipped, fmt.Errorf("merge date: %w", err)
		}
		target.DateApplied = d.DateApplied
		target.DedupKey = key
	}
	return target, OutcomeUpdated, nil
}

// fullMerge replaces every field except ID, OwnerID, CreatedAt and Source
// provenance. The status change still goes through the lifecycle gate; a
// backward automated status is absorbed while the other fields update.
func (r *Resolver) fullMerge(ctx context.Context, target *models.Application, d Draft) (*models.Application, Outcome, error) {
	key := dedupKeyAfterChange(ctx, r.db, target,
		models.DedupKeyFor(target.OwnerID, d.CompanyNorm, d.RoleNorm, d.DateApplied))
	updates := map[string]any{
		"company":      d.Company,
		"role":         d.Role,
		"company_norm": d.CompanyNorm,
		"role_norm":    d.RoleNorm,
		"date_applied": d.DateApplied,
		"job_link":     d.JobLink,
		"dedup_key":    key,
	}
	if err := r.db.WithContext(ctx).Model(target).Updates(updates).Error; err != nil {
		return nil, OutcomeSkipped, fmt.Errorf("merge fields: %w", err)
	}
	target.Company = d.Company
	target.Role = d.Role
	target.CompanyNorm = d.CompanyNorm
	target.RoleNorm = d.RoleNorm
	target.DateApplied = d.DateApplied
	target.JobLink = d.JobLink
	target.DedupKey = key

	actor := ActorAutomatedMerge
	if d.Source == models.SourceManual {
		actor = ActorUserEdit
	}
	if err := r.lifecycle.ApplyTransition(ctx, target, d.Status, actor); err != nil {
		if !errors.Is(err, ErrInvalidTransition) {
			return nil, OutcomeSkipped, err
		}
	}
	return target, OutcomeUpdated, nil
}

// dedupKeyAfterChange recomputes a row's dedup key after its identity fields
// changed. The key only has to stop concurrent identical creates; two
// legitimate rows 15-28 days apart sit in adjacent buckets, and a merge date
// between them can land the recomputed key on the neighbour's bucket. When
// the new key is already held by another row, the current key is kept so the
// update never trips the unique index.
func dedupKeyAfterChange(ctx context.Context, db *gorm.DB, app *models.Application, newKey string) string {
	if newKey == app.DedupKey {
		return app.DedupKey
	}
	var taken int64
	err := db.WithContext(ctx).Model(&models.Application{}).
		Where("dedup_key = ? AND id <> ?", newKey, app.ID).
		Count(&taken).Error
	if err != nil || taken > 0 {
		return app.DedupKey
	}
	return newKey
}
