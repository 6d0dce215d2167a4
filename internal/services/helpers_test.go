package services

import (
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/applytrack/applytrack/internal/database"
	"github.com/applytrack/applytrack/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBCounter atomic.Int64

// newTestDB opens a fresh in-memory sqlite database with the full schema.
// Each call gets its own named memory database so tests never share state.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", testDBCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

// engine bundles the fully wired core for tests.
type engine struct {
	db         *gorm.DB
	normalizer *Normalizer
	lifecycle  *Lifecycle
	resolver   *Resolver
	sync       *SyncService
	apps       *ApplicationService
	stats      *StatsService
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	db := newTestDB(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	normalizer := NewNormalizer()
	lifecycle := NewLifecycle(db)
	resolver := NewResolver(db, lifecycle)
	return &engine{
		db:         db,
		normalizer: normalizer,
		lifecycle:  lifecycle,
		resolver:   resolver,
		sync:       NewSyncService(normalizer, resolver, log),
		apps:       NewApplicationService(db, normalizer, resolver, lifecycle),
		stats:      NewStatsService(db),
	}
}

// seedApp inserts an application row directly, bypassing the resolver, for
// tests that need precise preexisting state.
func (e *engine) seedApp(t *testing.T, ownerID, company, role string, status models.Status, date time.Time, source models.Source) *models.Application {
	t.Helper()
	app := &models.Application{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Company:     company,
		Role:        role,
		CompanyNorm: normalizeName(company),
		RoleNorm:    normalizeName(role),
		Status:      status,
		DateApplied: date,
		Source:      source,
		DedupKey:    models.DedupKeyFor(ownerID, normalizeName(company), normalizeName(role), date),
	}
	require.NoError(t, e.db.Create(app).Error)
	return app
}

func (e *engine) countApps(t *testing.T, ownerID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.Application{}).Where("owner_id = ?", ownerID).Count(&n).Error)
	return n
}

func (e *engine) reload(t *testing.T, id string) *models.Application {
	t.Helper()
	var app models.Application
	require.NoError(t, e.db.First(&app, "id = ?", id).Error)
	return &app
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
