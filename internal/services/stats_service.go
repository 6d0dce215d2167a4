package services

import (
	"context"
	"fmt"
	"time"

	"github.com/applytrack/applytrack/internal/models"
	"gorm.io/gorm"
)

// Granularity is the trend bucket size.
type Granularity string

const (
	GroupByDay   Granularity = "day"
	GroupByMonth Granularity = "month"
	GroupByYear  Granularity = "year"
)

// defaultWindowBuckets caps the default trend window when the caller gives
// no explicit range.
const defaultWindowBuckets = 12

// recentActivityLimit is the size of the activity feed.
const recentActivityLimit = 10

// StatsQuery selects the aggregation window.
type StatsQuery struct {
	StartDate *time.Time
	EndDate   *time.Time
	GroupBy   Granularity
}

// TrendBucket is one time slot of the trend series, ordered ascending.
type TrendBucket struct {
	Label        string `json:"label"`
	Applications int    `json:"applications"`
}

// StatsResult is the dashboard payload. Growth-rate percentages are left to
// the caller, computed from adjacent trend entries.
type StatsResult struct {
	Total          int64                   `json:"total"`
	StatusCounts   map[models.Status]int64 `json:"status_counts"`
	TrendData      []TrendBucket           `json:"trend_data"`
	RecentActivity []models.Application    `json:"recent_activity"`
}

// StatsService computes on-demand aggregates over the application store.
// Pure reads: safe to call concurrently and repeatedly, deterministic for a
// fixed store snapshot and fixed parameters.
type StatsService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{db: db, now: time.Now}
}

// ComputeStats builds the status funnel, the zero-filled trend series and
// the recent-activity feed for one owner.
func (s *StatsService) ComputeStats(ctx context.Context, ownerID string, q StatsQuery) (StatsResult, error) {
	if q.GroupBy == "" {
		q.GroupBy = GroupByMonth
	}
	ranged := q.StartDate != nil || q.EndDate != nil

	start, end, err := s.resolveWindow(ctx, ownerID, q)
	if err != nil {
		return StatsResult{}, err
	}

	counts, total, err := s.statusCounts(ctx, ownerID, q, ranged)
	if err != nil {
		return StatsResult{}, err
	}

	trend, err := s.trendSeries(ctx, ownerID, start, end, q.GroupBy)
	if err != nil {
		return StatsResult{}, err
	}

	var recent []models.Application
	err = s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("date_applied desc").
		Limit(recentActivityLimit).
		Find(&recent).Error
	if err != nil {
		return StatsResult{}, fmt.Errorf("recent activity: %w", err)
	}

	return StatsResult{
		Total:          total,
		StatusCounts:   counts,
		TrendData:      trend,
		RecentActivity: recent,
	}, nil
}

// resolveWindow picks the trend range. With no explicit range the window
// starts at the owner's earliest application, clamped to the trailing
// defaultWindowBuckets, and ends now.
func (s *StatsService) resolveWindow(ctx context.Context, ownerID string, q StatsQuery) (time.Time, time.Time, error) {
	now := s.now()

	end := now
	if q.EndDate != nil {
		end = *q.EndDate
	}
	if q.StartDate != nil {
		return truncate(*q.StartDate, q.GroupBy), truncate(end, q.GroupBy), nil
	}

	clamped := addBuckets(truncate(end, q.GroupBy), q.GroupBy, -(defaultWindowBuckets - 1))
	start := clamped

	var oldest []models.Application
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("date_applied asc").
		Limit(1).
		Find(&oldest).Error
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("earliest application: %w", err)
	}
	if len(oldest) == 1 {
		if eb := truncate(oldest[0].DateApplied, q.GroupBy); eb.After(clamped) {
			start = eb
		}
	}
	return start, truncate(end, q.GroupBy), nil
}

// statusCounts mirrors the dashboard's two query modes: date-filtered when
// a range is given, all-time otherwise. Every enum value is present, zeros
// included.
func (s *StatsService) statusCounts(ctx context.Context, ownerID string, q StatsQuery, ranged bool) (map[models.Status]int64, int64, error) {
	query := s.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("owner_id = ?", ownerID)
	if ranged {
		if q.StartDate != nil {
			query = query.Where("date_applied >= ?", *q.StartDate)
		}
		if q.EndDate != nil {
			query = query.Where("date_applied <= ?", endOfBucket(*q.EndDate, q.GroupBy))
		}
	}

	var rows []struct {
		Status models.Status
		N      int64
	}
	if err := query.Select("status, count(*) as n").Group("status").Scan(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("status counts: %w", err)
	}

	counts := make(map[models.Status]int64, len(models.AllStatuses()))
	for _, st := range models.AllStatuses() {
		counts[st] = 0
	}
	var total int64
	for _, row := range rows {
		counts[row.Status] = row.N
		total += row.N
	}
	return counts, total, nil
}

// trendSeries returns one bucket per calendar unit between start and end,
// zero-filled so charts render continuous axes.
func (s *StatsService) trendSeries(ctx context.Context, ownerID string, start, end time.Time, g Granularity) ([]TrendBucket, error) {
	var dates []time.Time
	err := s.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("owner_id = ?", ownerID).
		Where("date_applied >= ? AND date_applied <= ?", start, endOfBucket(end, g)).
		Order("date_applied asc").
		Pluck("date_applied", &dates).Error
	if err != nil {
		return nil, fmt.Errorf("trend series: %w", err)
	}

	counts := make(map[string]int, len(dates))
	for _, d := range dates {
		counts[bucketLabel(d, g)]++
	}

	var series []TrendBucket
	for cursor := truncate(start, g); !cursor.After(end); cursor = addBuckets(cursor, g, 1) {
		label := bucketLabel(cursor, g)
		series = append(series, TrendBucket{Label: label, Applications: counts[label]})
	}
	return series, nil
}

func truncate(t time.Time, g Granularity) time.Time {
	switch g {
	case GroupByDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	case GroupByYear:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, t.Location())
	default:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	}
}

func addBuckets(t time.Time, g Granularity, n int) time.Time {
	switch g {
	case GroupByDay:
		return t.AddDate(0, 0, n)
	case GroupByYear:
		return t.AddDate(n, 0, 0)
	default:
		return t.AddDate(0, n, 0)
	}
}

// endOfBucket is the last instant of the bucket containing t, so inclusive
// end dates cover their whole calendar unit.
func endOfBucket(t time.Time, g Granularity) time.Time {
	return addBuckets(truncate(t, g), g, 1).Add(-time.Nanosecond)
}

func bucketLabel(t time.Time, g Granularity) string {
	switch g {
	case GroupByDay:
		return t.Format("2006-01-02")
	case GroupByYear:
		return t.Format("2006")
	default:
		return t.Format("2006-01")
	}
}
