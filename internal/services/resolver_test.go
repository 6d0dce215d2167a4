package services

import (
	"context"
	"testing"
	"time"

	"github.com/applytrack/applytrack/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "user-1"

func draftFor(company, role string, status models.Status, date string, source models.Source) Draft {
	d, err := parseDate(date)
	if err != nil {
		panic(err)
	}
	return Draft{
		Company:     company,
		Role:        role,
		CompanyNorm: normalizeName(company),
		RoleNorm:    normalizeName(role),
		Status:      status,
		DateApplied: d,
		Source:      source,
	}
}

func TestApplyCreatesNewApplication(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	app, outcome, err := e.resolver.Apply(ctx, owner, draftFor("Acme", "SWE", models.StatusApplied, "2025-01-10", models.SourceLinkedIn))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdded, outcome)
	require.NotNil(t, app)
	assert.NotEmpty(t, app.ID)
	assert.NotEmpty(t, app.DedupKey)
	assert.Equal(t, int64(1), e.countApps(t, owner))
}

func TestApplyMatchesWithinWindowAcrossDates(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	existing := e.seedApp(t, owner, "Acme", "SWE", models.StatusApplied, day(2025, 1, 10), models.SourceLinkedIn)

	// 10 days of drift: same application event, higher-confidence source.
	app, outcome, err := e.resolver.Apply(ctx, owner, draftFor("acme", "swe", models.StatusInterview, "2025-01-20", models.SourceEmailSync))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, existing.ID, app.ID)
	assert.Equal(t, int64(1), e.countApps(t, owner))
}

func TestApplyOutsideWindowCreatesSecondRow(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	e.seedApp(t, owner, "Acme", "SWE", models.StatusApplied, day(2025, 1, 10), models.SourceLinkedIn)

	// A reapplication 40 days later is a new application event.
	_, outcome, err := e.resolver.Apply(ctx, owner, draftFor("Acme", "SWE", models.StatusApplied, "2025-02-19", models.SourceLinkedIn))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdded, outcome)
	assert.Equal(t, int64(2), e.countApps(t, owner))
}

func TestApplyScopedPerOwner(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	e.seedApp(t, "user-a", "Acme", "SWE", models.StatusApplied, day(2025, 1, 10), models.SourceManual)

	_, outcome, err := e.resolver.Apply(ctx, "user-b", draftFor("Acme", "SWE", models.StatusApplied, "2025-01-10", models.SourceManual))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdded, outcome)
}

func TestManualPrecedenceSkipsWithoutForwardProgress(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	existing := e.seedApp(t, owner, "Globex", "PM", models.StatusApplied, day(2025, 1, 10), models.SourceManual)
	existing.JobLink = "https://globex.example/jobs/pm"
	require.NoError(t, e.db.Save(existing).Error)

	_, outcome, err := e.resolver.Apply(ctx, owner, draftFor("GLOBEX", "pm", models.StatusApplied, "2025-01-15", models.SourceLinkedIn))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	got := e.reload(t, existing.ID)
	assert.Equal(t, "Globex", got.Company)
	assert.Equal(t, "https://globex.example/jobs/pm", got.JobLink)
	assert.Equal(t, models.StatusApplied, got.Status)
	assert.WithinDuration(t, day(2025, 1, 10), got.DateApplied, time.Second)
}

func TestManualPrecedenceForwardProgressMergesStatusOnly(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	existing := e.seedApp(t, owner, "Globex", "PM", models.StatusApplied, day(2025, 1, 10), models.SourceManual)
	existing.JobLink = "https://globex.example/jobs/pm"
	require.NoError(t, e.db.Save(existing).Error)

	draft := draftFor("globex", "PM", models.StatusInterview, "2025-01-18", models.SourceEmailSync)
	draft.JobLink = "https://tracker.example/other-link"

	_, outcome, err := e.resolver.Apply(ctx, owner, draft)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	got := e.reload(t, existing.ID)
	assert.Equal(t, models.StatusInterview, got.Status)
	assert.WithinDuration(t, day(2025, 1, 18), got.DateApplied, time.Second)
	// Core manual fields stay exactly as the user entered them.
	assert.Equal(t, "Globex", got.Company)
	assert.Equal(t, "https://globex.example/jobs/pm", got.JobLink)
	assert.Equal(t, models.SourceManual, got.Source)
}

func TestManualPrecedenceKeepsEarlierDate(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	existing := e.seedApp(t, owner, "Globex", "PM", models.StatusApplied, day(2025, 1, 10), models.SourceManual)

	// Forward progress, but the draft's date is earlier than the record's.
	_, outcome, err := e.resolver.Apply(ctx, owner, draftFor("Globex", "PM", models.StatusInterview, "2025-01-05", models.SourceEmailSync))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	got := e.reload(t, existing.ID)
	assert.Equal(t, models.StatusInterview, got.Status)
	assert.WithinDuration(t, day(2025, 1, 10), got.DateApplied, time.Second)
}

func TestLowerConfidenceAutomatedDraftSkips(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	existing := e.seedApp(t, owner, "Acme", "SWE", models.StatusInterview, day(2025, 1, 10), models.SourceEmailSync)

	_, outcome, err := e.resolver.Apply(ctx, owner, draftFor("Acme", "SWE", models.StatusApplied, "2025-01-12", models.SourceLinkedIn))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Equal(t, models.StatusInterview, e.reload(t, existing.ID).Status)
}

func TestFullMergeReplacesFieldsButKeepsProvenance(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	existing := e.seedApp(t, owner, "acme corp", "swe", models.StatusViewed, day(2025, 1, 10), models.SourceLinkedIn)

	draft := draftFor("Acme Corp", "SWE", models.StatusApplied, "2025-01-14", models.SourceEmailSync)
	draft.JobLink = "https://acme.example/jobs/1"

	_, outcome, err := e.resolver.Apply(ctx, owner, draft)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	got := e.reload(t, existing.ID)
	assert.Equal(t, "Acme Corp", got.Company)
	assert.Equal(t, "https://acme.example/jobs/1", got.JobLink)
	assert.Equal(t, models.StatusApplied, got.Status)
	assert.WithinDuration(t, day(2025, 1, 14), got.DateApplied, time.Second)
	// Provenance records who created the record, not who last touched it.
	assert.Equal(t, models.SourceLinkedIn, got.Source)
}

func TestFullMergeAbsorbsBackwardStatus(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	existing := e.seedApp(t, owner, "Acme", "SWE", models.StatusInterview, day(2025, 1, 10), models.SourceLinkedIn)

	_, outcome, err := e.resolver.Apply(ctx, owner, draftFor("Acme", "SWE", models.StatusApplied, "2025-01-12", models.SourceLinkedIn))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, models.StatusInterview, e.reload(t, existing.ID).Status)
}

func TestMatchPrefersMostRecentlyUpdated(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	// Dates sit in different dedup-key buckets but both inside the ±14-day
	// match window of the draft.
	older := e.seedApp(t, owner, "Acme", "SWE", models.StatusApplied, day(2024, 12, 30), models.SourceLinkedIn)
	newer := e.seedApp(t, owner, "Acme", "SWE", models.StatusApplied, day(2025, 1, 12), models.SourceLinkedIn)
	require.NoError(t, e.db.Model(newer).Update("job_link", "https://bump.example").Error)

	res, err := e.resolver.Resolve(ctx, owner, draftFor("Acme", "SWE", models.StatusInterview, "2025-01-10", models.SourceLinkedIn))
	require.NoError(t, err)
	require.Equal(t, ActionUpdate, res.Action)
	assert.Equal(t, newer.ID, res.Target.ID)
	assert.NotEqual(t, older.ID, res.Target.ID)
}

func TestCreateConflictDegradesToUpdate(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	draft := draftFor("Acme", "SWE", models.StatusApplied, "2025-01-10", models.SourceLinkedIn)

	// Simulate the concurrent writer that wins the insert race.
	e.seedApp(t, owner, "Acme", "SWE", models.StatusApplied, day(2025, 1, 10), models.SourceLinkedIn)

	existing, err := e.resolver.create(ctx, owner, draft)
	require.ErrorIs(t, err, ErrConflictOnCreate)
	require.NotNil(t, existing)
	assert.Equal(t, int64(1), e.countApps(t, owner))

	// The public path recovers by merging into the existing row.
	_, outcome, err := e.resolver.Apply(ctx, owner, draft)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, int64(1), e.countApps(t, owner))
}

func TestMergeKeepsDedupKeyWhenBucketTaken(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	// Two legitimate applications 20 days apart occupy adjacent dedup-key
	// buckets. A draft dated between them matches both through the ±14-day
	// window, and its own bucket is the older row's.
	older := e.seedApp(t, owner, "Acme", "SWE", models.StatusApplied, day(2025, 1, 2), models.SourceManual)
	newer := e.seedApp(t, owner, "Acme", "SWE", models.StatusApplied, day(2025, 1, 22), models.SourceManual)
	require.NoError(t, e.db.Model(newer).Update("job_link", "https://bump.example").Error)
	require.NotEqual(t, older.DedupKey, newer.DedupKey)

	app, outcome, err := e.resolver.Apply(ctx, owner, draftFor("Acme", "SWE", models.StatusInterview, "2025-01-12", models.SourceManual))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, newer.ID, app.ID)

	// The merge keeps the row's own key instead of colliding with the
	// older row's bucket.
	got := e.reload(t, newer.ID)
	assert.Equal(t, newer.DedupKey, got.DedupKey)
	assert.WithinDuration(t, day(2025, 1, 12), got.DateApplied, time.Second)
	assert.Equal(t, models.StatusInterview, got.Status)
	assert.Equal(t, int64(2), e.countApps(t, owner))
}

func TestRestrictedMergeKeepsDedupKeyWhenBucketTaken(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	e.seedApp(t, owner, "Acme", "SWE", models.StatusApplied, day(2025, 1, 28), models.SourceManual)
	target := e.seedApp(t, owner, "Acme", "SWE", models.StatusApplied, day(2025, 1, 10), models.SourceManual)
	require.NoError(t, e.db.Model(target).Update("job_link", "https://bump.example").Error)

	// Low-confidence forward progress with a later date whose bucket is
	// already held by the other row.
	app, outcome, err := e.resolver.Apply(ctx, owner, draftFor("Acme", "SWE", models.StatusInterview, "2025-01-20", models.SourceLinkedIn))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, target.ID, app.ID)

	got := e.reload(t, target.ID)
	assert.Equal(t, target.DedupKey, got.DedupKey)
	assert.Equal(t, models.StatusInterview, got.Status)
	assert.Equal(t, int64(2), e.countApps(t, owner))
}
