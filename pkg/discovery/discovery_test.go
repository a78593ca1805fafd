package discovery

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/benbjohnson/clock"
	"github.com/block/coldarchive/pkg/config"
	"github.com/block/coldarchive/pkg/errs"
	"github.com/block/coldarchive/pkg/source"
	"github.com/block/coldarchive/pkg/test/fake"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "time/tzdata"
)

var events = source.Table{Schema: "app", Name: "events"}

func day(m time.Month, d int) civil.Date {
	return civil.Date{Year: 2024, Month: m, Day: d}
}

func newDiscovery(src source.Store, loc *time.Location, now time.Time) *Discovery {
	mock := clock.NewMock()
	mock.Set(now)
	settings := config.Defaults()
	settings.RetentionDays = 7

	return New(&Config{
		Source:   src,
		Settings: settings,
		Location: loc,
		Clock:    mock,
		Logger:   logrus.New(),
	})
}

func TestCutoff(t *testing.T) {
	d := newDiscovery(fake.NewSource(), time.UTC, time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, day(time.June, 3), d.Cutoff(config.TableSpec{Schema: "app", Name: "events"}))

	thirty := 30
	assert.Equal(t, day(time.May, 11), d.Cutoff(config.TableSpec{Schema: "app", Name: "events", RetentionDays: &thirty}))

	zero := 0
	assert.Equal(t, day(time.June, 10), d.Cutoff(config.TableSpec{Schema: "app", Name: "events", RetentionDays: &zero}))

	// late evening UTC is already the next day in Tokyo
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	d = newDiscovery(fake.NewSource(), tokyo, time.Date(2024, 6, 10, 20, 0, 0, 0, time.UTC))
	assert.Equal(t, day(time.June, 4), d.Cutoff(config.TableSpec{Schema: "app", Name: "events"}))
}

func TestScope(t *testing.T) {
	src := fake.NewSource()
	src.Add(events, "created_at")
	d := newDiscovery(src, time.UTC, time.Now())
	ctx := context.Background()

	scope, err := d.Scope(ctx, config.TableSpec{Schema: "app", Name: "events", PartitionColumn: "created_at"})
	require.NoError(t, err)
	assert.Equal(t, "created_at", scope.Column.Name)
	assert.Len(t, scope.Columns, 3)

	tests := []struct {
		name string
		spec config.TableSpec
		msg  string
	}{
		{"missing table", config.TableSpec{Schema: "app", Name: "nope", PartitionColumn: "created_at"}, "table app.nope does not exist, cannot resolve partition column created_at"},
		{"missing column", config.TableSpec{Schema: "app", Name: "events", PartitionColumn: "updated_at"}, "partition column updated_at not found in app.events"},
		{"default column", config.TableSpec{Schema: "app", Name: "events"}, "partition column _sdc_extracted_at not found"},
		{"not temporal", config.TableSpec{Schema: "app", Name: "events", PartitionColumn: "name"}, "expected a date or timestamp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Scope(ctx, tt.spec)
			require.ErrorIs(t, err, errs.ErrConfiguration)
			require.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestEligible(t *testing.T) {
	src := fake.NewSource()
	src.Add(events, "created_at",
		time.Date(2024, 6, 5, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 1, 23, 59, 59, 0, time.UTC),
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
	)
	d := newDiscovery(src, time.UTC, time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()
	spec := config.TableSpec{Schema: "app", Name: "events", PartitionColumn: "created_at"}
	scope, err := d.Scope(ctx, spec)
	require.NoError(t, err)

	cutoff := d.Cutoff(spec)
	require.Equal(t, day(time.June, 3), cutoff)
	dates, err := d.Eligible(ctx, scope, cutoff)
	require.NoError(t, err)
	// 06-03 is the cutoff itself and is kept
	assert.Equal(t, []civil.Date{day(time.May, 20), day(time.June, 1), day(time.June, 2)}, dates)

	dates, err = d.Eligible(ctx, scope, day(time.May, 1))
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestEligibleInTimezone(t *testing.T) {
	src := fake.NewSource()
	src.Add(events, "created_at",
		// 2024-06-01 22:00 in New York
		time.Date(2024, 6, 2, 2, 0, 0, 0, time.UTC),
		// 2024-06-02 08:00 in New York
		time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC),
	)
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	d := newDiscovery(src, ny, time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()
	scope, err := d.Scope(ctx, config.TableSpec{Schema: "app", Name: "events", PartitionColumn: "created_at"})
	require.NoError(t, err)

	dates, err := d.Eligible(ctx, scope, day(time.June, 3))
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{day(time.June, 1), day(time.June, 2)}, dates)
}
