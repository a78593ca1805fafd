// Package discovery resolves the partition column of a table and lists the
// day partitions that are older than the table's retention.
package discovery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/benbjohnson/clock"
	"github.com/block/coldarchive/pkg/config"
	"github.com/block/coldarchive/pkg/errs"
	"github.com/block/coldarchive/pkg/source"
	"github.com/siddontang/loggers"
)

// floor is where the partition scan starts.
var floor = civil.Date{Year: 1, Month: time.January, Day: 1}

type Config struct {
	Source   source.Store
	Settings config.Settings
	Location *time.Location
	Clock    clock.Clock
	Logger   loggers.Advanced
}

type Discovery struct {
	source   source.Store
	settings config.Settings
	loc      *time.Location
	clock    clock.Clock
	logger   loggers.Advanced
}

func New(cfg *Config) *Discovery {
	c := cfg.Clock
	if c == nil {
		c = clock.New()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	return &Discovery{
		source:   cfg.Source,
		settings: cfg.Settings,
		loc:      loc,
		clock:    c,
		logger:   cfg.Logger,
	}
}

// Scope reads the catalog columns of a table and binds its effective
// partition column.
func (d *Discovery) Scope(ctx context.Context, spec config.TableSpec) (source.Scope, error) {
	t := source.Table{Schema: spec.Schema, Name: spec.Name}
	column := d.settings.Column(spec)
	columns, err := d.source.Columns(ctx, t)
	if err != nil {
		return source.Scope{}, fmt.Errorf("failed to read columns of %s: %w", t, err)
	}
	scope, err := source.NewScope(t, columns, column, d.loc)
	if err != nil {
		return source.Scope{}, &errs.ConfigurationError{Msg: "cannot partition " + t.String(), Err: err}
	}

	return scope, nil
}

// Cutoff is the first day that is kept: today in the source timezone minus
// the table's retention. Partitions strictly before it are eligible.
func (d *Discovery) Cutoff(spec config.TableSpec) civil.Date {
	today := civil.DateOf(d.clock.Now().In(d.loc))

	return today.AddDays(-d.settings.Retention(spec))
}

// Eligible returns the distinct partitions before cutoff in ascending
// order. Each step asks for the smallest value after the last partition
// found, so only one row per partition is read.
func (d *Discovery) Eligible(ctx context.Context, scope source.Scope, cutoff civil.Date) ([]civil.Date, error) {
	var dates []civil.Date
	for next := floor; ; {
		p := scope.Between(next, cutoff)
		if !p.From.Before(p.To) {
			break
		}
		v, ok, err := d.source.Min(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", p, err)
		}
		if !ok {
			break
		}
		day := scope.DateOf(v)
		dates = append(dates, day)
		next = day.AddDays(1)
	}
	d.logger.Debugf("found %d partitions of %s before %s", len(dates), scope.Table, cutoff)

	return dates, nil
}
