package runner

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/benbjohnson/clock"
	"github.com/block/coldarchive/pkg/archive"
	"github.com/block/coldarchive/pkg/config"
	"github.com/block/coldarchive/pkg/discovery"
	"github.com/block/coldarchive/pkg/ledger"
	"github.com/block/coldarchive/pkg/parquet"
	"github.com/block/coldarchive/pkg/random"
	"github.com/block/coldarchive/pkg/source"
	"github.com/block/coldarchive/pkg/storage"
	"github.com/hashicorp/go-multierror"
	"github.com/siddontang/loggers"
	"github.com/sirupsen/logrus"
)

type ArchiveRunner struct {
	settings config.Settings
	runID    string
	clock    clock.Clock
	// Attached logger
	logger loggers.Advanced

	connect   func(ctx context.Context, s config.Settings, logger loggers.Advanced) (*Conn, error)
	openStore func(ctx context.Context, s config.Settings) (storage.Store, error)

	summary *Summary
}

type ArchiveRunnerConfig struct {
	Settings config.Settings
	RunID    string
	// Clock decides what "today" is. Defaults to the wall clock.
	Clock clock.Clock
}

func NewArchiveRunner(acfg *ArchiveRunnerConfig, logger *logrus.Logger) (*ArchiveRunner, error) {
	c := acfg.Clock
	if c == nil {
		c = clock.New()
	}

	return &ArchiveRunner{
		settings:  acfg.Settings,
		runID:     acfg.RunID,
		clock:     c,
		logger:    logger,
		connect:   connect,
		openStore: openStore,
		summary:   newSummary(),
	}, nil
}

// Prepare generates a new runID for the run if not present already.
func (ar *ArchiveRunner) Prepare() string {
	if ar.runID == "" {
		ar.runID = random.ID()
	}

	return ar.runID
}

// Summary is what the last call to Run did.
func (ar *ArchiveRunner) Summary() *Summary {
	return ar.summary
}

// run is the state of one call to Run.
type run struct {
	settings  config.Settings
	conn      *Conn
	store     storage.Store
	discovery *discovery.Discovery
	exporter  *archive.Exporter
	validator *archive.Validator
	pruner    *archive.Pruner
}

// Run archives every eligible partition of every configured table. The
// first error stops the run; partitions recorded before it stay recorded.
func (ar *ArchiveRunner) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ar.Prepare()
	ar.summary = newSummary()

	settings, err := config.Resolve(ar.settings)
	if err != nil {
		return err
	}
	loc, err := settings.Location()
	if err != nil {
		return err
	}
	codec, err := parquet.ParseCodec(settings.Compression)
	if err != nil {
		return err
	}

	startTime := ar.clock.Now()
	ar.logger.Infof("Starting archive run-id=%s tables=%d source=%s dry-run=%t",
		ar.runID, len(settings.Tables), settings.Source.Type, settings.DryRun)

	conn, err := ar.connect(ctx, settings, ar.logger)
	if err != nil {
		return fmt.Errorf("error setting up db: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			err = multierror.Append(err, fmt.Errorf("failed to close source: %w", cerr)).ErrorOrNil()
		}
	}()

	if err = conn.Booter.PreflightChecks(ctx); err != nil {
		return fmt.Errorf("failed preflight checks: %w", err)
	}

	r := &run{
		settings: settings,
		conn:     conn,
		discovery: discovery.New(&discovery.Config{
			Source:   conn.Source,
			Settings: settings,
			Location: loc,
			Clock:    ar.clock,
			Logger:   ar.logger,
		}),
	}
	// the ledger table is created even on a dry run so lookups work on a
	// fresh install
	if err = conn.Booter.Setup(ctx); err != nil {
		return fmt.Errorf("failed booter setup: %w", err)
	}
	// a dry run writes no data, so it never opens the object store
	if !settings.DryRun {
		if r.store, err = ar.openStore(ctx, settings); err != nil {
			return fmt.Errorf("failed to open object store: %w", err)
		}
		r.exporter = archive.NewExporter(&archive.ExporterConfig{
			Source:      conn.Source,
			Store:       r.store,
			Prefix:      settings.ArchivePrefix,
			Codec:       codec,
			MaxFileSize: settings.MaxFileSize,
			Logger:      ar.logger,
		})
		r.validator = archive.NewValidator(conn.Source, r.store)
		r.pruner = archive.NewPruner(conn.Source, ar.logger)
	}

	for _, spec := range settings.Tables {
		if err = ar.archiveTable(ctx, r, spec); err != nil {
			ar.logger.Errorf("Failed to archive run-id=%s table=%s: %v", ar.runID, spec, err)

			return err
		}
	}
	ar.logger.Infof("Successfully archived run-id=%s in %s: %s",
		ar.runID, ar.clock.Since(startTime).Round(time.Millisecond), ar.summary)

	return nil
}

func (ar *ArchiveRunner) archiveTable(ctx context.Context, r *run, spec config.TableSpec) error {
	scope, err := r.discovery.Scope(ctx, spec)
	if err != nil {
		return err
	}
	cutoff := r.discovery.Cutoff(spec)
	dates, err := r.discovery.Eligible(ctx, scope, cutoff)
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		ar.logger.Infof("%s: no partitions before %s", scope.Table, cutoff)

		return nil
	}
	ar.logger.Infof("%s: %d partitions before %s", scope.Table, len(dates), cutoff)
	for _, d := range dates {
		ar.enter(scope.Table, d, Discovered)
		if err = ar.archivePartition(ctx, r, scope, d); err != nil {
			return err
		}
	}

	return nil
}

func (ar *ArchiveRunner) enter(t source.Table, d civil.Date, s State) {
	ar.summary.Partitions[s]++
	if s == Skipped {
		ar.logger.Debugf("%s %s: %s", t, d, s)

		return
	}
	ar.logger.Infof("%s %s: %s", t, d, s)
}

func (ar *ArchiveRunner) archivePartition(ctx context.Context, r *run, scope source.Scope, d civil.Date) error {
	archived, err := r.conn.Ledger.IsArchived(ctx, scope.Table, d)
	if err != nil {
		return fmt.Errorf("failed to read ledger for %s %s: %w", scope.Table, d, err)
	}
	if archived {
		ar.enter(scope.Table, d, Skipped)

		return nil
	}
	count, err := r.conn.Source.Count(ctx, scope.Partition(d))
	if err != nil {
		return fmt.Errorf("failed to count %s %s: %w", scope.Table, d, err)
	}
	location := archive.Location(r.settings.ArchivePrefix, scope.Table.Name, d)

	if r.settings.DryRun {
		if count == 0 {
			ar.logger.Infof("(dry-run) %s %s has no rows, would record it", scope.Table, d)
		} else {
			ar.logger.Infof("(dry-run) would export %d rows of %s %s to %s, prune and record them",
				count, scope.Table, d, location)
		}

		return nil
	}

	if count == 0 {
		ar.enter(scope.Table, d, Empty)

		return ar.record(ctx, r, scope, d, 0, location)
	}

	exported, err := r.exporter.Export(ctx, scope, d)
	if err != nil {
		return err
	}
	ar.enter(scope.Table, d, Exported)
	validated, err := r.validator.Validate(ctx, scope, d, exported.Location)
	if err != nil {
		return err
	}
	ar.enter(scope.Table, d, Validated)
	deleted, err := r.pruner.Prune(ctx, scope, d)
	if err != nil {
		return err
	}
	if deleted != validated {
		ar.logger.Warnf("%s %s: deleted %d rows but %d were exported, rows written after validation were not archived",
			scope.Table, d, deleted, validated)
	}
	ar.enter(scope.Table, d, Pruned)
	ar.summary.Rows += validated

	return ar.record(ctx, r, scope, d, validated, exported.Location)
}

func (ar *ArchiveRunner) record(ctx context.Context, r *run, scope source.Scope, d civil.Date, rows int64, location string) error {
	err := r.conn.Ledger.Record(ctx, ledger.Entry{
		Table:      scope.Table,
		Partition:  d,
		RowCount:   rows,
		Location:   r.store.URI(location),
		ArchivedAt: ar.clock.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to record %s %s: %w", scope.Table, d, err)
	}
	ar.enter(scope.Table, d, Recorded)

	return nil
}

// Entries returns the ledger entries of t. It opens its own connection.
func (ar *ArchiveRunner) Entries(ctx context.Context, t source.Table) (entries []ledger.Entry, err error) {
	conn, err := ar.connect(ctx, ar.settings, ar.logger)
	if err != nil {
		return nil, fmt.Errorf("error setting up db: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	return conn.Ledger.Entries(ctx, t)
}
