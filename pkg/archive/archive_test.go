package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/block/coldarchive/pkg/errs"
	"github.com/block/coldarchive/pkg/source"
	"github.com/block/coldarchive/pkg/test/fake"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	events = source.Table{Schema: "app", Name: "events"}
	june1  = civil.Date{Year: 2024, Month: time.June, Day: 1}
)

func setup(t *testing.T, rows int) (*fake.Source, *fake.ObjectStore, source.Scope) {
	t.Helper()
	src := fake.NewSource()
	var at []time.Time
	for i := range rows {
		at = append(at, time.Date(2024, 6, 1, 0, 0, i, 0, time.UTC))
	}
	at = append(at, time.Date(2024, 6, 2, 1, 0, 0, 0, time.UTC))
	tbl := src.Add(events, "created_at", at...)
	scope, err := source.NewScope(events, tbl.Columns, "created_at", time.UTC)
	require.NoError(t, err)

	return src, fake.NewObjectStore(), scope
}

func newExporter(src source.Store, store *fake.ObjectStore, maxFileSize uint64) *Exporter {
	return NewExporter(&ExporterConfig{
		Source:      src,
		Store:       store,
		Prefix:      "archive/raw/",
		Codec:       compress.Codecs.Zstd,
		MaxFileSize: maxFileSize,
		Logger:      logrus.New(),
	})
}

func TestLocation(t *testing.T) {
	assert.Equal(t, "archive/raw/events/dt=2024-06-01/", Location("archive/raw", "events", june1))
	assert.Equal(t, "archive/raw/events/dt=2024-06-01/", Location("/archive/raw/", "events", june1))
	assert.Equal(t, "events/dt=2024-06-01/", Location("", "events", june1))
}

func TestExportValidatePrune(t *testing.T) {
	src, store, scope := setup(t, 50)
	ctx := context.Background()

	exported, err := newExporter(src, store, 0).Export(ctx, scope, june1)
	require.NoError(t, err)
	assert.Equal(t, "archive/raw/events/dt=2024-06-01/", exported.Location)
	assert.Equal(t, []string{"data_0.parquet"}, exported.Files)
	assert.EqualValues(t, 50, exported.Rows)
	assert.Contains(t, store.Objects, "archive/raw/events/dt=2024-06-01/data_0.parquet")

	count, err := NewValidator(src, store).Validate(ctx, scope, june1, exported.Location)
	require.NoError(t, err)
	assert.EqualValues(t, 50, count)

	deleted, err := NewPruner(src, logrus.New()).Prune(ctx, scope, june1)
	require.NoError(t, err)
	assert.EqualValues(t, 50, deleted)
	assert.Equal(t, 0, src.Rows(events, "created_at", june1, time.UTC))
	// the next day is untouched
	assert.Equal(t, 1, src.Rows(events, "created_at", june1.AddDays(1), time.UTC))
	assert.Equal(t, 1, src.Reclaims)
}

func TestExportIsIdempotent(t *testing.T) {
	src, store, scope := setup(t, 3000)
	ctx := context.Background()
	// small files so the partition spans several
	exporter := newExporter(src, store, 4096)

	first, err := exporter.Export(ctx, scope, june1)
	require.NoError(t, err)
	require.Greater(t, len(first.Files), 1)
	keys, err := store.List(ctx, first.Location)
	require.NoError(t, err)

	// a stray object from an interrupted attempt is cleaned up
	store.Objects[first.Location+"data_99.parquet"] = []byte("junk")

	second, err := exporter.Export(ctx, scope, june1)
	require.NoError(t, err)
	assert.Equal(t, first.Files, second.Files)
	again, err := store.List(ctx, second.Location)
	require.NoError(t, err)
	assert.Equal(t, keys, again)

	count, err := NewValidator(src, store).Validate(ctx, scope, june1, second.Location)
	require.NoError(t, err)
	assert.EqualValues(t, 3000, count)
}

func TestExportErrors(t *testing.T) {
	ctx := context.Background()

	src, store, scope := setup(t, 5)
	boom := errors.New("bucket unavailable")
	store.PutErr = boom
	_, err := newExporter(src, store, 0).Export(ctx, scope, june1)
	require.ErrorIs(t, err, errs.ErrExport)
	require.ErrorIs(t, err, boom)
	var exportErr *errs.ExportError
	require.ErrorAs(t, err, &exportErr)
	assert.Equal(t, "app.events", exportErr.Table)
	assert.Equal(t, "2024-06-01", exportErr.Partition)

	src, store, scope = setup(t, 5)
	scope.Columns = append(scope.Columns, source.Column{Name: "shape", DataType: "geometry", ColumnType: "geometry"})
	_, err = newExporter(src, store, 0).Export(ctx, scope, june1)
	require.ErrorIs(t, err, errs.ErrExport)
	require.ErrorContains(t, err, "unsupported type: geometry")
}

func TestValidateMismatch(t *testing.T) {
	src, store, scope := setup(t, 50)
	ctx := context.Background()
	store.DropPuts = true

	exported, err := newExporter(src, store, 0).Export(ctx, scope, june1)
	require.NoError(t, err)

	_, err = NewValidator(src, store).Validate(ctx, scope, june1, exported.Location)
	require.ErrorIs(t, err, errs.ErrValidationMismatch)
	var mismatch *errs.ValidationMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.EqualValues(t, 50, mismatch.SourceCount)
	assert.EqualValues(t, 0, mismatch.DestCount)
	assert.Equal(t, "2024-06-01", mismatch.Partition)
}
