// Package archive exports a day partition to Parquet, checks the export
// against the source and prunes the source rows.
package archive

import (
	"context"
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/block/coldarchive/pkg/errs"
	"github.com/block/coldarchive/pkg/parquet"
	"github.com/block/coldarchive/pkg/source"
	"github.com/block/coldarchive/pkg/storage"
	"github.com/siddontang/loggers"
)

// Location is the key prefix holding the files of one partition:
// <prefix>/<table>/dt=YYYY-MM-DD/.
func Location(prefix, table string, d civil.Date) string {
	return path.Join(strings.Trim(prefix, "/"), table, "dt="+d.String()) + "/"
}

type Exported struct {
	Location string
	Files    []string
	Rows     uint64
}

type ExporterConfig struct {
	Source      source.Store
	Store       storage.Store
	Prefix      string
	Codec       compress.Compression
	MaxFileSize uint64
	Logger      loggers.Advanced
}

type Exporter struct {
	source      source.Store
	store       storage.Store
	prefix      string
	codec       compress.Compression
	maxFileSize uint64
	logger      loggers.Advanced
}

func NewExporter(cfg *ExporterConfig) *Exporter {
	return &Exporter{
		source:      cfg.Source,
		store:       cfg.Store,
		prefix:      cfg.Prefix,
		codec:       cfg.Codec,
		maxFileSize: cfg.MaxFileSize,
		logger:      cfg.Logger,
	}
}

// Export writes the rows of partition d to its location. Objects left under
// the location by an earlier attempt are removed first, so exporting the
// same partition twice leaves the same set of files.
func (e *Exporter) Export(ctx context.Context, scope source.Scope, d civil.Date) (*Exported, error) {
	loc := Location(e.prefix, scope.Table.Name, d)
	fail := func(err error) error {
		return &errs.ExportError{Table: scope.Table.String(), Partition: d.String(), Err: err}
	}

	stale, err := e.store.List(ctx, loc)
	if err != nil {
		return nil, fail(err)
	}
	if len(stale) > 0 {
		e.logger.Infof("removing %d objects left by an earlier export of %s", len(stale), e.store.URI(loc))
		if err = e.store.Delete(ctx, stale); err != nil {
			return nil, fail(err)
		}
	}

	schema, err := parquet.ArrowSchema(scope.Columns)
	if err != nil {
		return nil, fail(err)
	}
	wb, err := parquet.NewWriteBuffer(schema, e.codec, &locationUploader{store: e.store, location: loc}, e.maxFileSize)
	if err != nil {
		return nil, fail(err)
	}
	err = e.source.Scan(ctx, scope.Partition(d), scope.Columns, func(row []any) error {
		return wb.WriteRow(ctx, row)
	})
	if err != nil {
		return nil, fail(err)
	}
	files, err := wb.Close(ctx)
	if err != nil {
		return nil, fail(err)
	}
	e.logger.Infof("exported %d rows of %s %s to %d files under %s", wb.RowsWritten, scope.Table, d, len(files), e.store.URI(loc))

	return &Exported{Location: loc, Files: files, Rows: wb.RowsWritten}, nil
}

type locationUploader struct {
	store    storage.Store
	location string
}

func (u *locationUploader) Upload(ctx context.Context, name string, data []byte) error {
	if err := u.store.Put(ctx, u.location+name, data); err != nil {
		return fmt.Errorf("uploading %s: %w", name, err)
	}

	return nil
}
