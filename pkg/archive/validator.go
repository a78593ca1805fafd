package archive

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/block/coldarchive/pkg/errs"
	"github.com/block/coldarchive/pkg/parquet"
	"github.com/block/coldarchive/pkg/source"
	"github.com/block/coldarchive/pkg/storage"
)

// Validator compares the rows of a source partition with the rows in its
// exported files.
type Validator struct {
	source source.Store
	store  storage.Store
}

func NewValidator(src source.Store, store storage.Store) *Validator {
	return &Validator{source: src, store: store}
}

// Validate returns the row count of partition d when it matches the sum of
// the row counts in the footers of the files under location, and a
// ValidationMismatchError otherwise.
func (v *Validator) Validate(ctx context.Context, scope source.Scope, d civil.Date, location string) (int64, error) {
	srcCount, err := v.source.Count(ctx, scope.Partition(d))
	if err != nil {
		return 0, err
	}
	dstCount, err := v.exportedRows(ctx, location)
	if err != nil {
		return 0, err
	}
	if srcCount != dstCount {
		return 0, &errs.ValidationMismatchError{
			Table:       scope.Table.String(),
			Partition:   d.String(),
			SourceCount: srcCount,
			DestCount:   dstCount,
		}
	}

	return srcCount, nil
}

func (v *Validator) exportedRows(ctx context.Context, location string) (int64, error) {
	keys, err := v.store.List(ctx, location)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, key := range keys {
		n, err := v.numRows(ctx, key)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", v.store.URI(key), err)
		}
		total += n
	}

	return total, nil
}

func (v *Validator) numRows(ctx context.Context, key string) (int64, error) {
	obj, err := v.store.Open(ctx, key)
	if err != nil {
		return 0, err
	}
	defer obj.Close()

	return parquet.NumRows(obj)
}
