package parquet

import (
	"fmt"

	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
)

// NumRows reads the row count of a parquet file from its footer. Only the
// footer is read.
func NumRows(r parquet.ReaderAtSeeker) (int64, error) {
	reader, err := file.NewParquetReader(r)
	if err != nil {
		return 0, fmt.Errorf("reading parquet footer: %w", err)
	}
	defer reader.Close()

	return reader.NumRows(), nil
}
