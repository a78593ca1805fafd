package parquet

import (
	"bytes"
	"context"
	"database/sql/driver"
	"fmt"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/block/coldarchive/pkg/source"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	defaultFileSize = 128 * 1024 * 1024
	// rows per Arrow record handed to the parquet writer
	recordBatchSize = 1024
)

// Uploader receives each finished parquet file. data is reused once Upload
// returns.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) error
}

// FileName is the name of the n-th file of a partition.
func FileName(n int) string {
	return fmt.Sprintf("data_%d.parquet", n)
}

// WriteBuffer turns rows into parquet files of roughly outputFileSize bytes
// each and hands them to the uploader as data_0.parquet, data_1.parquet and
// so on. It is not safe for concurrent use.
type WriteBuffer struct {
	writer        *pqarrow.FileWriter
	recordBuilder *array.RecordBuilder
	props         *parquet.WriterProperties

	schema *arrow.Schema
	buffer *bytes.Buffer

	uploader       Uploader
	outputFileSize uint64

	pendingRows          int
	rowsInFile           uint64
	RowsWritten          uint64
	currentEstBufferSize int64
	files                []string
}

func NewWriteBuffer(schema *arrow.Schema, codec compress.Compression, uploader Uploader, outputFileSize uint64) (*WriteBuffer, error) {
	if outputFileSize == 0 {
		outputFileSize = defaultFileSize
	}
	wb := &WriteBuffer{
		schema:         schema,
		recordBuilder:  array.NewRecordBuilder(memory.NewGoAllocator(), schema),
		props:          parquet.NewWriterProperties(parquet.WithCompression(codec)),
		buffer:         bytes.NewBuffer(nil),
		uploader:       uploader,
		outputFileSize: outputFileSize,
	}
	if err := wb.reset(); err != nil {
		return nil, err
	}

	return wb, nil
}

func (wb *WriteBuffer) reset() error {
	wb.buffer.Reset()
	wb.rowsInFile = 0
	wb.currentEstBufferSize = 0
	var err error
	wb.writer, err = pqarrow.NewFileWriter(wb.schema, wb.buffer, wb.props, pqarrow.DefaultWriterProps())

	return err
}

// WriteRow appends one row. values are in schema order as returned by the
// database driver; nil is written as null.
func (wb *WriteBuffer) WriteRow(ctx context.Context, values []any) error {
	if len(values) != len(wb.schema.Fields()) {
		return fmt.Errorf("row has %d values, schema has %d fields", len(values), len(wb.schema.Fields()))
	}
	for i, field := range wb.recordBuilder.Fields() {
		if err := appendValue(field, values[i]); err != nil {
			return fmt.Errorf("column %s: %w", wb.schema.Field(i).Name, err)
		}
	}
	wb.pendingRows++
	if wb.pendingRows < recordBatchSize {
		return nil
	}
	if err := wb.writeRecord(); err != nil {
		return err
	}
	if uint64(wb.currentEstBufferSize) >= wb.outputFileSize {
		return wb.Flush(ctx)
	}

	return nil
}

func (wb *WriteBuffer) writeRecord() error {
	if wb.pendingRows == 0 {
		return nil
	}
	record := wb.recordBuilder.NewRecord()
	defer record.Release()
	// We use `WriteBuffered` to write the record on the writer instead of `Write` to
	// make sure all the records for the current file are added to same row group.
	if err := wb.writer.WriteBuffered(record); err != nil {
		return err
	}
	wb.currentEstBufferSize += estimateSize(record)
	wb.rowsInFile += uint64(wb.pendingRows)
	wb.pendingRows = 0

	return nil
}

// Flush closes the current file and uploads it. It is a no-op when the
// current file holds no rows.
func (wb *WriteBuffer) Flush(ctx context.Context) error {
	if err := wb.writeRecord(); err != nil {
		return err
	}
	if wb.rowsInFile == 0 {
		return nil
	}
	if err := wb.writer.Close(); err != nil {
		return err
	}
	name := FileName(len(wb.files))
	if err := wb.uploader.Upload(ctx, name, wb.buffer.Bytes()); err != nil {
		return err
	}
	wb.files = append(wb.files, name)
	wb.RowsWritten += wb.rowsInFile

	return wb.reset()
}

// Close flushes the last file and returns the names of every file written.
func (wb *WriteBuffer) Close(ctx context.Context) ([]string, error) {
	defer wb.recordBuilder.Release()
	if err := wb.Flush(ctx); err != nil {
		return nil, err
	}

	return wb.files, nil
}

func estimateSize(record arrow.Record) int64 {
	var totalSize int64
	for _, col := range record.Columns() {
		for _, buf := range col.Data().Buffers() {
			if buf != nil {
				totalSize += int64(buf.Len())
			}
		}
	}

	return totalSize
}

func appendValue(field array.Builder, value any) error { //nolint:cyclop
	// pgtype values such as Numeric and Interval render through driver.Valuer
	if v, ok := value.(driver.Valuer); ok {
		dv, err := v.Value()
		if err != nil {
			return err
		}
		value = dv
	}
	if value == nil {
		field.AppendNull()

		return nil
	}
	switch b := field.(type) {
	case *array.BinaryBuilder:
		byteVal, err := bytesValue(value)
		if err != nil {
			return err
		}
		b.Append(byteVal)
	case *array.StringBuilder:
		strVal, err := strValue(value)
		if err != nil {
			return err
		}
		b.Append(strVal)
	case *array.Int32Builder:
		intValue, err := intVal(value, 32)
		if err != nil {
			return err
		}
		b.Append(int32(intValue))
	case *array.Int64Builder:
		intValue, err := intVal(value, 64)
		if err != nil {
			return err
		}
		b.Append(intValue)
	case *array.Uint64Builder:
		uintValue, err := uint64Val(value)
		if err != nil {
			return err
		}
		b.Append(uintValue)
	case *array.Float64Builder:
		floatValue, err := float64Val(value)
		if err != nil {
			return err
		}
		b.Append(floatValue)
	case *array.BooleanBuilder:
		boolValue, err := boolVal(value)
		if err != nil {
			return err
		}
		b.Append(boolValue)
	case *array.Date32Builder:
		ts, err := source.ParseTime(value)
		if err != nil {
			return err
		}
		b.Append(arrow.Date32FromTime(ts))
	case *array.TimestampBuilder:
		ts, err := source.ParseTime(value)
		if err != nil {
			return err
		}
		b.Append(arrow.Timestamp(ts.UnixMicro()))
	default:
		return fmt.Errorf("no conversion to %s", field.Type())
	}

	return nil
}

func float64Val(i any) (float64, error) {
	switch v := i.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case []byte:
		return strconv.ParseFloat(string(v), 64)
	case string:
		return strconv.ParseFloat(v, 64)
	}
	if n, err := intVal(i, 64); err == nil {
		return float64(n), nil
	}

	return 0, fmt.Errorf("cannot convert %v to float64", i)
}

func strValue(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case [16]byte:
		return uuid.UUID(v).String(), nil
	case time.Time:
		return v.Format(time.RFC3339Nano), nil
	case bool:
		return strconv.FormatBool(v), nil
	case int64, int32, int16, int8, int, uint64, uint32, uint16, uint8, float64, float32:
		return fmt.Sprint(v), nil
	case driver.Valuer:
		dv, err := v.Value()
		if err != nil {
			return "", err
		}

		return strValue(dv)
	case fmt.Stringer:
		return v.String(), nil
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}

		return string(data), nil
	}

	return "", fmt.Errorf("%v is not a string", value)
}

func bytesValue(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	s, err := strValue(value)
	if err != nil {
		return nil, fmt.Errorf("cannot convert %T to []byte", value)
	}

	return []byte(s), nil
}

func intVal(value any, bitSize int) (int64, error) {
	var n int64
	switch v := value.(type) {
	case int64:
		n = v
	case int32:
		n = int64(v)
	case int16:
		n = int64(v)
	case int8:
		n = int64(v)
	case int:
		n = int64(v)
	case uint32:
		n = int64(v)
	case uint16:
		n = int64(v)
	case uint8:
		n = int64(v)
	case uint64:
		if v > 1<<63-1 {
			return 0, fmt.Errorf("%d overflows int64", v)
		}
		n = int64(v)
	case bool:
		if v {
			n = 1
		}
	case []byte:
		return strconv.ParseInt(string(v), 10, bitSize)
	case string:
		return strconv.ParseInt(v, 10, bitSize)
	default:
		return 0, fmt.Errorf("cannot convert %T to int%d", value, bitSize)
	}
	if bitSize == 32 && (n > 1<<31-1 || n < -1<<31) {
		return 0, fmt.Errorf("%d overflows int32", n)
	}

	return n, nil
}

func uint64Val(value any) (uint64, error) {
	switch v := value.(type) {
	case uint64:
		return v, nil
	case []byte:
		return strconv.ParseUint(string(v), 10, 64)
	case string:
		return strconv.ParseUint(v, 10, 64)
	}
	n, err := intVal(value, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%d is negative", n)
	}

	return uint64(n), nil
}

func boolVal(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case []byte:
		return strconv.ParseBool(string(v))
	case string:
		return strconv.ParseBool(v)
	}
	n, err := intVal(value, 64)
	if err != nil {
		return false, fmt.Errorf("cannot convert %T to bool", value)
	}

	return n != 0, nil
}
