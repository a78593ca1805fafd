package parquet

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/block/coldarchive/pkg/source"
)

// arrowType maps a source column to the Arrow type it is archived as.
// Exact numerics are written as strings so no precision is lost.
func arrowType(c source.Column) (arrow.DataType, error) { //nolint:cyclop
	switch c.DataType {
	case "tinyint", "smallint", "mediumint", "year":
		return arrow.PrimitiveTypes.Int32, nil
	case "int", "integer":
		if c.Unsigned() {
			return arrow.PrimitiveTypes.Int64, nil
		}

		return arrow.PrimitiveTypes.Int32, nil
	case "bigint":
		if c.Unsigned() {
			return arrow.PrimitiveTypes.Uint64, nil
		}

		return arrow.PrimitiveTypes.Int64, nil
	case "float", "double", "real", "double precision":
		return arrow.PrimitiveTypes.Float64, nil
	case "decimal", "numeric":
		return arrow.BinaryTypes.String, nil
	case "boolean", "bool":
		return arrow.FixedWidthTypes.Boolean, nil
	case "date":
		return arrow.FixedWidthTypes.Date32, nil
	case "datetime", "timestamp", "timestamp without time zone", "timestamp with time zone":
		return arrow.FixedWidthTypes.Timestamp_us, nil
	case "char", "varchar", "text", "tinytext", "mediumtext", "longtext", "enum", "set", "json",
		"character", "character varying", "jsonb", "uuid", "xml", "inet", "cidr", "macaddr", "interval",
		"time", "time without time zone", "time with time zone", "array", "user-defined":
		return arrow.BinaryTypes.String, nil
	case "binary", "varbinary", "blob", "tinyblob", "mediumblob", "longblob", "bytea", "bit", "bit varying":
		return arrow.BinaryTypes.Binary, nil
	}

	return arrow.Null, fmt.Errorf("unsupported type: %s", c.ColumnType)
}

// ArrowSchema converts the columns of a source table to an Arrow schema.
func ArrowSchema(columns []source.Column) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, len(columns))
	for _, c := range columns {
		typ, err := arrowType(c)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		fields = append(fields, arrow.Field{Name: c.Name, Type: typ, Nullable: c.Nullable})
	}

	return arrow.NewSchema(fields, nil), nil
}

// ParseCodec returns the Parquet compression codec for a name such as
// "ZSTD" or "snappy".
func ParseCodec(name string) (compress.Compression, error) {
	switch strings.ToUpper(name) {
	case "ZSTD":
		return compress.Codecs.Zstd, nil
	case "SNAPPY":
		return compress.Codecs.Snappy, nil
	case "GZIP":
		return compress.Codecs.Gzip, nil
	case "LZ4", "LZ4_RAW":
		return compress.Codecs.Lz4Raw, nil
	case "BROTLI":
		return compress.Codecs.Brotli, nil
	case "UNCOMPRESSED", "NONE":
		return compress.Codecs.Uncompressed, nil
	}

	return compress.Codecs.Uncompressed, fmt.Errorf("unknown compression codec %q", name)
}
