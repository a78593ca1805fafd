package parquet

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/block/coldarchive/pkg/source"
	"github.com/stretchr/testify/require"
)

func TestArrowSchema(t *testing.T) {
	columns := []source.Column{
		{Name: "id", DataType: "int", ColumnType: "int(11)"},
		{Name: "big_id", DataType: "bigint", ColumnType: "bigint unsigned"},
		{Name: "name", DataType: "varchar", ColumnType: "varchar(255)", Nullable: true},
		{Name: "amount", DataType: "decimal", ColumnType: "decimal(10,2)"},
		{Name: "payload", DataType: "blob", ColumnType: "blob", Nullable: true},
		{Name: "event_date", DataType: "date", ColumnType: "date"},
		{Name: "created_at", DataType: "datetime", ColumnType: "datetime"},
		{Name: "inserted_at", DataType: "timestamp with time zone", ColumnType: "timestamptz"},
		{Name: "active", DataType: "boolean", ColumnType: "bool"},
		{Name: "ratio", DataType: "double precision", ColumnType: "float8"},
		{Name: "ref", DataType: "uuid", ColumnType: "uuid"},
	}
	aSchema, err := ArrowSchema(columns)
	require.NoError(t, err)
	require.Len(t, aSchema.Fields(), len(columns))

	want := map[string]arrow.DataType{
		"id":          arrow.PrimitiveTypes.Int32,
		"big_id":      arrow.PrimitiveTypes.Uint64,
		"name":        arrow.BinaryTypes.String,
		"amount":      arrow.BinaryTypes.String,
		"payload":     arrow.BinaryTypes.Binary,
		"event_date":  arrow.FixedWidthTypes.Date32,
		"created_at":  arrow.FixedWidthTypes.Timestamp_us,
		"inserted_at": arrow.FixedWidthTypes.Timestamp_us,
		"active":      arrow.FixedWidthTypes.Boolean,
		"ratio":       arrow.PrimitiveTypes.Float64,
		"ref":         arrow.BinaryTypes.String,
	}
	for name, typ := range want {
		fields, ok := aSchema.FieldsByName(name)
		require.True(t, ok, name)
		require.Len(t, fields, 1)
		require.Equal(t, typ, fields[0].Type, name)
	}
	nameFields, _ := aSchema.FieldsByName("name")
	require.True(t, nameFields[0].Nullable)

	_, err = ArrowSchema([]source.Column{{Name: "shape", DataType: "geometry", ColumnType: "geometry"}})
	require.ErrorContains(t, err, "column shape: unsupported type: geometry")
}

func TestParseCodec(t *testing.T) {
	for name, want := range map[string]compress.Compression{
		"ZSTD":         compress.Codecs.Zstd,
		"snappy":       compress.Codecs.Snappy,
		"GZIP":         compress.Codecs.Gzip,
		"LZ4":          compress.Codecs.Lz4Raw,
		"UNCOMPRESSED": compress.Codecs.Uncompressed,
	} {
		got, err := ParseCodec(name)
		require.NoError(t, err)
		require.Equal(t, want, got, name)
	}
	_, err := ParseCodec("BZIP9")
	require.ErrorContains(t, err, `unknown compression codec "BZIP9"`)
}
