package flatgeobuf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/tingold/geoprep/dataset"
)

// columnType maps a schema field type to the column type it is stored as.
func columnType(t dataset.FieldType) flattypes.ColumnType {
	switch t {
	case dataset.FieldInteger:
		return flattypes.ColumnTypeLong
	case dataset.FieldReal:
		return flattypes.ColumnTypeDouble
	case dataset.FieldBoolean:
		return flattypes.ColumnTypeBool
	case dataset.FieldDate:
		return flattypes.ColumnTypeDateTime
	default:
		return flattypes.ColumnTypeString
	}
}

// fieldType maps any column type to the closest schema field type.
func fieldType(t flattypes.ColumnType) dataset.FieldType {
	switch t {
	case flattypes.ColumnTypeBool:
		return dataset.FieldBoolean
	case flattypes.ColumnTypeByte, flattypes.ColumnTypeUByte,
		flattypes.ColumnTypeShort, flattypes.ColumnTypeUShort,
		flattypes.ColumnTypeInt, flattypes.ColumnTypeUInt,
		flattypes.ColumnTypeLong, flattypes.ColumnTypeULong:
		return dataset.FieldInteger
	case flattypes.ColumnTypeFloat, flattypes.ColumnTypeDouble:
		return dataset.FieldReal
	case flattypes.ColumnTypeDateTime:
		return dataset.FieldDate
	default:
		return dataset.FieldString
	}
}

// buildColumns creates one nullable column per schema field.
func buildColumns(fields []dataset.Field, builder *flatbuffers.Builder) []*writer.Column {
	columns := make([]*writer.Column, 0, len(fields))
	for _, f := range fields {
		col := writer.NewColumn(builder)
		col.SetName(f.Name)
		col.SetTitle(f.Name)
		col.SetType(columnType(f.Type))
		col.SetNullable(true)
		columns = append(columns, col)
	}
	return columns
}

// encodeProperties serializes attributes in schema order. Each present
// value is written as a little-endian uint16 column index followed by the
// value; null values are omitted.
func encodeProperties(attrs map[string]any, fields []dataset.Field) ([]byte, error) {
	var buf bytes.Buffer
	for i, f := range fields {
		raw, ok := attrs[f.Name]
		if !ok || raw == nil {
			continue
		}
		v, err := dataset.Coerce(raw, f.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrPropertyMismatch, f.Name, err)
		}
		_ = binary.Write(&buf, binary.LittleEndian, uint16(i))
		switch val := v.(type) {
		case int64:
			_ = binary.Write(&buf, binary.LittleEndian, val)
		case float64:
			_ = binary.Write(&buf, binary.LittleEndian, math.Float64bits(val))
		case bool:
			if val {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		case time.Time:
			writeString(&buf, val.Format(time.RFC3339Nano))
		case string:
			writeString(&buf, val)
		}
	}
	return buf.Bytes(), nil
}

func writeString(buf *bytes.Buffer, s string) {
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}

// decodeProperties reads a property buffer against the header columns.
func decodeProperties(data []byte, columns []column) (map[string]any, error) {
	attrs := make(map[string]any, len(columns))
	for off := 0; off < len(data); {
		if off+2 > len(data) {
			return nil, fmt.Errorf("%w: truncated column index", ErrInvalidData)
		}
		idx := int(binary.LittleEndian.Uint16(data[off:]))
		off += 2
		if idx >= len(columns) {
			return nil, fmt.Errorf("%w: column index %d out of range", ErrInvalidData, idx)
		}
		col := columns[idx]
		v, n, err := readValue(data[off:], col.kind)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %v", ErrInvalidData, col.name, err)
		}
		off += n
		attrs[col.name] = v
	}
	return attrs, nil
}

var fixedWidth = map[flattypes.ColumnType]int{
	flattypes.ColumnTypeBool:   1,
	flattypes.ColumnTypeByte:   1,
	flattypes.ColumnTypeUByte:  1,
	flattypes.ColumnTypeShort:  2,
	flattypes.ColumnTypeUShort: 2,
	flattypes.ColumnTypeInt:    4,
	flattypes.ColumnTypeUInt:   4,
	flattypes.ColumnTypeLong:   8,
	flattypes.ColumnTypeULong:  8,
	flattypes.ColumnTypeFloat:  4,
	flattypes.ColumnTypeDouble: 8,
}

// readValue decodes one value and returns it with the bytes consumed.
// Integers come back as int64 and floats as float64.
func readValue(data []byte, t flattypes.ColumnType) (any, int, error) {
	if w, ok := fixedWidth[t]; ok {
		if len(data) < w {
			return nil, 0, fmt.Errorf("need %d bytes, have %d", w, len(data))
		}
		le := binary.LittleEndian
		switch t {
		case flattypes.ColumnTypeBool:
			return data[0] != 0, 1, nil
		case flattypes.ColumnTypeByte:
			return int64(int8(data[0])), 1, nil
		case flattypes.ColumnTypeUByte:
			return int64(data[0]), 1, nil
		case flattypes.ColumnTypeShort:
			return int64(int16(le.Uint16(data))), 2, nil
		case flattypes.ColumnTypeUShort:
			return int64(le.Uint16(data)), 2, nil
		case flattypes.ColumnTypeInt:
			return int64(int32(le.Uint32(data))), 4, nil
		case flattypes.ColumnTypeUInt:
			return int64(le.Uint32(data)), 4, nil
		case flattypes.ColumnTypeLong:
			return int64(le.Uint64(data)), 8, nil
		case flattypes.ColumnTypeULong:
			u := le.Uint64(data)
			if u > math.MaxInt64 {
				return float64(u), 8, nil
			}
			return int64(u), 8, nil
		case flattypes.ColumnTypeFloat:
			return float64(math.Float32frombits(le.Uint32(data))), 4, nil
		case flattypes.ColumnTypeDouble:
			return math.Float64frombits(le.Uint64(data)), 8, nil
		}
	}

	// String, Json, DateTime and Binary are uint32 length prefixed.
	if len(data) < 4 {
		return nil, 0, fmt.Errorf("truncated length prefix")
	}
	n := int(binary.LittleEndian.Uint32(data))
	if len(data) < 4+n {
		return nil, 0, fmt.Errorf("need %d bytes, have %d", n, len(data)-4)
	}
	s := string(data[4 : 4+n])
	if t == flattypes.ColumnTypeDateTime {
		if v, err := dataset.Coerce(s, dataset.FieldDate); err == nil {
			return v, 4 + n, nil
		}
	}
	return s, 4 + n, nil
}
