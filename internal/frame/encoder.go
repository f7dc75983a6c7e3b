package frame

import (
	"fmt"
	"math"
)

// Encode serializes values (field name -> scalar) into a buffer matching
// schema's layout, writing the checksum window last. It is the inverse of
// Parser.Parse and exists primarily to let tests and adapters construct
// wire frames; it is exercised by the encode/parse round-trip property
// test in schema_test.go.
func Encode(schema *Schema, values map[string]any) ([]byte, error) {
	buf := make([]byte, schema.TotalLength)

	for _, f := range schema.Fields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		if err := encodeField(buf, f, v); err != nil {
			return nil, err
		}
	}

	if schema.ChecksumType != ChecksumNone {
		window := buf[:schema.ChecksumOffset]
		var value uint64
		switch schema.ChecksumType {
		case ChecksumCRC16:
			value = uint64(CRC16Modbus(window))
		case ChecksumCRC32:
			value = uint64(CRC32IEEE(window))
		case ChecksumSUM8:
			value = uint64(SUM8(window))
		}
		field := buf[schema.ChecksumOffset : schema.ChecksumOffset+schema.ChecksumLength]
		for i := len(field) - 1; i >= 0; i-- {
			field[i] = byte(value)
			value >>= 8
		}
	}

	return buf, nil
}

func encodeField(buf []byte, f Field, v any) error {
	dst := buf[f.Offset : f.Offset+f.Length]

	if f.DataType == TypeString {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("field %q: expected string, got %T", f.Name, v)
		}
		copy(dst, s) // remaining bytes stay zero (NUL-padded)
		return nil
	}

	raw, err := toFloat64(v)
	if err != nil {
		return fmt.Errorf("field %q: %w", f.Name, err)
	}

	// Undo scale/offset_value so the raw wire value round-trips.
	if f.OffsetValue != nil {
		raw -= *f.OffsetValue
	}
	if f.Scale != nil && *f.Scale != 0 {
		raw /= *f.Scale
	}

	order := byteOrder(f.ByteOrder)

	switch f.DataType {
	case TypeUint8:
		dst[0] = byte(uint8(raw))
	case TypeInt8:
		dst[0] = byte(int8(raw))
	case TypeUint16:
		order.PutUint16(dst, uint16(raw))
	case TypeInt16:
		order.PutUint16(dst, uint16(int16(raw)))
	case TypeUint32:
		order.PutUint32(dst, uint32(raw))
	case TypeInt32:
		order.PutUint32(dst, uint32(int32(raw)))
	case TypeUint64:
		order.PutUint64(dst, uint64(raw))
	case TypeInt64:
		order.PutUint64(dst, uint64(int64(raw)))
	case TypeFloat32:
		order.PutUint32(dst, math.Float32bits(float32(raw)))
	case TypeFloat64:
		order.PutUint64(dst, math.Float64bits(raw))
	default:
		return fmt.Errorf("field %q: unknown data type %q", f.Name, f.DataType)
	}
	return nil
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}
