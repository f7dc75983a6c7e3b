// Package frame implements the binary frame schema and parser: decoding a
// byte buffer into a named, typed field mapping per a user-defined layout,
// including checksum verification.
package frame

import (
	"fmt"

	"github.com/ocx/gateway/internal/gwerrors"
)

// DataType identifies the wire representation of a single field.
type DataType string

const (
	TypeUint8   DataType = "UINT8"
	TypeUint16  DataType = "UINT16"
	TypeUint32  DataType = "UINT32"
	TypeUint64  DataType = "UINT64"
	TypeInt8    DataType = "INT8"
	TypeInt16   DataType = "INT16"
	TypeInt32   DataType = "INT32"
	TypeInt64   DataType = "INT64"
	TypeFloat32 DataType = "FLOAT32"
	TypeFloat64 DataType = "FLOAT64"
	TypeString  DataType = "STRING"
)

// Size returns the natural wire size in bytes for fixed-width types, or 0
// for STRING (whose size is whatever the field's Length says).
func (d DataType) Size() int {
	switch d {
	case TypeUint8, TypeInt8:
		return 1
	case TypeUint16, TypeInt16:
		return 2
	case TypeUint32, TypeInt32, TypeFloat32:
		return 4
	case TypeUint64, TypeInt64, TypeFloat64:
		return 8
	default:
		return 0
	}
}

// ByteOrder selects multi-byte field endianness.
type ByteOrder string

const (
	BigEndian    ByteOrder = "BIG_ENDIAN"
	LittleEndian ByteOrder = "LITTLE_ENDIAN"
)

// FrameType selects how a stream is split into discrete frames.
type FrameType string

const (
	FrameFixed          FrameType = "FIXED"
	FrameDelimited      FrameType = "DELIMITED"
	FrameLengthPrefixed FrameType = "LENGTH_PREFIXED"
)

// ChecksumType selects the integrity algorithm applied to a frame.
type ChecksumType string

const (
	ChecksumNone  ChecksumType = "NONE"
	ChecksumCRC16 ChecksumType = "CRC16"
	ChecksumCRC32 ChecksumType = "CRC32"
	ChecksumSUM8  ChecksumType = "SUM8"
)

// Field describes one named region of a frame.
type Field struct {
	Name        string    `json:"name" yaml:"name"`
	Offset      int       `json:"offset" yaml:"offset"`
	Length      int       `json:"length" yaml:"length"`
	DataType    DataType  `json:"data_type" yaml:"data_type"`
	ByteOrder   ByteOrder `json:"byte_order" yaml:"byte_order"`
	Scale       *float64  `json:"scale,omitempty" yaml:"scale,omitempty"`
	OffsetValue *float64  `json:"offset_value,omitempty" yaml:"offset_value,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
}

// Schema is an immutable-once-published binary frame layout.
type Schema struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`

	FrameType    FrameType `json:"frame_type" yaml:"frame_type"`
	TotalLength  int       `json:"total_length" yaml:"total_length"`
	Delimiter    []byte    `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`
	HeaderLength int       `json:"header_length,omitempty" yaml:"header_length,omitempty"`

	Fields []Field `json:"fields" yaml:"fields"`

	ChecksumType   ChecksumType `json:"checksum_type" yaml:"checksum_type"`
	ChecksumOffset int          `json:"checksum_offset,omitempty" yaml:"checksum_offset,omitempty"`
	ChecksumLength int          `json:"checksum_length,omitempty" yaml:"checksum_length,omitempty"`
}

// Validate checks the structural invariants from spec.md §3: every field
// lies within [0, TotalLength), fields do not overlap, and a checksum
// window (if any) excludes itself and has concrete bounds.
func (s *Schema) Validate() error {
	if s.TotalLength <= 0 {
		return gwerrors.New(gwerrors.KindConfig, gwerrors.CodeInvalidSchema, "total_length must be positive")
	}

	occupied := make([]bool, s.TotalLength)
	for _, f := range s.Fields {
		if f.Offset < 0 || f.Length <= 0 || f.Offset+f.Length > s.TotalLength {
			return gwerrors.New(gwerrors.KindConfig, gwerrors.CodeInvalidSchema,
				fmt.Sprintf("field %q out of bounds: [%d,%d) not within [0,%d)", f.Name, f.Offset, f.Offset+f.Length, s.TotalLength))
		}
		if f.DataType != TypeString {
			if want := f.DataType.Size(); want != 0 && want != f.Length {
				return gwerrors.New(gwerrors.KindConfig, gwerrors.CodeInvalidSchema,
					fmt.Sprintf("field %q length %d does not match %s size %d", f.Name, f.Length, f.DataType, want))
			}
		}
		for i := f.Offset; i < f.Offset+f.Length; i++ {
			if occupied[i] {
				return gwerrors.New(gwerrors.KindConfig, gwerrors.CodeInvalidSchema,
					fmt.Sprintf("field %q overlaps another field at byte %d", f.Name, i))
			}
			occupied[i] = true
		}
	}

	if s.ChecksumType != ChecksumNone {
		if s.ChecksumLength <= 0 || s.ChecksumOffset < 0 || s.ChecksumOffset+s.ChecksumLength > s.TotalLength {
			return gwerrors.New(gwerrors.KindConfig, gwerrors.CodeInvalidSchema, "checksum offset/length must be set and within total_length")
		}
	}

	return nil
}
