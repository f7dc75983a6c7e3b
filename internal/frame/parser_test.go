package frame

import (
	"math/rand"
	"testing"

	"github.com/ocx/gateway/internal/gwerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float64p(f float64) *float64 { return &f }

func temperatureHumiditySchema() *Schema {
	return &Schema{
		Name:        "temp_humidity",
		FrameType:   FrameFixed,
		TotalLength: 8,
		Fields: []Field{
			{Name: "temperature", Offset: 0, Length: 4, DataType: TypeFloat32, ByteOrder: LittleEndian},
			{Name: "humidity", Offset: 4, Length: 4, DataType: TypeFloat32, ByteOrder: LittleEndian},
		},
		ChecksumType: ChecksumNone,
	}
}

func TestCRC16Modbus_KnownVector(t *testing.T) {
	// CRC register value for 01 03 00 00 00 0A under the MODBUS variant
	// (init 0xFFFF, poly 0xA001, LSB-first); spec.md §8 quotes this vector
	// byte-swapped (0xC5CD) as it appears on the wire, not as the register.
	data := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A}
	assert.Equal(t, uint16(0xCDC5), CRC16Modbus(data))
}

func TestParse_TemperatureScenario(t *testing.T) {
	schema := temperatureHumiditySchema()
	require.NoError(t, schema.Validate())

	raw, err := Encode(schema, map[string]any{"temperature": 25.5, "humidity": 60.0})
	require.NoError(t, err)

	p := NewParser(schema)
	result, err := p.Parse(raw)
	require.NoError(t, err)
	assert.InDelta(t, 25.5, result["temperature"].(float64), 1e-5)
	assert.InDelta(t, 60.0, result["humidity"].(float64), 1e-5)
}

func TestParse_InsufficientData(t *testing.T) {
	schema := temperatureHumiditySchema()
	p := NewParser(schema)

	_, err := p.Parse([]byte{0x01, 0x02, 0x03})
	require.Error(t, err)
	code, ok := gwerrors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, gwerrors.CodeInsufficientData, code)
}

func TestParse_ChecksumMismatch(t *testing.T) {
	schema := &Schema{
		Name:        "with_crc",
		FrameType:   FrameFixed,
		TotalLength: 10,
		Fields: []Field{
			{Name: "value", Offset: 0, Length: 4, DataType: TypeUint32, ByteOrder: BigEndian},
		},
		ChecksumType:   ChecksumCRC16,
		ChecksumOffset: 8,
		ChecksumLength: 2,
	}
	require.NoError(t, schema.Validate())

	raw, err := Encode(schema, map[string]any{"value": uint64(42)})
	require.NoError(t, err)

	raw[8] ^= 0xFF // corrupt the checksum field

	p := NewParser(schema)
	_, err = p.Parse(raw)
	require.Error(t, err)
	code, _ := gwerrors.CodeOf(err)
	assert.Equal(t, gwerrors.CodeChecksumMismatch, code)
}

func TestParse_ScaleAndOffset(t *testing.T) {
	schema := &Schema{
		Name:        "scaled",
		FrameType:   FrameFixed,
		TotalLength: 2,
		Fields: []Field{
			{Name: "scaled_temp", Offset: 0, Length: 2, DataType: TypeUint16, ByteOrder: BigEndian,
				Scale: float64p(0.1), OffsetValue: float64p(-40)},
		},
	}
	raw := []byte{0x01, 0xF4} // 500
	p := NewParser(schema)
	result, err := p.Parse(raw)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, result["scaled_temp"].(float64), 1e-9) // 500*0.1-40
}

func TestParse_StringTrimsNulAndDecodesUTF8(t *testing.T) {
	schema := &Schema{
		Name:        "str",
		FrameType:   FrameFixed,
		TotalLength: 8,
		Fields: []Field{
			{Name: "label", Offset: 0, Length: 8, DataType: TypeString},
		},
	}
	raw := []byte("abc\x00\x00\x00\x00\x00")
	p := NewParser(schema)
	result, err := p.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "abc", result["label"])
}

func TestParseBatch_MatchesIteratedParse(t *testing.T) {
	schema := temperatureHumiditySchema()
	p := NewParser(schema)

	rng := rand.New(rand.NewSource(42))
	var buffers [][]byte
	var expected []map[string]any
	for i := 0; i < 20; i++ {
		temp := rng.Float64()*100 - 20
		hum := rng.Float64() * 100
		buf, err := Encode(schema, map[string]any{"temperature": temp, "humidity": hum})
		require.NoError(t, err)
		buffers = append(buffers, buf)

		r, err := p.Parse(buf)
		require.NoError(t, err)
		expected = append(expected, r)
	}

	results, err := p.ParseBatch(buffers)
	require.NoError(t, err)
	require.Len(t, results, len(expected))
	for i := range results {
		assert.InDelta(t, expected[i]["temperature"].(float64), results[i]["temperature"].(float64), 1e-5)
		assert.InDelta(t, expected[i]["humidity"].(float64), results[i]["humidity"].(float64), 1e-5)
	}
}

func TestParseBatch_ShortCircuitsOnFirstError(t *testing.T) {
	schema := temperatureHumiditySchema()
	p := NewParser(schema)

	good, err := Encode(schema, map[string]any{"temperature": 1.0, "humidity": 2.0})
	require.NoError(t, err)

	_, err = p.ParseBatch([][]byte{good, {0x00, 0x01}})
	require.Error(t, err)
}

func TestEncodeParseRoundTrip_Float64(t *testing.T) {
	schema := &Schema{
		Name:        "f64",
		FrameType:   FrameFixed,
		TotalLength: 8,
		Fields: []Field{
			{Name: "v", Offset: 0, Length: 8, DataType: TypeFloat64, ByteOrder: BigEndian},
		},
	}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		v := (rng.Float64() - 0.5) * 1e6
		buf, err := Encode(schema, map[string]any{"v": v})
		require.NoError(t, err)
		result, err := NewParser(schema).Parse(buf)
		require.NoError(t, err)
		assert.InDelta(t, v, result["v"].(float64), 1e-10)
	}
}

func TestSchemaValidate_RejectsOverlap(t *testing.T) {
	schema := &Schema{
		TotalLength: 4,
		Fields: []Field{
			{Name: "a", Offset: 0, Length: 2, DataType: TypeUint16, ByteOrder: BigEndian},
			{Name: "b", Offset: 1, Length: 2, DataType: TypeUint16, ByteOrder: BigEndian},
		},
	}
	require.Error(t, schema.Validate())
}

func TestSchemaValidate_RejectsOutOfBounds(t *testing.T) {
	schema := &Schema{
		TotalLength: 4,
		Fields: []Field{
			{Name: "a", Offset: 2, Length: 4, DataType: TypeUint32, ByteOrder: BigEndian},
		},
	}
	require.Error(t, schema.Validate())
}
