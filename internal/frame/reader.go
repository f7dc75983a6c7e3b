package frame

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// StreamReader splits a byte stream into discrete frames according to a
// schema's FrameType, accumulating partial reads until one full frame is
// available. Used by the TCP ingress adapter (spec.md §4.3: "partial
// reads accumulate until one frame is emitted").
type StreamReader struct {
	r      *bufio.Reader
	schema *Schema
}

// NewStreamReader wraps r for frame-at-a-time reads against schema.
func NewStreamReader(r io.Reader, schema *Schema) *StreamReader {
	return &StreamReader{r: bufio.NewReader(r), schema: schema}
}

// ReadFrame blocks until one complete frame is available and returns its
// raw bytes (including any header/length-prefix bytes stripped, per
// frame type below), or an error (io.EOF when the stream ends cleanly
// between frames).
func (sr *StreamReader) ReadFrame() ([]byte, error) {
	switch sr.schema.FrameType {
	case FrameFixed:
		return sr.readFixed()
	case FrameDelimited:
		return sr.readDelimited()
	case FrameLengthPrefixed:
		return sr.readLengthPrefixed()
	default:
		return nil, fmt.Errorf("unsupported frame type %q", sr.schema.FrameType)
	}
}

func (sr *StreamReader) readFixed() ([]byte, error) {
	buf := make([]byte, sr.schema.TotalLength)
	if _, err := io.ReadFull(sr.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (sr *StreamReader) readDelimited() ([]byte, error) {
	if len(sr.schema.Delimiter) == 0 {
		return nil, fmt.Errorf("schema %q: DELIMITED frame_type requires a delimiter", sr.schema.Name)
	}
	if len(sr.schema.Delimiter) == 1 {
		line, err := sr.r.ReadBytes(sr.schema.Delimiter[0])
		if err != nil {
			return nil, err
		}
		return line[:len(line)-1], nil
	}
	// Multi-byte delimiter: scan byte-by-byte, matching a rolling suffix.
	var out []byte
	delim := sr.schema.Delimiter
	for {
		b, err := sr.r.ReadByte()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
		if len(out) >= len(delim) && bytesEqual(out[len(out)-len(delim):], delim) {
			return out[:len(out)-len(delim)], nil
		}
	}
}

func (sr *StreamReader) readLengthPrefixed() ([]byte, error) {
	header := sr.schema.HeaderLength
	if header <= 0 {
		header = 2 // default: uint16 length prefix
	}
	prefix := make([]byte, header)
	if _, err := io.ReadFull(sr.r, prefix); err != nil {
		return nil, err
	}

	var payloadLen uint64
	switch header {
	case 1:
		payloadLen = uint64(prefix[0])
	case 2:
		payloadLen = uint64(binary.BigEndian.Uint16(prefix))
	case 4:
		payloadLen = uint64(binary.BigEndian.Uint32(prefix))
	default:
		return nil, fmt.Errorf("unsupported length-prefix header size %d", header)
	}

	body := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(sr.r, body); err != nil {
			return nil, err
		}
	}

	full := make([]byte, 0, len(prefix)+len(body))
	full = append(full, prefix...)
	full = append(full, body...)
	return full, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
