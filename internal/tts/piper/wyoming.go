package piper

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxFrame bounds a single Wyoming frame; Piper sends audio in small chunks.
const maxFrame = 16 << 20

// event is one Wyoming frame. On the wire it is a header line
// "<body_len> <payload_len>\n", the JSON body, a newline, then
// payload_len raw bytes.
type event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// num reads a numeric data field. JSON numbers decode as float64.
func (e event) num(key string, def int) int {
	if v, ok := e.Data[key].(float64); ok {
		return int(v)
	}
	return def
}

func (e event) str(key, def string) string {
	if v, ok := e.Data[key].(string); ok && v != "" {
		return v
	}
	return def
}

func writeEvent(w io.Writer, e event, payload []byte) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshalling %s event: %w", e.Type, err)
	}
	var frame bytes.Buffer
	frame.Grow(len(body) + len(payload) + 24)
	fmt.Fprintf(&frame, "%d %d\n", len(body), len(payload))
	frame.Write(body)
	frame.WriteByte('\n')
	frame.Write(payload)
	_, err = w.Write(frame.Bytes())
	return err
}

func readEvent(r *bufio.Reader) (event, []byte, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return event{}, nil, fmt.Errorf("reading header: %w", err)
	}
	var bodyLen, payloadLen int
	if _, err := fmt.Sscanf(strings.TrimSpace(line), "%d %d", &bodyLen, &payloadLen); err != nil {
		return event{}, nil, fmt.Errorf("invalid wyoming header %q: %w", line, err)
	}
	if bodyLen < 0 || payloadLen < 0 || bodyLen+payloadLen > maxFrame {
		return event{}, nil, fmt.Errorf("invalid wyoming frame size %d+%d", bodyLen, payloadLen)
	}

	buf := make([]byte, bodyLen+1+payloadLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return event{}, nil, fmt.Errorf("reading frame: %w", err)
	}
	var e event
	if err := json.Unmarshal(buf[:bodyLen], &e); err != nil {
		return event{}, nil, fmt.Errorf("unmarshalling event: %w", err)
	}
	var payload []byte
	if payloadLen > 0 {
		payload = buf[bodyLen+1:]
	}
	return e, payload, nil
}

// pcmFormat describes raw PCM as announced by audio-start.
type pcmFormat struct {
	Rate     int
	Channels int
	Width    int // bytes per sample
}

var defaultFormat = pcmFormat{Rate: 22050, Channels: 1, Width: 2}

// wavHeader is the canonical 44-byte RIFF/WAVE header for PCM.
type wavHeader struct {
	RIFF       [4]byte
	FileSize   uint32
	WAVE       [4]byte
	Fmt        [4]byte
	FmtSize    uint32
	Format     uint16
	Channels   uint16
	SampleRate uint32
	ByteRate   uint32
	BlockAlign uint16
	Bits       uint16
	Data       [4]byte
	DataSize   uint32
}

func encodeWAV(pcm []byte, f pcmFormat) []byte {
	h := wavHeader{
		RIFF:       [4]byte{'R', 'I', 'F', 'F'},
		FileSize:   uint32(36 + len(pcm)),
		WAVE:       [4]byte{'W', 'A', 'V', 'E'},
		Fmt:        [4]byte{'f', 'm', 't', ' '},
		FmtSize:    16,
		Format:     1,
		Channels:   uint16(f.Channels),
		SampleRate: uint32(f.Rate),
		ByteRate:   uint32(f.Rate * f.Channels * f.Width),
		BlockAlign: uint16(f.Channels * f.Width),
		Bits:       uint16(f.Width * 8),
		Data:       [4]byte{'d', 'a', 't', 'a'},
		DataSize:   uint32(len(pcm)),
	}
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	_ = binary.Write(&buf, binary.LittleEndian, h)
	buf.Write(pcm)
	return buf.Bytes()
}
