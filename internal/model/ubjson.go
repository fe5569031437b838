package model

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
)

// maxUBJSONDepth bounds container nesting; XGBoost models nest about six deep.
const maxUBJSONDepth = 64

var errUBJSONNonFinite = errors.New("ubjson: non-finite number")

// loadUBJSONBooster reads a model saved with XGBoost's UBJSON serialization.
// XGBoost 2.1 and later write this format for any file name not ending in
// ".json", including the customary model.bst.
func loadUBJSONBooster(path string) (*jsonBooster, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := ubjsonToJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode model ubjson: %w", err)
	}
	return parseJSONBooster(doc)
}

// ubjsonToJSON transcodes one UBJSON (draft 12) document into JSON so it can
// share the JSON model decoder. Optimized containers ($type and #count) are
// supported since XGBoost writes every numeric array that way.
func ubjsonToJSON(payload []byte) ([]byte, error) {
	d := &ubjDecoder{data: payload}
	var buf bytes.Buffer
	buf.Grow(len(payload) * 2)

	m, err := d.marker()
	if err != nil {
		return nil, err
	}
	if err := d.value(&buf, m); err != nil {
		return nil, err
	}
	if d.pos != len(d.data) {
		return nil, fmt.Errorf("ubjson: %d trailing bytes after document", len(d.data)-d.pos)
	}
	return buf.Bytes(), nil
}

type ubjDecoder struct {
	data  []byte
	pos   int
	depth int
}

func (d *ubjDecoder) read(n int) ([]byte, error) {
	if n < 0 || len(d.data)-d.pos < n {
		return nil, io.ErrUnexpectedEOF
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *ubjDecoder) readByte() (byte, error) {
	b, err := d.read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// marker returns the next type marker, skipping no-op markers.
func (d *ubjDecoder) marker() (byte, error) {
	for {
		m, err := d.readByte()
		if err != nil || m != 'N' {
			return m, err
		}
	}
}

func (d *ubjDecoder) value(buf *bytes.Buffer, m byte) error {
	switch m {
	case 'Z':
		buf.WriteString("null")
	case 'T':
		buf.WriteString("true")
	case 'F':
		buf.WriteString("false")
	case 'i', 'U', 'I', 'l', 'L':
		n, err := d.integer(m)
		if err != nil {
			return err
		}
		buf.WriteString(strconv.FormatInt(n, 10))
	case 'd':
		b, err := d.read(4)
		if err != nil {
			return err
		}
		return writeFloat(buf, float64(math.Float32frombits(binary.BigEndian.Uint32(b))), 32)
	case 'D':
		b, err := d.read(8)
		if err != nil {
			return err
		}
		return writeFloat(buf, math.Float64frombits(binary.BigEndian.Uint64(b)), 64)
	case 'H':
		s, err := d.str()
		if err != nil {
			return err
		}
		if !json.Valid([]byte(s)) {
			return fmt.Errorf("ubjson: invalid high-precision number %q", s)
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return fmt.Errorf("ubjson: invalid high-precision number %q", s)
		}
		buf.WriteString(s)
	case 'C':
		c, err := d.readByte()
		if err != nil {
			return err
		}
		writeString(buf, string(rune(c)))
	case 'S':
		s, err := d.str()
		if err != nil {
			return err
		}
		writeString(buf, s)
	case '[':
		return d.array(buf)
	case '{':
		return d.object(buf)
	default:
		return fmt.Errorf("ubjson: unexpected marker %q at offset %d", m, d.pos-1)
	}
	return nil
}

// integer reads a big-endian integer of the width named by marker m.
func (d *ubjDecoder) integer(m byte) (int64, error) {
	var width int
	switch m {
	case 'i', 'U':
		width = 1
	case 'I':
		width = 2
	case 'l':
		width = 4
	case 'L':
		width = 8
	default:
		return 0, fmt.Errorf("ubjson: expected integer marker, got %q at offset %d", m, d.pos-1)
	}
	b, err := d.read(width)
	if err != nil {
		return 0, err
	}
	switch m {
	case 'i':
		return int64(int8(b[0])), nil
	case 'U':
		return int64(b[0]), nil
	case 'I':
		return int64(int16(binary.BigEndian.Uint16(b))), nil
	case 'l':
		return int64(int32(binary.BigEndian.Uint32(b))), nil
	default:
		return int64(binary.BigEndian.Uint64(b)), nil
	}
}

// length reads a string length or container count. A count can never exceed
// the document size, which keeps a corrupt header from driving a huge loop.
func (d *ubjDecoder) length() (int, error) {
	m, err := d.marker()
	if err != nil {
		return 0, err
	}
	n, err := d.integer(m)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > int64(len(d.data)) {
		return 0, fmt.Errorf("ubjson: invalid length %d at offset %d", n, d.pos)
	}
	return int(n), nil
}

func (d *ubjDecoder) str() (string, error) {
	n, err := d.length()
	if err != nil {
		return "", err
	}
	b, err := d.read(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// header reads the optional $type and #count of a container. When the
// container is not counted, count is -1 and next holds the first marker
// of its body.
func (d *ubjDecoder) header() (elemType byte, count int, next byte, err error) {
	m, err := d.marker()
	if err != nil {
		return 0, 0, 0, err
	}
	if m == '$' {
		if elemType, err = d.readByte(); err != nil {
			return 0, 0, 0, err
		}
		if m, err = d.marker(); err != nil {
			return 0, 0, 0, err
		}
		if m != '#' {
			return 0, 0, 0, fmt.Errorf("ubjson: typed container without count at offset %d", d.pos-1)
		}
	}
	if m == '#' {
		count, err = d.length()
		return elemType, count, 0, err
	}
	return 0, -1, m, nil
}

func (d *ubjDecoder) enter() error {
	d.depth++
	if d.depth > maxUBJSONDepth {
		return fmt.Errorf("ubjson: nesting deeper than %d", maxUBJSONDepth)
	}
	return nil
}

func (d *ubjDecoder) array(buf *bytes.Buffer) error {
	if err := d.enter(); err != nil {
		return err
	}
	defer func() { d.depth-- }()

	elemType, count, m, err := d.header()
	if err != nil {
		return err
	}
	buf.WriteByte('[')
	if count >= 0 {
		for i := 0; i < count; i++ {
			if i > 0 {
				buf.WriteByte(',')
			}
			t := elemType
			if t == 0 {
				if t, err = d.marker(); err != nil {
					return err
				}
			}
			if err := d.value(buf, t); err != nil {
				return err
			}
		}
	} else {
		for i := 0; m != ']'; i++ {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := d.value(buf, m); err != nil {
				return err
			}
			if m, err = d.marker(); err != nil {
				return err
			}
		}
	}
	buf.WriteByte(']')
	return nil
}

func (d *ubjDecoder) object(buf *bytes.Buffer) error {
	if err := d.enter(); err != nil {
		return err
	}
	defer func() { d.depth-- }()

	elemType, count, m, err := d.header()
	if err != nil {
		return err
	}
	buf.WriteByte('{')
	for i := 0; count < 0 || i < count; i++ {
		if count < 0 {
			if m == '}' {
				break
			}
			// Keys carry no 'S' marker; m is already the key's length marker.
			d.pos--
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := d.str()
		if err != nil {
			return err
		}
		writeString(buf, key)
		buf.WriteByte(':')

		t := elemType
		if t == 0 {
			if t, err = d.marker(); err != nil {
				return err
			}
		}
		if err := d.value(buf, t); err != nil {
			return err
		}
		if count < 0 {
			if m, err = d.marker(); err != nil {
				return err
			}
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeFloat(buf *bytes.Buffer, f float64, bits int) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return errUBJSONNonFinite
	}
	buf.Write(strconv.AppendFloat(nil, f, 'g', -1, bits))
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	// Marshal of a string cannot fail.
	b, _ := json.Marshal(s)
	buf.Write(b)
}
