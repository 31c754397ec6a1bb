package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/rakunlabs/wasmsvc/internal/abi"
	"github.com/rakunlabs/wasmsvc/internal/abierr"
)

// Decoder reads a value tree from a fixed byte slice, tracking a cursor.
// Buffer underflow surfaces as a structured serialization error (§4.5).
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder wraps buf for reading.
func NewDecoder(buf []byte) *Decoder { return &Decoder{buf: buf} }

// Pos returns the current read cursor, useful for callers that decode a
// sequence of top-level values back to back.
func (d *Decoder) Pos() int { return d.pos }

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.pos }

func (d *Decoder) need(n int) error {
	if d.pos+n > len(d.buf) {
		return abierr.Serialization(abierr.CodeBufferUnderflow,
			fmt.Sprintf("need %d bytes at offset %d, have %d", n, d.pos, len(d.buf)-d.pos))
	}
	return nil
}

func (d *Decoder) readByte() (byte, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *Decoder) readFixed(n int) ([]byte, error) {
	if err := d.need(n); err != nil {
		return nil, err
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *Decoder) readU32() (uint32, error) {
	b, err := d.readFixed(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Decoder) readU64() (uint64, error) {
	b, err := d.readFixed(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Decode reads one value satisfying ref from the current cursor.
func (d *Decoder) Decode(m *abi.Manifest, ref abi.TypeRef) (any, error) {
	switch ref.Kind {
	case abi.RefScalar:
		return d.decodeScalar(ref.Scalar)
	case abi.RefOption:
		return d.decodeOption(m, *ref.Elem)
	case abi.RefList:
		return d.decodeList(m, *ref.Elem)
	case abi.RefSet:
		return d.decodeList(m, *ref.Elem)
	case abi.RefMap:
		return d.decodeMap(m, *ref.Key, *ref.Value)
	case abi.RefNamed:
		td, err := m.Resolve(ref.Name)
		if err != nil {
			return nil, err
		}
		return d.decodeNamed(m, ref.Name, td)
	default:
		return nil, abierr.Serialization(abierr.CodeTypeMismatch, fmt.Sprintf("unknown TypeRef kind %q", ref.Kind))
	}
}

func (d *Decoder) decodeScalar(s abi.Scalar) (any, error) {
	switch s {
	case abi.ScalarBool:
		b, err := d.readByte()
		if err != nil {
			return nil, err
		}
		return b != 0, nil
	case abi.ScalarU8:
		b, err := d.readByte()
		return uint8(b), err
	case abi.ScalarI8:
		b, err := d.readByte()
		return int8(b), err
	case abi.ScalarU16:
		b, err := d.readFixed(2)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.Uint16(b), nil
	case abi.ScalarI16:
		b, err := d.readFixed(2)
		if err != nil {
			return nil, err
		}
		return int16(binary.LittleEndian.Uint16(b)), nil
	case abi.ScalarU32:
		v, err := d.readU32()
		return v, err
	case abi.ScalarI32:
		v, err := d.readU32()
		return int32(v), err
	case abi.ScalarU64:
		v, err := d.readU64()
		return v, err
	case abi.ScalarI64:
		v, err := d.readU64()
		return int64(v), err
	case abi.ScalarU128:
		lo, err := d.readU64()
		if err != nil {
			return nil, err
		}
		hi, err := d.readU64()
		if err != nil {
			return nil, err
		}
		return bigFromHalves(lo, hi), nil
	case abi.ScalarI128:
		lo, err := d.readU64()
		if err != nil {
			return nil, err
		}
		hi, err := d.readU64()
		if err != nil {
			return nil, err
		}
		return signedFromHalves(lo, hi), nil
	case abi.ScalarF32:
		v, err := d.readU32()
		if err != nil {
			return nil, err
		}
		return math.Float32frombits(v), nil
	case abi.ScalarF64:
		v, err := d.readU64()
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(v), nil
	case abi.ScalarString:
		n, err := d.readU32()
		if err != nil {
			return nil, err
		}
		b, err := d.readFixed(int(n))
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case abi.ScalarBytes:
		n, err := d.readU32()
		if err != nil {
			return nil, err
		}
		b, err := d.readFixed(int(n))
		if err != nil {
			return nil, err
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		return cp, nil
	case abi.ScalarUnit:
		return nil, nil
	default:
		return nil, abierr.Serialization(abierr.CodeTypeMismatch, fmt.Sprintf("unknown scalar %q", s))
	}
}

func (d *Decoder) decodeOption(m *abi.Manifest, elem abi.TypeRef) (any, error) {
	tag, err := d.readByte()
	if err != nil {
		return nil, err
	}
	if tag == 0 {
		return nil, nil
	}
	if tag != 1 {
		return nil, abierr.Serialization(abierr.CodeInvalidFormat, fmt.Sprintf("option tag must be 0 or 1, got %d", tag))
	}
	return d.Decode(m, elem)
}

func (d *Decoder) decodeList(m *abi.Manifest, elem abi.TypeRef) (any, error) {
	n, err := d.readU32()
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := d.Decode(m, elem)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (d *Decoder) decodeMap(m *abi.Manifest, key, val abi.TypeRef) (any, error) {
	n, err := d.readU32()
	if err != nil {
		return nil, err
	}
	out := make([]Pair, 0, n)
	for i := uint32(0); i < n; i++ {
		k, err := d.Decode(m, key)
		if err != nil {
			return nil, err
		}
		v, err := d.Decode(m, val)
		if err != nil {
			return nil, err
		}
		out = append(out, Pair{Key: k, Value: v})
	}
	return out, nil
}

func (d *Decoder) decodeNamed(m *abi.Manifest, name string, td abi.TypeDef) (any, error) {
	switch td.Kind {
	case abi.TypeDefRecord:
		fields := make(map[string]any, len(td.Fields))
		for _, f := range td.Fields {
			v, err := d.Decode(m, f.Type)
			if err != nil {
				return nil, fmt.Errorf("record %q field %q: %w", name, f.Name, err)
			}
			fields[f.Name] = v
		}
		return fields, nil
	case abi.TypeDefVariant:
		ordinal, err := d.readByte()
		if err != nil {
			return nil, err
		}
		if int(ordinal) >= len(td.Variants) {
			return nil, abierr.Serialization(abierr.CodeVariantMismatch, fmt.Sprintf("variant %q ordinal %d out of range", name, ordinal))
		}
		arm := td.Variants[ordinal]
		if arm.Payload == nil {
			return Variant{Name: arm.Name}, nil
		}
		payload, err := d.Decode(m, *arm.Payload)
		if err != nil {
			return nil, fmt.Errorf("variant %q arm %q: %w", name, arm.Name, err)
		}
		return Variant{Name: arm.Name, Payload: payload}, nil
	case abi.TypeDefBytesAlias:
		if !td.Variable {
			b, err := d.readFixed(td.FixedSize)
			if err != nil {
				return nil, err
			}
			cp := make([]byte, len(b))
			copy(cp, b)
			return cp, nil
		}
		n, err := d.readU32()
		if err != nil {
			return nil, err
		}
		b, err := d.readFixed(int(n))
		if err != nil {
			return nil, err
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		return cp, nil
	case abi.TypeDefAlias:
		return d.Decode(m, *td.Alias)
	default:
		return nil, abierr.ABI(abierr.CodeUnsupportedType, fmt.Sprintf("unsupported type def kind %q", td.Kind))
	}
}

// Decode is the package-level convenience wrapper.
func Decode(m *abi.Manifest, ref abi.TypeRef, buf []byte) (any, error) {
	d := NewDecoder(buf)
	v, err := d.Decode(m, ref)
	if err != nil {
		return nil, err
	}
	if d.Remaining() != 0 {
		return nil, abierr.Serialization(abierr.CodeInvalidFormat, fmt.Sprintf("%d trailing bytes after decode", d.Remaining()))
	}
	return v, nil
}
