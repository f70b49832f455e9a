package protocol

import (
	"errors"
	"fmt"
	"sort"
)

// ValueType tags a variable value on the wire.
type ValueType uint8

const (
	ValueNil     ValueType = 0x00
	ValueString  ValueType = 0x01
	ValueInt     ValueType = 0x02 // int64, ZigZag varint
	ValueBool    ValueType = 0x03
	ValueFloat   ValueType = 0x04 // float64, big-endian IEEE 754
	ValueStrings ValueType = 0x05 // []string
	ValueMap     ValueType = 0x06 // map[string]any, sorted keys
	ValueList    ValueType = 0x07 // []any
)

var (
	// ErrUnsupportedValue is returned when a value has no wire representation.
	ErrUnsupportedValue = errors.New("protocol: unsupported value type")

	// ErrUnknownValueType is returned when a value tag is not recognised.
	ErrUnknownValueType = errors.New("protocol: unknown value type")
)

// WriteValue appends a tagged value. Integer kinds are widened to int64
// and float32 to float64.
func (e *Encoder) WriteValue(v any) error {
	return e.writeValue(v, 0)
}

func (e *Encoder) writeValue(v any, depth int) error {
	if depth > MaxValueDepth {
		return ErrMaxDepthExceeded
	}
	switch val := v.(type) {
	case nil:
		e.WriteByte(byte(ValueNil))
	case string:
		e.WriteByte(byte(ValueString))
		e.WriteString(val)
	case bool:
		e.WriteByte(byte(ValueBool))
		e.WriteBool(val)
	case int:
		e.writeInt(int64(val))
	case int8:
		e.writeInt(int64(val))
	case int16:
		e.writeInt(int64(val))
	case int32:
		e.writeInt(int64(val))
	case int64:
		e.writeInt(val)
	case uint8:
		e.writeInt(int64(val))
	case uint16:
		e.writeInt(int64(val))
	case uint32:
		e.writeInt(int64(val))
	case float32:
		e.WriteByte(byte(ValueFloat))
		e.WriteFloat64(float64(val))
	case float64:
		e.WriteByte(byte(ValueFloat))
		e.WriteFloat64(val)
	case []string:
		e.WriteByte(byte(ValueStrings))
		e.WriteStrings(val)
	case []any:
		e.WriteByte(byte(ValueList))
		e.WriteUvarint(uint64(len(val)))
		for _, item := range val {
			if err := e.writeValue(item, depth+1); err != nil {
				return err
			}
		}
	case map[string]any:
		e.WriteByte(byte(ValueMap))
		return e.writeMap(val, depth)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
	return nil
}

func (e *Encoder) writeInt(v int64) {
	e.WriteByte(byte(ValueInt))
	e.WriteSvarint(v)
}

// WriteMap appends a map with sorted keys and tagged values, without a
// leading type tag.
func (e *Encoder) WriteMap(m map[string]any) error {
	return e.writeMap(m, 0)
}

func (e *Encoder) writeMap(m map[string]any, depth int) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e.WriteUvarint(uint64(len(keys)))
	for _, k := range keys {
		e.WriteString(k)
		if err := e.writeValue(m[k], depth+1); err != nil {
			return err
		}
	}
	return nil
}

// ReadValue reads a tagged value. Integers decode as int64 and floats as
// float64.
func (d *Decoder) ReadValue() (any, error) {
	return d.readValue(0)
}

func (d *Decoder) readValue(depth int) (any, error) {
	if depth > MaxValueDepth {
		return nil, ErrMaxDepthExceeded
	}
	tag, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	switch ValueType(tag) {
	case ValueNil:
		return nil, nil
	case ValueString:
		return d.ReadString()
	case ValueInt:
		return d.ReadSvarint()
	case ValueBool:
		return d.ReadBool()
	case ValueFloat:
		return d.ReadFloat64()
	case ValueStrings:
		ss, err := d.ReadStrings()
		if err != nil {
			return nil, err
		}
		if ss == nil {
			ss = []string{}
		}
		return ss, nil
	case ValueList:
		count, err := d.ReadCollectionCount()
		if err != nil {
			return nil, err
		}
		list := make([]any, count)
		for i := range list {
			if list[i], err = d.readValue(depth + 1); err != nil {
				return nil, err
			}
		}
		return list, nil
	case ValueMap:
		return d.readMap(depth)
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownValueType, tag)
	}
}

// ReadMap reads a map written by WriteMap.
func (d *Decoder) ReadMap() (map[string]any, error) {
	return d.readMap(0)
}

func (d *Decoder) readMap(depth int) (map[string]any, error) {
	count, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	m := make(map[string]any, count)
	for i := 0; i < count; i++ {
		k, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		if m[k], err = d.readValue(depth + 1); err != nil {
			return nil, err
		}
	}
	return m, nil
}
