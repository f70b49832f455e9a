package protocol

import (
	"errors"
	"io"
	"math"
	"reflect"
	"testing"
)

func TestVarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 300, 16383, 16384, math.MaxUint32, math.MaxUint64}
	for _, v := range values {
		e := NewEncoder()
		e.WriteUvarint(v)
		if e.Len() != UvarintLen(v) {
			t.Errorf("UvarintLen(%d) = %d, encoded %d bytes", v, UvarintLen(v), e.Len())
		}
		got, n := DecodeUvarint(e.Bytes())
		if n != e.Len() || got != v {
			t.Errorf("DecodeUvarint(%d) = %d, %d", v, got, n)
		}
	}

	signed := []int64{0, -1, 1, -64, 64, math.MinInt64, math.MaxInt64}
	for _, v := range signed {
		e := NewEncoder()
		e.WriteSvarint(v)
		got, n := DecodeSvarint(e.Bytes())
		if n != e.Len() || got != v {
			t.Errorf("DecodeSvarint(%d) = %d, %d", v, got, n)
		}
	}
}

func TestDecodeUvarintErrors(t *testing.T) {
	if _, n := DecodeUvarint([]byte{0x80, 0x80}); n != -1 {
		t.Errorf("incomplete: n = %d, want -1", n)
	}
	overflow := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	if _, n := DecodeUvarint(overflow); n != -2 {
		t.Errorf("overflow: n = %d, want -2", n)
	}

	d := NewDecoder(overflow)
	if _, err := d.ReadUvarint(); !errors.Is(err, ErrVarintOverflow) {
		t.Errorf("ReadUvarint() error = %v, want ErrVarintOverflow", err)
	}
}

func TestDecoderRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		read func(*Decoder) error
		want error
	}{
		{
			name: "bool",
			data: []byte{0x02},
			read: func(d *Decoder) error { _, err := d.ReadBool(); return err },
			want: ErrInvalidBool,
		},
		{
			name: "string_length",
			data: []byte{0x05, 'a'},
			read: func(d *Decoder) error { _, err := d.ReadString(); return err },
			want: io.ErrUnexpectedEOF,
		},
		{
			name: "collection_count",
			data: []byte{0xFF, 0xFF, 0x7F},
			read: func(d *Decoder) error { _, err := d.ReadCollectionCount(); return err },
			want: ErrCollectionTooLarge,
		},
		{
			name: "unknown_value",
			data: []byte{0x42},
			read: func(d *Decoder) error { _, err := d.ReadValue(); return err },
			want: ErrUnknownValueType,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.read(NewDecoder(tc.data)); !errors.Is(err, tc.want) {
				t.Errorf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestValueRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"string", "héllo", "héllo"},
		{"int", 42, int64(42)},
		{"negative", int32(-7), int64(-7)},
		{"uint8", uint8(200), int64(200)},
		{"bool", true, true},
		{"float", 1.5, 1.5},
		{"float32", float32(0.25), 0.25},
		{"strings", []string{"a", "b"}, []string{"a", "b"}},
		{"empty_strings", []string{}, []string{}},
		{"list", []any{"x", 1, false}, []any{"x", int64(1), false}},
		{"map", map[string]any{"b": 2, "a": "1"}, map[string]any{"a": "1", "b": int64(2)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEncoder()
			if err := e.WriteValue(tc.in); err != nil {
				t.Fatalf("WriteValue() error = %v", err)
			}
			d := NewDecoder(e.Bytes())
			got, err := d.ReadValue()
			if err != nil {
				t.Fatalf("ReadValue() error = %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ReadValue() = %#v, want %#v", got, tc.want)
			}
			if !d.EOF() {
				t.Errorf("%d bytes left over", d.Remaining())
			}
		})
	}
}

func TestWriteValueUnsupported(t *testing.T) {
	e := NewEncoder()
	if err := e.WriteValue(struct{}{}); !errors.Is(err, ErrUnsupportedValue) {
		t.Errorf("WriteValue(struct) error = %v, want ErrUnsupportedValue", err)
	}
	if err := e.WriteValue(uint64(1)); !errors.Is(err, ErrUnsupportedValue) {
		t.Errorf("WriteValue(uint64) error = %v, want ErrUnsupportedValue", err)
	}
}

func TestValueDepthLimit(t *testing.T) {
	var v any = "leaf"
	for i := 0; i < MaxValueDepth+2; i++ {
		v = []any{v}
	}
	if err := NewEncoder().WriteValue(v); !errors.Is(err, ErrMaxDepthExceeded) {
		t.Errorf("WriteValue() error = %v, want ErrMaxDepthExceeded", err)
	}

	// Hand-built payload: deeply nested single-element lists.
	var data []byte
	for i := 0; i < MaxValueDepth+2; i++ {
		data = append(data, byte(ValueList), 0x01)
	}
	data = append(data, byte(ValueNil))
	if _, err := NewDecoder(data).ReadValue(); !errors.Is(err, ErrMaxDepthExceeded) {
		t.Errorf("ReadValue() error = %v, want ErrMaxDepthExceeded", err)
	}
}

func TestMapEncodingIsDeterministic(t *testing.T) {
	m := map[string]any{"z": 1, "a": 2, "m": []string{"x"}, "b": map[string]any{"y": 1, "x": 2}}
	first := NewEncoder()
	if err := first.WriteMap(m); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		e := NewEncoder()
		if err := e.WriteMap(m); err != nil {
			t.Fatal(err)
		}
		if string(e.Bytes()) != string(first.Bytes()) {
			t.Fatal("map encoding differs between runs")
		}
	}
}
