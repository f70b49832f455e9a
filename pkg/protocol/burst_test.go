package protocol

import (
	"errors"
	"io"
	"reflect"
	"testing"
)

func TestBurstRoundTrip(t *testing.T) {
	in := &Burst{
		SyncID:      7,
		SecurityKey: "0b6c7c84-5e0b-4bd1-9d4c-08f5c3c9a3a1",
		RepaintAll:  true,
		Changes: []VariableChange{
			{PaintableID: "PID1", Name: "text", Value: "hello"},
			{PaintableID: "PID1", Name: "cursor", Value: int64(5)},
			{PaintableID: "PID2", Name: "checked", Value: true},
			{PaintableID: "PID1", Name: "text", Value: "hello world"},
		},
	}

	data, err := EncodeBurst(in)
	if err != nil {
		t.Fatalf("EncodeBurst() error = %v", err)
	}
	out, err := DecodeBurst(data)
	if err != nil {
		t.Fatalf("DecodeBurst() error = %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("DecodeBurst() = %+v, want %+v", out, in)
	}
}

func TestDecodeBurstEmpty(t *testing.T) {
	data, err := EncodeBurst(&Burst{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := DecodeBurst(data)
	if err != nil {
		t.Fatalf("DecodeBurst() error = %v", err)
	}
	if len(b.Changes) != 0 || b.RepaintAll || b.SyncID != 0 {
		t.Errorf("DecodeBurst() = %+v", b)
	}
}

func TestDecodeBurstMalformed(t *testing.T) {
	valid, err := EncodeBurst(&Burst{
		SecurityKey: "k",
		Changes:     []VariableChange{{PaintableID: "PID1", Name: "v", Value: "x"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < len(valid); i++ {
		if _, err := DecodeBurst(valid[:i]); err == nil {
			t.Errorf("DecodeBurst(truncated to %d) succeeded", i)
		}
	}

	if _, err := DecodeBurst(append(append([]byte{}, valid...), 0)); !errors.Is(err, ErrTrailingData) {
		t.Errorf("trailing byte: error = %v, want ErrTrailingData", err)
	}
	if _, err := DecodeBurst([]byte{0x00, 0x00, 0x00, 0x10}); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("count past end: error = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	in := &Response{
		SyncID:     3,
		RepaintAll: false,
		Changes: []PaintChange{
			{
				PaintableID: "PID0",
				Tag:         "root",
				Attributes:  map[string]any{"caption": "Main"},
				Variables:   map[string]any{},
				Children:    []string{"PID1", "PID2"},
			},
			{
				PaintableID: "PID1",
				Tag:         "upload",
				Attributes:  map[string]any{"target": "app://APP/UPLOAD/PID1/file/k"},
				Variables:   map[string]any{"busy": false},
			},
		},
		Removed: []string{"PID9"},
	}

	data, err := EncodeResponse(in)
	if err != nil {
		t.Fatalf("EncodeResponse() error = %v", err)
	}
	out, err := DecodeResponse(data)
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("DecodeResponse() = %+v, want %+v", out, in)
	}
}

func TestEncodeResponseUnsupportedValue(t *testing.T) {
	r := &Response{Changes: []PaintChange{{
		PaintableID: "PID1",
		Attributes:  map[string]any{"bad": make(chan int)},
	}}}
	if _, err := EncodeResponse(r); !errors.Is(err, ErrUnsupportedValue) {
		t.Errorf("EncodeResponse() error = %v, want ErrUnsupportedValue", err)
	}
}

func TestResponseEmpty(t *testing.T) {
	if !(&Response{SyncID: 1}).Empty() {
		t.Error("Empty() = false for response without changes")
	}
	if (&Response{Removed: []string{"PID1"}}).Empty() {
		t.Error("Empty() = true for response with removals")
	}
}
