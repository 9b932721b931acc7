package wire

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	wr := WriteRequest{DataSize: 15, BlockCount: 2, Nonce: 42, ID: "x", Info: []byte("app")}
	raw, err := Encode(KindWriteRequest, wr)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	kind, payload, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if kind != KindWriteRequest {
		t.Fatalf("kind = %q, want %q", kind, KindWriteRequest)
	}

	var got WriteRequest
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if !reflect.DeepEqual(got, wr) {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, wr)
	}
}

func TestEncodeDecodeData(t *testing.T) {
	d := Data{BlockNumber: 3, Nonce: 7, Data: []byte("hello")}
	raw, err := Encode(KindData, d)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	kind, payload, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if kind != KindData {
		t.Fatalf("kind = %q, want %q", kind, KindData)
	}
	var got Data
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if string(got.Data) != "hello" || got.BlockNumber != 3 || got.Nonce != 7 {
		t.Fatalf("got %+v", got)
	}
}
