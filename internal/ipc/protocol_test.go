package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/1broseidon/inkmux/internal/protocol"
)

func TestRequestWireLayout(t *testing.T) {
	b, _ := Request{Kind: KindSwitchTo, PID: 4242}.MarshalBinary()
	want := []byte{3, 0, 0, 0, 0x92, 0x10, 0, 0}
	if !bytes.Equal(b, want) {
		t.Fatalf("MarshalBinary() = %v, want %v", b, want)
	}

	var got Request
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary() error: %v", err)
	}
	if got != (Request{Kind: KindSwitchTo, PID: 4242}) {
		t.Fatalf("UnmarshalBinary() = %+v", got)
	}
}

func TestRequestRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"short", []byte{1, 0, 0}},
		{"long", make([]byte, RequestSize+1)},
		{"kind zero", make([]byte, RequestSize)},
		{"kind five", []byte{5, 0, 0, 0, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r Request
			if err := r.UnmarshalBinary(tt.in); !errors.Is(err, protocol.ErrMalformed) {
				t.Fatalf("UnmarshalBinary() error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestRecordLayout(t *testing.T) {
	b := EncodeClients([]ClientRecord{{PID: 7, Active: true, Name: "notes"}})
	if len(b) != 4+RecordSize {
		t.Fatalf("len = %d, want %d", len(b), 4+RecordSize)
	}
	if got := binary.LittleEndian.Uint32(b); got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
	rec := b[4:]
	if got := binary.LittleEndian.Uint32(rec); got != 7 {
		t.Fatalf("pid = %d, want 7", got)
	}
	if rec[4] != 1 || rec[5] != 0 || rec[6] != 0 || rec[7] != 0 {
		t.Fatalf("active+pad = %v, want [1 0 0 0]", rec[4:8])
	}
	if got := string(rec[8:13]); got != "notes" {
		t.Fatalf("name = %q, want %q", got, "notes")
	}
	if rec[13] != 0 {
		t.Fatalf("name is not NUL terminated")
	}
}

func TestEncodeClients_TruncatesTo64(t *testing.T) {
	var records []ClientRecord
	for i := 0; i < 100; i++ {
		records = append(records, ClientRecord{PID: int32(i + 1), Name: "app"})
	}
	b := EncodeClients(records)
	if len(b) != MaxResponseSize {
		t.Fatalf("len = %d, want %d", len(b), MaxResponseSize)
	}
	got, err := DecodeClients(b)
	if err != nil {
		t.Fatalf("DecodeClients() error: %v", err)
	}
	if len(got) != MaxClients {
		t.Fatalf("decoded %d records, want %d", len(got), MaxClients)
	}
	if got[63].PID != 64 {
		t.Fatalf("last record pid = %d, want 64", got[63].PID)
	}
}

func TestDecodeClients_CountMustMatch(t *testing.T) {
	b := EncodeClients([]ClientRecord{{PID: 1}, {PID: 2}})
	if _, err := DecodeClients(b[:len(b)-1]); !errors.Is(err, protocol.ErrMalformed) {
		t.Fatalf("truncated list error = %v, want ErrMalformed", err)
	}
	binary.LittleEndian.PutUint32(b, 3)
	if _, err := DecodeClients(b); !errors.Is(err, protocol.ErrMalformed) {
		t.Fatalf("count mismatch error = %v, want ErrMalformed", err)
	}
	if _, err := DecodeClients([]byte{0, 0}); !errors.Is(err, protocol.ErrMalformed) {
		t.Fatalf("short list error = %v, want ErrMalformed", err)
	}
}

func TestEncodeName_Truncates(t *testing.T) {
	long := strings.Repeat("x", 40)
	name := EncodeName(long)
	if name[NameSize-1] != 0 {
		t.Fatal("last byte should stay NUL")
	}
	if got := DecodeName(name[:]); got != strings.Repeat("x", NameSize-1) {
		t.Fatalf("DecodeName() = %q", got)
	}
}

func TestKindString(t *testing.T) {
	if got := KindGetFramebuffer.String(); got != "GET_FB" {
		t.Fatalf("String() = %q, want GET_FB", got)
	}
	if got := Kind(9).String(); got != "Kind(9)" {
		t.Fatalf("String() = %q, want Kind(9)", got)
	}
}
