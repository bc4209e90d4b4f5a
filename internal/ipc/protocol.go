package ipc

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/1broseidon/inkmux/internal/protocol"
)

// Kind identifies a control request.
type Kind int32

const (
	KindGetClients     Kind = 1
	KindGetFramebuffer Kind = 2
	KindSwitchTo       Kind = 3
	KindSetLauncher    Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindGetClients:
		return "GET_CLIENTS"
	case KindGetFramebuffer:
		return "GET_FB"
	case KindSwitchTo:
		return "SWITCH_TO"
	case KindSetLauncher:
		return "SET_LAUNCHER"
	default:
		return fmt.Sprintf("Kind(%d)", int32(k))
	}
}

// Wire sizes of the control socket messages.
const (
	RequestSize = 8
	RecordSize  = 40
	NameSize    = 32
	// MaxClients caps the records in one GetClients response.
	MaxClients = 64
	// MaxResponseSize is the largest GetClients response.
	MaxResponseSize = 4 + MaxClients*RecordSize
)

// Request is a control request: {kind int32, pid int32}, little-endian.
type Request struct {
	Kind Kind
	PID  int32
}

// MarshalBinary encodes r.
func (r Request) MarshalBinary() ([]byte, error) {
	b := make([]byte, RequestSize)
	binary.LittleEndian.PutUint32(b[0:], uint32(r.Kind))
	binary.LittleEndian.PutUint32(b[4:], uint32(r.PID))
	return b, nil
}

// UnmarshalBinary decodes exactly RequestSize bytes with a known kind.
func (r *Request) UnmarshalBinary(b []byte) error {
	if len(b) != RequestSize {
		return fmt.Errorf("%w: control request is %d bytes, want %d", protocol.ErrMalformed, len(b), RequestSize)
	}
	kind := Kind(int32(binary.LittleEndian.Uint32(b[0:])))
	if kind < KindGetClients || kind > KindSetLauncher {
		return fmt.Errorf("%w: unknown control kind %d", protocol.ErrMalformed, int32(kind))
	}
	r.Kind = kind
	r.PID = int32(binary.LittleEndian.Uint32(b[4:]))
	return nil
}

// ClientRecord describes one registered client.
type ClientRecord struct {
	PID    int32
	Active bool
	Name   string
}

// appendRecord encodes {pid int32, active byte, 3 pad, name[32]}. Names are
// cut to leave room for a terminating NUL.
func appendRecord(b []byte, r ClientRecord) []byte {
	var rec [RecordSize]byte
	binary.LittleEndian.PutUint32(rec[0:], uint32(r.PID))
	if r.Active {
		rec[4] = 1
	}
	name := EncodeName(r.Name)
	copy(rec[8:], name[:])
	return append(b, rec[:]...)
}

func decodeRecord(b []byte) ClientRecord {
	return ClientRecord{
		PID:    int32(binary.LittleEndian.Uint32(b[0:])),
		Active: b[4] != 0,
		Name:   DecodeName(b[8 : 8+NameSize]),
	}
}

// EncodeClients builds a GetClients response. Only the first MaxClients
// records are sent and the count always matches them.
func EncodeClients(records []ClientRecord) []byte {
	if len(records) > MaxClients {
		records = records[:MaxClients]
	}
	b := make([]byte, 4, 4+len(records)*RecordSize)
	binary.LittleEndian.PutUint32(b, uint32(len(records)))
	for _, r := range records {
		b = appendRecord(b, r)
	}
	return b
}

// DecodeClients parses a GetClients response.
func DecodeClients(b []byte) ([]ClientRecord, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("%w: client list is %d bytes", protocol.ErrMalformed, len(b))
	}
	count := int32(binary.LittleEndian.Uint32(b))
	if count < 0 || count > MaxClients {
		return nil, fmt.Errorf("%w: client count %d", protocol.ErrMalformed, count)
	}
	if want := 4 + int(count)*RecordSize; len(b) != want {
		return nil, fmt.Errorf("%w: client list is %d bytes, want %d for %d clients", protocol.ErrMalformed, len(b), want, count)
	}
	records := make([]ClientRecord, 0, count)
	for i := 0; i < int(count); i++ {
		off := 4 + i*RecordSize
		records = append(records, decodeRecord(b[off:off+RecordSize]))
	}
	return records, nil
}

// EncodeName packs a client name into the fixed NUL-padded field used by
// the record and session hello layouts.
func EncodeName(name string) [NameSize]byte {
	var out [NameSize]byte
	if len(name) > NameSize-1 {
		name = name[:NameSize-1]
	}
	copy(out[:], name)
	return out
}

// DecodeName reads a NUL-padded name field.
func DecodeName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
