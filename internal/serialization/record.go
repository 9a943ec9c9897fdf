// Package serialization frames the records the store keeps in Redis. Every
// value starts with a one-byte Format: JSON for schedules, sub-tasks, flows and
// operation metadata, protobuf Structs for change-log snapshots.
package serialization

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Format is the one-byte prefix of a stored record
type Format byte

const (
	FormatJSON     Format = 0x00
	FormatProtobuf Format = 0x01
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatProtobuf:
		return "protobuf"
	default:
		return fmt.Sprintf("Format(0x%02X)", byte(f))
	}
}

var (
	// ErrUnknownFormat is returned for a prefix byte no Format uses
	ErrUnknownFormat = errors.New("unknown record format")

	ErrEncode = errors.New("failed to encode record")
	ErrDecode = errors.New("failed to decode record")
)

func frame(f Format, body []byte) []byte {
	out := make([]byte, 0, len(body)+1)
	out = append(out, byte(f))
	return append(out, body...)
}

// Split returns a record's format and body. Records written by hand as bare
// JSON objects carry no prefix and are reported as JSON.
func Split(data []byte) (Format, []byte, error) {
	if len(data) == 0 {
		return 0, nil, fmt.Errorf("%w: empty record", ErrDecode)
	}

	switch f := Format(data[0]); f {
	case FormatJSON:
		if len(data) == 1 {
			return f, nil, fmt.Errorf("%w: JSON prefix without body", ErrDecode)
		}
		return f, data[1:], nil
	case FormatProtobuf:
		// An empty Struct encodes to zero bytes
		return f, data[1:], nil
	}

	if data[0] == '{' {
		return FormatJSON, data, nil
	}
	return 0, nil, fmt.Errorf("%w: prefix 0x%02X", ErrUnknownFormat, data[0])
}

// EncodeRecord frames v as JSON
func EncodeRecord(v interface{}) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return frame(FormatJSON, body), nil
}

// DecodeRecord reads a JSON record, framed or bare, into v
func DecodeRecord(data []byte, v interface{}) error {
	f, body, err := Split(data)
	if err != nil {
		return err
	}
	if f != FormatJSON {
		return fmt.Errorf("%w: %s record where JSON was expected", ErrDecode, f)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}
