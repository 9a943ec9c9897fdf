package serialization

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ToSnapshot flattens any JSON-encodable value into a generic map suitable for
// a change-log before/after snapshot.
func ToSnapshot(v interface{}) (map[string]interface{}, error) {
	if v == nil {
		return nil, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w (snapshot): %v", ErrEncode, err)
	}
	if string(raw) == "null" {
		return nil, nil
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: snapshot of %T is not an object", ErrEncode, v)
	}
	return m, nil
}

// EncodeSnapshot frames a snapshot as a protobuf Struct
func EncodeSnapshot(snapshot map[string]interface{}) ([]byte, error) {
	st, err := structpb.NewStruct(snapshot)
	if err != nil {
		return nil, fmt.Errorf("%w (snapshot): %v", ErrEncode, err)
	}
	body, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("%w (snapshot): %v", ErrEncode, err)
	}
	return frame(FormatProtobuf, body), nil
}

// DecodeSnapshot reverses EncodeSnapshot. JSON snapshots are accepted too.
func DecodeSnapshot(data []byte) (map[string]interface{}, error) {
	f, body, err := Split(data)
	if err != nil {
		return nil, err
	}

	if f == FormatJSON {
		var m map[string]interface{}
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, fmt.Errorf("%w (snapshot): %v", ErrDecode, err)
		}
		return m, nil
	}

	st := &structpb.Struct{}
	if err := proto.Unmarshal(body, st); err != nil {
		return nil, fmt.Errorf("%w (snapshot): %v", ErrDecode, err)
	}
	return st.AsMap(), nil
}
