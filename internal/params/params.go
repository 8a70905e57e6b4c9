package params

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind discriminates the closed set of parameter value shapes.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindObject
)

// Value is one parameter value: a string, a number, a boolean or a nested
// object. Nested objects are kept as compacted raw JSON so their key order
// survives a round-trip.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	obj  json.RawMessage
}

// String returns a string-kind value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a number-kind value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Bool returns a boolean-kind value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Object returns an object-kind value from an already-encoded JSON object.
func Object(raw json.RawMessage) (Value, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return Value{}, fmt.Errorf("compact object value: %w", err)
	}
	compacted := buf.Bytes()
	if len(compacted) == 0 || compacted[0] != '{' {
		return Value{}, fmt.Errorf("object value must be a JSON object, got %q", string(raw))
	}
	return Value{kind: KindObject, obj: json.RawMessage(compacted)}, nil
}

// Kind reports the value's shape.
func (v Value) Kind() Kind { return v.kind }

// UnmarshalJSON accepts JSON strings, numbers, booleans and objects. A JSON
// null decodes as the empty string. Any other shape is rejected, so callers
// validating a request body reject malformed parameter sets up front.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty parameter value")
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case 'n':
		if !bytes.Equal(trimmed, []byte("null")) {
			return fmt.Errorf("invalid parameter value: %q", string(trimmed))
		}
		*v = String("")
		return nil
	case '{':
		value, err := Object(trimmed)
		if err != nil {
			return err
		}
		*v = value
		return nil
	case '[':
		return fmt.Errorf("array parameter values are not supported")
	default:
		n, err := strconv.ParseFloat(string(trimmed), 64)
		if err != nil {
			return fmt.Errorf("invalid parameter value: %q", string(trimmed))
		}
		*v = Number(n)
		return nil
	}
}

// MarshalJSON emits the value in its original JSON shape.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return []byte(formatNumber(v.num)), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindObject:
		return v.obj, nil
	default:
		return nil, fmt.Errorf("unknown value kind: %d", v.kind)
	}
}

// Param is one named parameter.
type Param struct {
	Key   string
	Value Value
}

// Params is an ordered parameter set. Order is preserved from the JSON
// object it was decoded from and is visible in the marshalled argument list.
type Params []Param

// Get returns the value for key and whether it was present.
func (p Params) Get(key string) (Value, bool) {
	for _, param := range p {
		if param.Key == key {
			return param.Value, true
		}
	}
	return Value{}, false
}

// UnmarshalJSON decodes a JSON object token by token so the original key
// order is retained.
func (p *Params) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*p = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode parameters: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("parameters must be a JSON object, got %q", string(trimmed))
	}

	decoded := Params{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode parameter key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("invalid parameter key: %v", keyTok)
		}
		var value Value
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decode parameter %q: %w", key, err)
		}
		decoded = append(decoded, Param{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode parameters: %w", err)
	}

	*p = decoded
	return nil
}

// MarshalJSON emits the parameters as a JSON object in their stored order.
func (p Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, param := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(param.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := param.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Marshal converts a parameter set into command-line arguments, one flag per
// parameter, in the set's stored order:
//
//   - object values emit --key={json}, even when the object is empty
//   - boolean true emits a bare --key, boolean false emits nothing
//   - strings and numbers emit --key=value only when non-empty / non-zero
//
// Marshal is total over the declared value shapes and deterministic.
func Marshal(p Params) []string {
	args := make([]string, 0, len(p))
	for _, param := range p {
		v := param.Value
		switch v.kind {
		case KindObject:
			args = append(args, "--"+param.Key+"="+string(v.obj))
		case KindBool:
			if v.b {
				args = append(args, "--"+param.Key)
			}
		case KindNumber:
			if v.num != 0 {
				args = append(args, "--"+param.Key+"="+formatNumber(v.num))
			}
		case KindString:
			if v.str != "" {
				args = append(args, "--"+param.Key+"="+v.str)
			}
		}
	}
	return args
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
