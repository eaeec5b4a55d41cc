package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Field is one submitted key/value pair.
type Field struct {
	Key   string `json:"k"`
	Value string `json:"v"`
}

// FieldList stores submission fields as JSON while preserving the order
// they arrived in. It marshals to a plain JSON object for API output and
// tolerates both the object and the pair-array encoding when scanning.
type FieldList []Field

// fieldPairs avoids the custom JSON methods for the storage encoding.
type fieldPairs []Field

func (l FieldList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(fieldPairs(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *FieldList) Scan(value interface{}) error {
	if l == nil {
		return fmt.Errorf("models.FieldList: Scan on nil pointer")
	}
	if value == nil {
		*l = FieldList{}
		return nil
	}

	var raw string
	switch v := value.(type) {
	case []byte:
		raw = string(v)
	case string:
		raw = v
	default:
		return fmt.Errorf("models.FieldList: unsupported Scan type %T", value)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		*l = FieldList{}
		return nil
	}
	return l.UnmarshalJSON([]byte(raw))
}

// MarshalJSON renders the fields as a JSON object in stored order.
func (l FieldList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts either an object (insertion order kept, values
// coerced to strings) or an array of {k,v} pairs.
func (l *FieldList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*l = FieldList{}
		return nil
	}

	if trimmed[0] == '[' {
		var pairs fieldPairs
		if err := json.Unmarshal(trimmed, &pairs); err != nil {
			return err
		}
		*l = FieldList(pairs)
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("models.FieldList: expected JSON object, got %v", tok)
	}

	out := FieldList{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("models.FieldList: non-string key %v", keyTok)
		}
		var rawVal json.RawMessage
		if err := dec.Decode(&rawVal); err != nil {
			return err
		}
		out.Set(key, stringifyJSONValue(rawVal))
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*l = out
	return nil
}

// Set replaces the value of key in place, or appends when absent.
func (l *FieldList) Set(key, value string) {
	for i := range *l {
		if (*l)[i].Key == key {
			(*l)[i].Value = value
			return
		}
	}
	*l = append(*l, Field{Key: key, Value: value})
}

// Get returns the value of key, or "" when absent.
func (l FieldList) Get(key string) string {
	for _, f := range l {
		if f.Key == key {
			return f.Value
		}
	}
	return ""
}

func (l FieldList) Has(key string) bool {
	for _, f := range l {
		if f.Key == key {
			return true
		}
	}
	return false
}

func (l FieldList) Keys() []string {
	keys := make([]string, 0, len(l))
	for _, f := range l {
		keys = append(keys, f.Key)
	}
	return keys
}

func stringifyJSONValue(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err == nil {
		return compact.String()
	}
	return string(trimmed)
}
