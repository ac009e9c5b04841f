package extract

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Field is one named value in a record.
type Field struct {
	Name  string
	Value string
}

// Record is an ordered list of fields. Its JSON form is an object whose keys
// keep the field order.
type Record []Field

// Get returns the value of the named field.
func (r Record) Get(name string) string {
	for _, f := range r {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// Empty reports whether every field is blank.
func (r Record) Empty() bool {
	for _, f := range r {
		if strings.TrimSpace(f.Value) != "" {
			return false
		}
	}
	return true
}

func (r Record) key() string {
	var b strings.Builder
	for _, f := range r {
		b.WriteString(f.Value)
		b.WriteByte(0)
	}
	return b.String()
}

// MarshalJSON implements json.Marshaler.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
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

// dedupe drops all-empty records and exact value-tuple duplicates, keeping
// first-seen order.
func dedupe(records []Record) []Record {
	out := make([]Record, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.Empty() {
			continue
		}
		k := r.key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}
