package change

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Field is one column of a captured row image.
// Null distinguishes SQL NULL from the empty string.
type Field struct {
	Column string
	Value  string
	Null   bool
}

// Values is an ordered mapping column -> string, as captured by a trigger.
//
// Column order follows the trigger's JSON object and drives the column order
// of rendered statements. The zero value is an empty mapping.
type Values struct {
	fields []Field
}

// Of builds Values from alternating column, value pairs.
// Panics on an odd number of arguments.
func Of(pairs ...string) Values {
	if len(pairs)%2 != 0 {
		panic("change.Of: odd number of arguments")
	}
	var v Values
	for i := 0; i < len(pairs); i += 2 {
		v.Set(pairs[i], pairs[i+1])
	}
	return v
}

// NewValues builds Values from fields. Later duplicates replace earlier ones.
func NewValues(fields ...Field) Values {
	var v Values
	for _, f := range fields {
		v.put(f)
	}
	return v
}

// Len returns the number of columns.
func (v Values) Len() int { return len(v.fields) }

// IsEmpty reports whether there are no columns.
func (v Values) IsEmpty() bool { return len(v.fields) == 0 }

// Fields returns a copy of the fields in order.
func (v Values) Fields() []Field {
	out := make([]Field, len(v.fields))
	copy(out, v.fields)
	return out
}

// Columns returns the column names in order.
func (v Values) Columns() []string {
	out := make([]string, len(v.fields))
	for i, f := range v.fields {
		out[i] = f.Column
	}
	return out
}

// Get returns the field for column.
func (v Values) Get(column string) (Field, bool) {
	for _, f := range v.fields {
		if f.Column == column {
			return f, true
		}
	}
	return Field{}, false
}

// Set assigns a non-null value, keeping the column's position if present.
func (v *Values) Set(column, value string) {
	v.put(Field{Column: column, Value: value})
}

// SetNull assigns SQL NULL to column.
func (v *Values) SetNull(column string) {
	v.put(Field{Column: column, Null: true})
}

func (v *Values) put(f Field) {
	for i := range v.fields {
		if v.fields[i].Column == f.Column {
			v.fields[i] = f
			return
		}
	}
	v.fields = append(v.fields, f)
}

// Clone returns an independent copy.
func (v Values) Clone() Values {
	if v.fields == nil {
		return Values{}
	}
	return Values{fields: v.Fields()}
}

// Equal reports exact equality: same columns, same values, same nullness.
// Column order is not significant. Comparison is case-sensitive.
func (v Values) Equal(other Values) bool {
	if len(v.fields) != len(other.fields) {
		return false
	}
	for _, f := range v.fields {
		g, ok := other.Get(f.Column)
		if !ok || g.Null != f.Null || g.Value != f.Value {
			return false
		}
	}
	return true
}

// CanonicalKey returns an encoding that is identical for two Values exactly
// when Equal holds between them.
func (v Values) CanonicalKey() string {
	sorted := v.Fields()
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Column < sorted[j].Column
	})
	var buf bytes.Buffer
	writeObject(&buf, sorted)
	return buf.String()
}

// MarshalJSON encodes the mapping as a JSON object in column order.
func (v Values) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	writeObject(&buf, v.fields)
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping key order.
func (v *Values) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeValues(string(data))
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// String returns the JSON encoding.
func (v Values) String() string {
	data, _ := v.MarshalJSON()
	return string(data)
}

// DecodeValues parses a captured row image.
//
// Scalars become their textual form, JSON null becomes a Null field, and
// nested arrays or objects are kept as raw JSON text. An empty input or a
// literal null yields empty Values.
func DecodeValues(raw string) (Values, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return Values{}, nil
	}
	if !gjson.Valid(trimmed) {
		return Values{}, errors.New("row image is not valid JSON")
	}
	parsed := gjson.Parse(trimmed)
	if !parsed.IsObject() {
		return Values{}, errors.New("row image is not a JSON object")
	}

	var v Values
	parsed.ForEach(func(key, value gjson.Result) bool {
		f := Field{Column: key.String()}
		switch value.Type {
		case gjson.Null:
			f.Null = true
		case gjson.JSON:
			f.Value = value.Raw
		default:
			f.Value = value.String()
		}
		v.put(f)
		return true
	})
	return v, nil
}

func writeObject(buf *bytes.Buffer, fields []Field) {
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, f.Column)
		buf.WriteByte(':')
		if f.Null {
			buf.WriteString("null")
			continue
		}
		writeString(buf, f.Value)
	}
	buf.WriteByte('}')
}

// writeString writes s as a JSON string without HTML escaping.
func writeString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	// Encode appends a newline.
	buf.Truncate(buf.Len() - 1)
}
