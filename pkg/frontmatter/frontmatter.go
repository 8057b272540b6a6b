// Package frontmatter extracts a leading metadata block from document text.
//
// The accepted form is deliberately loose:
//
//	---
//	title: "Getting started"
//	full: true
//	order: 3
//	---
//	# Body starts here
//
// Every line between the delimiters is split on its first colon. Values are
// coerced in a fixed order: the literals true/false become booleans, anything
// numeric becomes a number, and everything else is a string with one layer of
// matching quotes removed. Lines without a colon or with an empty key are
// ignored. Parsing never fails: text without a leading block yields no fields
// and the whole input as body.
//
// Fields are a read-only view for display and validation. Callers that store
// documents keep the original raw bytes, not a re-serialized form.
package frontmatter

import (
	"strconv"
	"strings"
)

// Kind distinguishes the coerced value types.
type Kind uint8

// Kind values in coercion priority order.
const (
	KindBool Kind = iota
	KindInt
	KindFloat
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Value is a tagged scalar. Only the field matching Kind is meaningful.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
	Str   string
}

// BoolValue returns a bool value.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// IntValue returns an integer value.
func IntValue(n int64) Value { return Value{Kind: KindInt, Int: n} }

// FloatValue returns a float value.
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// StringValue returns a string value.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// IsNumber reports whether the value is an int or a float.
func (v Value) IsNumber() bool {
	return v.Kind == KindInt || v.Kind == KindFloat
}

// Number returns the value as float64 for either numeric kind.
func (v Value) Number() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Float, true
	default:
		return 0, false
	}
}

// String formats the value for display.
func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return v.Str
	}
}

// Field is one parsed key/value pair.
type Field struct {
	Key   string
	Value Value
}

// Fields holds parsed fields in source order. Later duplicates replace
// earlier ones in place.
type Fields struct {
	entries []Field
}

// Len returns the number of distinct keys.
func (f *Fields) Len() int {
	return len(f.entries)
}

// Entries returns the fields in source order. Do not modify the result.
func (f *Fields) Entries() []Field {
	return f.entries
}

// Keys returns the keys in source order.
func (f *Fields) Keys() []string {
	keys := make([]string, len(f.entries))
	for i, e := range f.entries {
		keys[i] = e.Key
	}

	return keys
}

// Get returns the value for key.
func (f *Fields) Get(key string) (Value, bool) {
	for _, e := range f.entries {
		if e.Key == key {
			return e.Value, true
		}
	}

	return Value{}, false
}

// GetString returns the value for key if it is a string.
func (f *Fields) GetString(key string) (string, bool) {
	v, ok := f.Get(key)
	if !ok || v.Kind != KindString {
		return "", false
	}

	return v.Str, true
}

// GetBool returns the value for key if it is a bool.
func (f *Fields) GetBool(key string) (bool, bool) {
	v, ok := f.Get(key)
	if !ok || v.Kind != KindBool {
		return false, false
	}

	return v.Bool, true
}

// GetInt returns the value for key if it is an integer.
func (f *Fields) GetInt(key string) (int64, bool) {
	v, ok := f.Get(key)
	if !ok || v.Kind != KindInt {
		return 0, false
	}

	return v.Int, true
}

// GetFloat returns the value for key as float64 if it is numeric.
func (f *Fields) GetFloat(key string) (float64, bool) {
	v, ok := f.Get(key)
	if !ok {
		return 0, false
	}

	return v.Number()
}

// Map returns a copy of the fields as a plain map of bool, int64, float64
// and string values.
func (f *Fields) Map() map[string]any {
	out := make(map[string]any, len(f.entries))

	for _, e := range f.entries {
		switch e.Value.Kind {
		case KindBool:
			out[e.Key] = e.Value.Bool
		case KindInt:
			out[e.Key] = e.Value.Int
		case KindFloat:
			out[e.Key] = e.Value.Float
		default:
			out[e.Key] = e.Value.Str
		}
	}

	return out
}

func (f *Fields) set(key string, v Value) {
	for i := range f.entries {
		if f.entries[i].Key == key {
			f.entries[i].Value = v

			return
		}
	}

	f.entries = append(f.entries, Field{Key: key, Value: v})
}

// Coerce converts a trimmed raw value using the fixed priority order:
// boolean literal, number, then string with matching quotes stripped.
func Coerce(raw string) Value {
	switch raw {
	case "true":
		return BoolValue(true)
	case "false":
		return BoolValue(false)
	}

	if n, ok := parseInt(raw); ok {
		return IntValue(n)
	}

	if f, ok := parseFloat(raw); ok {
		return FloatValue(f)
	}

	return StringValue(unquote(raw))
}

func parseInt(raw string) (int64, bool) {
	if raw == "" {
		return 0, false
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}

	return n, true
}

// parseFloat accepts finite decimal numbers only. strconv also accepts
// "inf", "nan" and hex floats, none of which read as numbers in frontmatter.
func parseFloat(raw string) (float64, bool) {
	if raw == "" || !looksNumeric(raw) {
		return 0, false
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}

	return f, true
}

func looksNumeric(raw string) bool {
	digits := 0

	for i := 0; i < len(raw); i++ {
		c := raw[i]

		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == '.', c == 'e', c == 'E':
		case (c == '+' || c == '-') && (i == 0 || raw[i-1] == 'e' || raw[i-1] == 'E'):
		default:
			return false
		}
	}

	return digits > 0
}

func unquote(raw string) string {
	if len(raw) < 2 {
		return raw
	}

	first, last := raw[0], raw[len(raw)-1]
	if (first == '"' || first == '\'') && first == last {
		return raw[1 : len(raw)-1]
	}

	return raw
}

// delimiter is the line that opens and closes a frontmatter block.
const delimiter = "---"

// Parse splits raw into frontmatter fields and body. It never fails.
func Parse(raw []byte) (Fields, []byte) {
	var fields Fields

	first, rest, ok := cutLine(raw)
	if !ok || trimCR(first) != delimiter {
		return fields, raw
	}

	// Find the closing delimiter before committing to any field.
	block := rest

	var lines []string

	for {
		line, next, more := cutLine(block)
		if trimCR(line) == delimiter {
			for _, l := range lines {
				parseLine(&fields, l)
			}

			return fields, next
		}

		if !more {
			return Fields{}, raw
		}

		lines = append(lines, trimCR(line))
		block = next
	}
}

// ParseString is Parse for string input.
func ParseString(raw string) (Fields, string) {
	fields, body := Parse([]byte(raw))

	return fields, string(body)
}

func parseLine(fields *Fields, line string) {
	key, value, ok := strings.Cut(line, ":")
	if !ok {
		return
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return
	}

	fields.set(key, Coerce(strings.TrimSpace(value)))
}

// cutLine returns the first line of data without its newline, the remainder
// after the newline, and whether a newline was found.
func cutLine(data []byte) (string, []byte, bool) {
	for i, c := range data {
		if c == '\n' {
			return string(data[:i]), data[i+1:], true
		}
	}

	return string(data), nil, false
}

func trimCR(line string) string {
	return strings.TrimSuffix(line, "\r")
}
