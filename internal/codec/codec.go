// Package codec converts between loosely typed SWAMP JSON objects and typed
// api.Fields.
//
// Decoding is driven by an api.Schema and is lenient: absent, null or
// malformed keys are skipped because the service does not guarantee a
// complete schema. Encoding is driven by the kind each api.Value carries, so
// both directions always agree on a field's type.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/data-douser/swamp-go/api"
)

// DateLayout is the wire form of every SWAMP date, always in UTC.
const DateLayout = "2006-01-02 15:04:05"

// UnsupportedTypeError is returned by Encode for a value whose kind has no
// wire representation.
type UnsupportedTypeError struct {
	Key  string
	Kind api.Kind
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("codec: field %q has unsupported type %s", e.Key, e.Kind)
}

// FormatDate renders t in DateLayout, in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate parses a wire date. A fractional-seconds suffix
// ("2017-01-05 10:00:00.000000") is ignored. Years past 9999, which
// FormatDate writes with five or more digits, are accepted.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '.'); i > 0 {
		s = s[:i]
	}
	i := strings.IndexByte(s, '-')
	if i <= 4 {
		return time.ParseInLocation(DateLayout, s, time.UTC)
	}
	year, err := strconv.Atoi(s[:i])
	if err != nil {
		return time.Time{}, fmt.Errorf("codec: parse date %q: bad year", s)
	}
	t, err := time.ParseInLocation(DateLayout, "2000"+s[i:], time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t.AddDate(year-2000, 0, 0), nil
}

// Decode reads every key declared in schema out of raw.
func Decode(raw map[string]any, schema api.Schema) api.Fields {
	fields := api.Fields{}
	schema.Each(func(key string, kind api.Kind) {
		rv, ok := raw[key]
		if !ok || rv == nil {
			return
		}
		if v, ok := DecodeValue(rv, kind); ok {
			fields[key] = v
		}
	})
	return fields
}

// DecodeValue converts one raw JSON value to kind. It reports false when the
// value cannot be read as that kind.
func DecodeValue(rv any, kind api.Kind) (api.Value, bool) {
	switch kind {
	case api.KindIdentifier:
		switch x := rv.(type) {
		case string:
			return api.Identifier(x), true
		case json.Number:
			return api.Identifier(x.String()), true
		case float64:
			return api.Identifier(strconv.FormatFloat(x, 'f', -1, 64)), true
		}
	case api.KindString:
		if s, ok := stringify(rv); ok {
			return api.String(s), true
		}
	case api.KindBoolean:
		if b, ok := decodeBool(rv); ok {
			return api.Bool(b), true
		}
	case api.KindDate:
		if t, ok := decodeDate(rv); ok {
			return api.Date(t), true
		}
	case api.KindArray:
		if items, ok := decodeArray(rv); ok {
			return api.Array(items), true
		}
	}
	return api.Value{}, false
}

func stringify(rv any) (string, bool) {
	switch x := rv.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

func decodeBool(rv any) (bool, bool) {
	switch x := rv.(type) {
	case bool:
		return x, true
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return false, false
		}
		return n != 0, true
	case float64:
		return x != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "true":
			return true, true
		case "0", "false":
			return false, true
		}
	}
	return false, false
}

func decodeDate(rv any) (time.Time, bool) {
	switch x := rv.(type) {
	case string:
		if x == "" || x == "null" {
			return time.Time{}, false
		}
		t, err := ParseDate(x)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	case map[string]any:
		// Dates serialized by the PHP backend arrive as
		// {"date": "...", "timezone_type": 3, "timezone": "UTC"}.
		inner, ok := x["date"]
		if !ok {
			return time.Time{}, false
		}
		return decodeDate(inner)
	case json.Number:
		ms, err := x.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.UnixMilli(ms).UTC(), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(x)).UTC(), true
	}
	return time.Time{}, false
}

func decodeArray(rv any) ([]string, bool) {
	switch x := rv.(type) {
	case []string:
		return x, true
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := stringify(item); ok {
				out = append(out, s)
			}
		}
		return out, true
	case string:
		trimmed := strings.TrimSpace(x)
		if !strings.HasPrefix(trimmed, "[") {
			return nil, false
		}
		dec := json.NewDecoder(strings.NewReader(trimmed))
		dec.UseNumber()
		var items []any
		if err := dec.Decode(&items); err != nil {
			return nil, false
		}
		return decodeArray(items)
	}
	return nil, false
}

// Encode renders fields as a JSON-ready map. Identifiers and strings become
// strings, booleans become "1" or "0", dates become DateLayout strings and
// arrays become string slices.
func Encode(fields api.Fields) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for key, v := range fields {
		switch v.Kind() {
		case api.KindIdentifier, api.KindString:
			out[key] = v.Text()
		case api.KindBoolean:
			if v.Flag() {
				out[key] = "1"
			} else {
				out[key] = "0"
			}
		case api.KindDate:
			out[key] = FormatDate(v.Time())
		case api.KindArray:
			out[key] = v.Items()
		default:
			return nil, &UnsupportedTypeError{Key: key, Kind: v.Kind()}
		}
	}
	return out, nil
}

// EncodeJSON is Encode followed by json.Marshal.
func EncodeJSON(fields api.Fields) ([]byte, error) {
	m, err := Encode(fields)
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// EncodeForm renders fields as form values. Array items are repeated under
// the same key.
func EncodeForm(fields api.Fields) (url.Values, error) {
	m, err := Encode(fields)
	if err != nil {
		return nil, err
	}
	form := url.Values{}
	for key, v := range m {
		switch x := v.(type) {
		case string:
			form.Set(key, x)
		case []string:
			for _, item := range x {
				form.Add(key, item)
			}
		}
	}
	return form, nil
}

// DecodeJSON parses data as a JSON object and decodes it with schema.
// Numbers are preserved as json.Number so large identifiers do not lose
// precision.
func DecodeJSON(data []byte, schema api.Schema) (api.Fields, error) {
	raw, err := ParseObject(data)
	if err != nil {
		return nil, err
	}
	return Decode(raw, schema), nil
}

// ParseObject parses data as a JSON object with json.Number numbers.
func ParseObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("codec: parse object: %w", err)
	}
	return raw, nil
}
