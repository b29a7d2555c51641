package ledger

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is a loosely typed entity as it arrives from the UI or from a
// legacy document: fields may be missing, and numbers may be strings.
type Record map[string]any

// digitFolder maps Arabic-Indic and Eastern Arabic-Indic digits, and the
// Arabic decimal/thousands separators, to their ASCII forms.
var digitFolder = strings.NewReplacer(
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
	"۰", "0", "۱", "1", "۲", "2", "۳", "3", "۴", "4",
	"۵", "5", "۶", "6", "۷", "7", "۸", "8", "۹", "9",
	"٫", ".", "٬", "", ",", "",
)

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// Str returns the trimmed string form of a field.
func (r Record) Str(key string) string {
	return strings.TrimSpace(toString(r[key]))
}

// Has reports whether a field is present and not null.
func (r Record) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

// Decimal coerces a field to a decimal. ok is false when the field is
// missing, blank or not numeric.
func (r Record) Decimal(key string) (decimal.Decimal, bool) {
	switch x := r[key].(type) {
	case nil:
		return decimal.Zero, false
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(x), true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	case decimal.Decimal:
		return x, true
	}
	s := digitFolder.Replace(strings.TrimSpace(toString(r[key])))
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Int coerces a field to an int, truncating any fraction.
func (r Record) Int(key string) (int, bool) {
	d, ok := r.Decimal(key)
	if !ok {
		return 0, false
	}
	return int(d.IntPart()), true
}

// Time parses a timestamp field. Accepts RFC 3339, a bare date, or a
// number of milliseconds since the epoch. Values without an offset are read
// as UTC; use TimeIn for the shop's own clock.
func (r Record) Time(key string) (time.Time, bool) {
	return r.TimeIn(key, time.UTC)
}

// TimeIn is Time with bare dates and offset-less timestamps read as wall
// clock time in loc.
func (r Record) TimeIn(key string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	switch x := r[key].(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return x, !x.IsZero()
	case float64, json.Number:
		ms, ok := r.Decimal(key)
		if !ok {
			return time.Time{}, false
		}
		return time.UnixMilli(ms.IntPart()), true
	}
	s := r.Str(key)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Records returns a list field as records, skipping non-object entries.
func (r Record) Records(key string) []Record {
	list, _ := r[key].([]any)
	out := make([]Record, 0, len(list))
	for _, v := range list {
		switch x := v.(type) {
		case map[string]any:
			out = append(out, Record(x))
		case Record:
			out = append(out, x)
		}
	}
	if typed, ok := r[key].([]Record); ok {
		out = append(out, typed...)
	}
	return out
}

// RecordOf converts any JSON-shaped value into a Record.
func RecordOf(v any) (Record, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return r, nil
}
