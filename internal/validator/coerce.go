package validator

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"sdsdg/internal/schema"
)

const (
	dateLayout     = "2006-01-02"
	timeLayout     = "15:04:05"
	datetimeLayout = "2006-01-02T15:04:05"
)

var (
	dateLayouts = []string{"2006-01-02", "2006/01/02", "20060102"}
	timeLayouts = []string{"15:04:05", "15:04:05.999999", "15:04"}

	minInt64 = decimal.NewFromInt(math.MinInt64)
	maxInt64 = decimal.NewFromInt(math.MaxInt64)

	datetimeLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
	}
)

// coerce converts an untrusted JSON value into the column's canonical Go type:
// int64, decimal.Decimal, bool, or string. A non-empty note describes a repair.
func coerce(col *schema.Column, v any, policy OverlengthPolicy) (any, string, error) {
	switch col.Type {
	case schema.TypeInteger:
		n, err := toInt(v)
		return n, "", err
	case schema.TypeDecimal:
		return toDecimal(col, v, policy)
	case schema.TypeBoolean:
		b, err := toBool(v)
		return b, "", err
	case schema.TypeDatetime:
		s, err := toDatetime(col, v)
		return s, "", err
	case schema.TypeEnumeration:
		if len(col.EnumValues) > 0 {
			return toEnum(col, v)
		}
	}
	return toText(col, v, policy)
}

func toInt(v any) (int64, error) {
	var s string
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("%v is not an integer", x)
		}
		if x < -(1<<63) || x >= 1<<63 {
			return 0, fmt.Errorf("%v is out of the 64-bit integer range", x)
		}
		return int64(x), nil
	case json.Number:
		s = string(x)
	case string:
		s = strings.TrimSpace(x)
	default:
		return 0, fmt.Errorf("%T is not an integer", v)
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	if d.LessThan(minInt64) || d.GreaterThan(maxInt64) {
		return 0, fmt.Errorf("%q is out of the 64-bit integer range", s)
	}
	return d.IntPart(), nil
}

func toDecimal(col *schema.Column, v any, policy OverlengthPolicy) (decimal.Decimal, string, error) {
	var d decimal.Decimal
	var err error
	switch x := v.(type) {
	case decimal.Decimal:
		d = x
	case int64:
		d = decimal.NewFromInt(x)
	case int:
		d = decimal.NewFromInt(int64(x))
	case float64:
		d = decimal.NewFromFloat(x)
	case json.Number:
		d, err = decimal.NewFromString(string(x))
	case string:
		d, err = decimal.NewFromString(strings.TrimSpace(x))
	default:
		return decimal.Zero, "", fmt.Errorf("%T is not a number", v)
	}
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("%v is not a number", v)
	}
	if col.Precision <= 0 {
		return d, "", nil
	}

	note := ""
	if -d.Exponent() > int32(col.Scale) {
		rounded := d.Round(int32(col.Scale))
		if !rounded.Equal(d) {
			if policy == OverlengthReject {
				return decimal.Zero, "", fmt.Errorf("%s has more than %d decimal places", d, col.Scale)
			}
			note = fmt.Sprintf("rounded to %d decimal places", col.Scale)
		}
		d = rounded
	}
	intDigits := 0
	if whole := d.Abs().Truncate(0); !whole.IsZero() {
		intDigits = len(whole.String())
	}
	if intDigits > col.Precision-col.Scale {
		return decimal.Zero, "", fmt.Errorf("%s exceeds precision (%d,%d)", d, col.Precision, col.Scale)
	}
	return d, note, nil
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		if x == 0 || x == 1 {
			return x == 1, nil
		}
	case int:
		if x == 0 || x == 1 {
			return x == 1, nil
		}
	case float64:
		if x == 0 || x == 1 {
			return x == 1, nil
		}
	case json.Number:
		return toBool(string(x))
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "t", "yes", "y", "1":
			return true, nil
		case "false", "f", "no", "n", "0":
			return false, nil
		}
	}
	return false, fmt.Errorf("%v is not a boolean", v)
}

func toDatetime(col *schema.Column, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%v is not a date or time", v)
	}
	s = strings.TrimSpace(s)

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if col.DateOnly {
				return t.Format(dateLayout), nil
			}
			return t.Format(datetimeLayout), nil
		}
	}
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if col.DateOnly {
				return t.Format(dateLayout), nil
			}
			if t.Location() != time.UTC {
				t = t.UTC()
			}
			return t.Format(datetimeLayout), nil
		}
	}
	if !col.DateOnly {
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Format(timeLayout), nil
			}
		}
	}
	return "", fmt.Errorf("%q is not a recognized date or time", s)
}

func toEnum(col *schema.Column, v any) (string, string, error) {
	s, err := toString(v)
	if err != nil {
		return "", "", err
	}
	for _, label := range col.EnumValues {
		if s == label {
			return label, "", nil
		}
	}
	trimmed := strings.TrimSpace(s)
	for _, label := range col.EnumValues {
		if strings.EqualFold(trimmed, label) {
			return label, fmt.Sprintf("matched enumeration value %q", label), nil
		}
	}
	return "", "", fmt.Errorf("%q is not one of %s", s, strings.Join(col.EnumValues, ", "))
}

func toText(col *schema.Column, v any, policy OverlengthPolicy) (string, string, error) {
	s, err := toString(v)
	if err != nil {
		return "", "", err
	}
	if col.MaxLength > 0 && utf8.RuneCountInString(s) > col.MaxLength {
		if policy == OverlengthReject {
			return "", "", fmt.Errorf("length %d exceeds maximum %d", utf8.RuneCountInString(s), col.MaxLength)
		}
		return string([]rune(s)[:col.MaxLength]), fmt.Sprintf("truncated to %d characters", col.MaxLength), nil
	}
	return s, "", nil
}

func toString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return string(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int:
		return strconv.Itoa(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case decimal.Decimal:
		return x.String(), nil
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return "", fmt.Errorf("%T is not text", v)
}
