package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/japaniel/leetcrawl/pkg/schema"
)

// Coerce converts v to the given kind.
func Coerce(kind schema.Kind, v any) (schema.Value, error) {
	switch kind {
	case schema.KindInt:
		i, err := ToInt(v)
		return schema.IntValue(i), err
	case schema.KindFloat:
		f, err := ToFloat(v)
		return schema.FloatValue(f), err
	case schema.KindText:
		s, err := ToText(v)
		return schema.TextValue(s), err
	}
	return schema.Value{}, fmt.Errorf("unsupported kind %s", kind)
}

// ToInt is a best-effort integer cast. Booleans map to 0/1, integral floats
// and decimal strings are accepted; anything else is an error.
func ToInt(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case float64:
		return floatToInt(x)
	case json.Number:
		i, err := x.Int64()
		if err == nil {
			return i, nil
		}
		if errors.Is(err, strconv.ErrRange) {
			return 0, fmt.Errorf("integer out of range: %s", x.String())
		}
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("not an integer: %q", x.String())
		}
		return floatToInt(f)
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		s := strings.TrimSpace(x)
		switch strings.ToLower(s) {
		case "true":
			return 1, nil
		case "false":
			return 0, nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return i, nil
		}
		if errors.Is(err, strconv.ErrRange) {
			return 0, fmt.Errorf("integer out of range: %q", x)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("not an integer: %q", x)
		}
		return floatToInt(f)
	}
	return 0, fmt.Errorf("cannot convert %T to int", v)
}

func floatToInt(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %v", f)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which does not fit.
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("integer out of range: %v", f)
	}
	return int64(f), nil
}

// ToFloat converts numbers and numeric strings to float64.
func ToFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", x.String())
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("cannot convert %T to float", v)
}

// ToText renders scalars as text. Sequences and objects are JSON encoded.
func ToText(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	case []any, map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return "", fmt.Errorf("cannot convert %T to text", v)
}
