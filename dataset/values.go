package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// DateLayouts are the textual date forms accepted by Coerce.
var DateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Coerce converts an attribute value to the canonical Go type of t:
// int64, float64, string, bool or time.Time. Nil stays nil.
func Coerce(v any, t FieldType) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case FieldInteger:
		return toInt64(v)
	case FieldReal:
		return toFloat64(v)
	case FieldBoolean:
		return toBool(v)
	case FieldDate:
		return toTime(v)
	default:
		return toString(v), nil
	}
}

func toInt64(v any) (any, error) {
	switch val := v.(type) {
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("dataset: %d overflows integer", val)
		}
		return int64(val), nil
	case float32:
		return int64(val), nil
	case float64:
		if val != math.Trunc(val) {
			return nil, fmt.Errorf("dataset: %v is not an integer", val)
		}
		return int64(val), nil
	case bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case json.Number:
		return val.Int64()
	case string:
		return strconv.ParseInt(val, 10, 64)
	}
	return nil, fmt.Errorf("dataset: cannot use %T as integer", v)
}

func toFloat64(v any) (any, error) {
	switch val := v.(type) {
	case float32:
		return float64(val), nil
	case float64:
		return val, nil
	case json.Number:
		return val.Float64()
	case string:
		return strconv.ParseFloat(val, 64)
	}
	i, err := toInt64(v)
	if err != nil {
		return nil, fmt.Errorf("dataset: cannot use %T as real", v)
	}
	return float64(i.(int64)), nil
}

func toBool(v any) (any, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		return strconv.ParseBool(val)
	}
	i, err := toInt64(v)
	if err != nil {
		return nil, fmt.Errorf("dataset: cannot use %T as boolean", v)
	}
	return i.(int64) != 0, nil
}

func toTime(v any) (any, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case string:
		for _, layout := range DateLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("dataset: cannot parse %q as date", val)
	}
	return nil, fmt.Errorf("dataset: cannot use %T as date", v)
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
