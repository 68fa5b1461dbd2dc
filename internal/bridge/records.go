package bridge

import (
	"encoding/json"
	"fmt"
)

// Record is one element of the converted array. The provider is asked for
// {name, value, value2} but is not bound to it, so keys are kept as sent.
// Numbers are json.Number to round-trip without reformatting.
type Record map[string]any

// Records is the ordered result of a conversion.
type Records []Record

// DataRecord is the typed view of a Record.
type DataRecord struct {
	Name   string   `json:"name"`
	Value  float64  `json:"value"`
	Value2 *float64 `json:"value2,omitempty"`
}

// Typed converts every record to a DataRecord. It fails on the first record
// whose name is not a string or whose value/value2 is not a number; value2
// may be absent.
func (rs Records) Typed() ([]DataRecord, error) {
	out := make([]DataRecord, 0, len(rs))
	for i, r := range rs {
		name, ok := r["name"].(string)
		if !ok {
			return nil, fmt.Errorf("record %d: name is %T, want string", i, r["name"])
		}

		value, ok := toFloat(r["value"])
		if !ok {
			return nil, fmt.Errorf("record %d: value is %T, want number", i, r["value"])
		}

		dr := DataRecord{Name: name, Value: value}
		if raw, present := r["value2"]; present && raw != nil {
			v2, ok := toFloat(raw)
			if !ok {
				return nil, fmt.Errorf("record %d: value2 is %T, want number", i, raw)
			}
			dr.Value2 = &v2
		}
		out = append(out, dr)
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
