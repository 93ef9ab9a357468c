// Package phone normalizes and formats patient phone numbers for display.
// The patterns are tuned for Venezuelan numbers, with US-style and short
// local fallbacks.
package phone

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// NoPhone is shown when a record carries no usable digits.
const NoPhone = "Sin teléfono"

// NormalizeDigits strips every non-digit character from v. Strings, string
// pointers, every integer and float kind and json.Number are accepted; nil
// and unsupported types yield "".
func NormalizeDigits(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		s = x
	case *string:
		if x == nil {
			return ""
		}
		s = *x
	case json.Number:
		s = x.String()
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		s = fmt.Sprint(x)
	case float32:
		s = strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatForDisplay renders v using the first matching pattern:
//
//	58XXXXXXXXXX  -> +58 (XXX) XXX-XXXX
//	0XXXXXXXXXX   -> 0XXX-XXXXXXX
//	XXXXXXXXXX    -> (XXX) XXX-XXXX
//	XXXXXXX       -> XXX-XXXX
//
// Anything else is split into space-separated groups of three.
func FormatForDisplay(v any) string {
	d := NormalizeDigits(v)
	switch {
	case d == "":
		return NoPhone
	case len(d) == 12 && strings.HasPrefix(d, "58"):
		return "+58 (" + d[2:5] + ") " + d[5:8] + "-" + d[8:]
	case len(d) == 11 && strings.HasPrefix(d, "0"):
		return d[:4] + "-" + d[4:]
	case len(d) == 10:
		return "(" + d[:3] + ") " + d[3:6] + "-" + d[6:]
	case len(d) == 7:
		return d[:3] + "-" + d[3:]
	}
	return groupByThree(d)
}

func groupByThree(d string) string {
	groups := make([]string, 0, len(d)/3+1)
	for len(d) > 3 {
		groups = append(groups, d[:3])
		d = d[3:]
	}
	groups = append(groups, d)
	return strings.Join(groups, " ")
}
