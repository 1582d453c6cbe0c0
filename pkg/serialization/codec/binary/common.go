package binary

import (
	"fmt"
	"strings"
)

// intLength returns the natural byte width of a sized integer.
func intLength(in any) (uint, error) {
	switch in.(type) {
	case uint8, int8:
		return 1, nil
	case uint16, int16:
		return 2, nil
	case uint32, int32:
		return 4, nil
	case uint64, int64:
		return 8, nil
	default:
		return 0, fmt.Errorf(ErrUnsupportedType, in)
	}
}

// parseTag splits a `codec` struct tag of the form "k1=v1,k2=v2" into a map.
func parseTag(tag string) map[string]string {
	result := make(map[string]string)
	for _, pair := range strings.Split(tag, ",") {
		kv := strings.Split(pair, "=")
		if len(kv) == 2 {
			result[kv[0]] = kv[1]
		}
	}
	return result
}
