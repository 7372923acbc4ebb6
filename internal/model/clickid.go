package model

import (
	"strconv"
	"strings"
	"time"
)

// Click identifiers look like "YSS.1690000000.abc": network prefix, unix
// visit timestamp, opaque token.

// ClickVisitTime extracts the embedded visit timestamp from a click id.
func ClickVisitTime(clickID string) (time.Time, bool) {
	parts := strings.SplitN(clickID, ".", 3)
	if len(parts) != 3 {
		return time.Time{}, false
	}
	sec, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(sec, 0), true
}

// ClickNetwork reports which network's prefix a click id carries.
func ClickNetwork(clickID string) (Network, bool) {
	for _, n := range []Network{NetworkSearch, NetworkDisplay} {
		if strings.HasPrefix(clickID, n.ClickIDPrefix()) {
			return n, true
		}
	}
	return "", false
}
