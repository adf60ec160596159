package engine

import "strconv"

// AsInt64 coerces a scanned database value to an int64 id or count.
// Drivers disagree on numeric representation: lib/pq returns int64, MySQL's
// text protocol returns strings (already converted from []byte by the scan
// layer), and aggregate results may arrive as float64.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	case []byte:
		id, err := strconv.ParseInt(string(n), 10, 64)
		return id, err == nil
	case string:
		id, err := strconv.ParseInt(n, 10, 64)
		return id, err == nil
	}
	return 0, false
}
