package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// sizeSuffixes maps the catalog's size suffixes to byte multipliers.
// The catalog uses decimal names with binary values (KB = 1024).
var sizeSuffixes = map[string]int64{
	"B":  1,
	"KB": 1 << 10,
	"MB": 1 << 20,
	"GB": 1 << 30,
	"TB": 1 << 40,
}

// ParseSize converts a human-readable size like "2.34 GB" to bytes.
func ParseSize(s string) (int64, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, fmt.Errorf("invalid size %q: want \"<number> <suffix>\"", s)
	}
	n, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	mul, ok := sizeSuffixes[strings.ToUpper(fields[1])]
	if !ok {
		return 0, fmt.Errorf("invalid size suffix in %q", s)
	}
	return int64(n * float64(mul)), nil
}
