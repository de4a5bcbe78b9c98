package dispatch

import (
	"bufio"
	"io"
	"strings"
)

// parseVariables reads "key: value" lines. Lines without a colon or with an
// empty key are ignored, a later line overrides an earlier one.
func parseVariables(r io.Reader) (map[string]string, error) {
	vars := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, found := strings.Cut(scanner.Text(), ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		vars[key] = strings.TrimSpace(value)
	}
	return vars, scanner.Err()
}
