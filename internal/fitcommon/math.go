package fitcommon

import (
	"fmt"
	"strings"
)

// ParseChoice matches raw case-insensitively against allowed and returns the
// canonical spelling.
func ParseChoice(raw string, allowed ...string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	for _, a := range allowed {
		if v == a {
			return a, nil
		}
	}
	return "", fmt.Errorf("%q (use one of %s)", raw, strings.Join(allowed, "|"))
}
