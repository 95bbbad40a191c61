package config

import (
	"fmt"
	"strings"
)

// ParseRunVars parses repeated key=value arguments. Later keys win.
func ParseRunVars(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, pair := range args {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid rtvar %s", pair)
		}
		out[key] = value
	}
	return out, nil
}
