// Package shared provides small helpers used by more than one layer of
// repobuild.
package shared

import (
	"fmt"
	"sort"
	"strings"
)

// HTTPStatusErrorWithBody creates a formatted error that includes the
// trimmed response body for non-2xx HTTP responses.
func HTTPStatusErrorWithBody(status int, url string, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return fmt.Errorf("status=%d url=%s", status, url)
	}
	return fmt.Errorf("status=%d url=%s response=%s", status, url, body)
}

// CommandError wraps a command execution error with its trimmed output
// for cleaner error messages.
func CommandError(output []byte, err error) error {
	trimmed := strings.TrimSpace(string(output))
	if trimmed == "" {
		return err
	}
	return fmt.Errorf("%s: %w", trimmed, err)
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
