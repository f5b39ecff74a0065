package templating

import (
	"fmt"

	"github.com/cbroglie/mustache"
)

// Render applies data to a mustache template. Unknown variables render empty.
func Render(tmpl string, data map[string]any) (string, error) {
	out, err := mustache.Render(tmpl, data)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}
