package renew

import (
	"encoding/json"
	"fmt"
)

// JSONField returns an Extractor reading the named string field from a
// JSON object body. A missing field, or one that is not a string, reports
// the credential as absent; a body that does not parse as a JSON object
// is an error.
func JSONField(name string) Extractor {
	return func(body []byte) (string, error) {
		var fields map[string]any
		if err := json.Unmarshal(body, &fields); err != nil {
			return "", fmt.Errorf("parse renewal response: %w", err)
		}

		value, _ := fields[name].(string)
		return value, nil
	}
}
