package intent

import "context"

// Intent is the structured classification of a user query.
type Intent struct {
	Services []string          `json:"services"`
	Name     string            `json:"intent"`
	Entities map[string]string `json:"entities"`
	Steps    []string          `json:"steps"`
}

// Entity returns the first non-empty entity among keys.
func (i Intent) Entity(keys ...string) string {
	for _, k := range keys {
		if v := i.Entities[k]; v != "" {
			return v
		}
	}
	return ""
}

// Classifier converts free text into an Intent.
type Classifier interface {
	Classify(ctx context.Context, query string) (Intent, error)
}
