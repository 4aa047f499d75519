package model

// DefaultKeyFormat yields four groups of six hex digits.
const DefaultKeyFormat = "XXXXXX-XXXXXX-XXXXXX-XXXXXX"

// Settings holds deployment-wide options.
type Settings struct {
	KeyFormat string `json:"keyFormat"`
}
