package types

// Source tags where a delivered response came from.
type Source string

const (
	SourceModel         Source = "model"
	SourceFallback      Source = "fallback"
	SourceFallbackEmpty Source = "fallback-empty"
)

// Event types emitted on a chat stream.
const (
	EventChunk    = "chunk"
	EventComplete = "complete"
	EventVoice    = "voice"
	EventError    = "error"
)

// Model represents a per-user trained model discovered on disk.
type Model struct {
	// Owner of the model. One model per user.
	// example: u-42
	UserID string `json:"user_id" example:"u-42"`
	// Absolute path to the model file on disk.
	// example: /srv/models/u-42.gguf
	Path string `json:"path" example:"/srv/models/u-42.gguf"`
	// Optional version label reported alongside responses.
	// example: u-42@2024-06-01
	Version string `json:"version,omitempty" example:"u-42@2024-06-01"`
}
