package types

// ChatSettings tunes a single chat request.
type ChatSettings struct {
	// Sampling temperature (higher = more random).
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// Maximum number of new tokens to generate. Clamped to the server token ceiling.
	// example: 256
	MaxTokens int `json:"max_tokens,omitempty" example:"256"`
	// Optional style directive applied to the prompt (e.g., warm, playful, reflective).
	// example: warm
	PersonalityMode string `json:"personality_mode,omitempty" example:"warm"`
	// If true, a voice rendition is synthesized after the text completes.
	// example: false
	IncludeVoice bool `json:"include_voice,omitempty" example:"false"`
}

// ChatRequest represents an inbound chat message for an existing session.
type ChatRequest struct {
	// Session the message belongs to. Created via POST /v1/sessions.
	// example: 2f6c1e1a-0d7e-4b55-9f0e-3f0d6f1c9a11
	SessionID string `json:"session_id" example:"2f6c1e1a-0d7e-4b55-9f0e-3f0d6f1c9a11"`
	// Required message text.
	// example: How was your weekend?
	Message string `json:"message" example:"How was your weekend?"`
	// Optional generation settings.
	Settings ChatSettings `json:"settings,omitempty"`
}

// VoiceInfo describes an audio rendition attached after completion.
type VoiceInfo struct {
	// Reference to the stored audio (object key or URL).
	// example: voice/u-42/1700000000.wav
	AudioRef string `json:"audio_ref" example:"voice/u-42/1700000000.wav"`
	// Quality tag reported by the synthesizer.
	// example: high
	Quality string `json:"quality,omitempty" example:"high"`
	// Synthesis duration in milliseconds.
	// example: 850
	DurationMS int64 `json:"duration_ms" example:"850"`
}

// StreamEvent is one NDJSON line (or WebSocket frame) of a chat stream.
// Exactly one of complete or error terminates a stream; voice may trail complete.
type StreamEvent struct {
	// Event type: chunk, complete, voice, error.
	// example: chunk
	Type string `json:"type" example:"chunk"`
	// Session the event belongs to. Set on WebSocket frames, where several
	// sessions may share one connection.
	SessionID string `json:"session_id,omitempty"`
	// Text fragment (chunk events).
	Content string `json:"content,omitempty"`
	// Full response text (complete events).
	Response string `json:"response,omitempty"`
	// Normalized confidence in [0,1] (complete events).
	// example: 0.82
	Confidence *float64 `json:"confidence,omitempty" example:"0.82"`
	// Origin of the response: model, fallback, fallback-empty.
	// example: model
	Source Source `json:"source,omitempty" example:"model"`
	// Version label of the model that produced the response.
	ModelVersion string `json:"model_version,omitempty"`
	// Generation duration in milliseconds.
	DurationMS int64 `json:"duration_ms,omitempty"`
	// Reason the response was routed to fallback, or the error reason.
	// example: generation_timeout
	Reason string `json:"reason,omitempty" example:"generation_timeout"`
	// Voice rendition (voice events).
	Voice *VoiceInfo `json:"voice,omitempty"`
}

// SessionResponse is returned by POST /v1/sessions.
type SessionResponse struct {
	// example: 2f6c1e1a-0d7e-4b55-9f0e-3f0d6f1c9a11
	SessionID string `json:"session_id" example:"2f6c1e1a-0d7e-4b55-9f0e-3f0d6f1c9a11"`
}

// TurnView is a read-only projection of a stored turn.
type TurnView struct {
	// example: user
	Role string `json:"role" example:"user"`
	Text string `json:"text"`
	// Unix milliseconds.
	At int64 `json:"at_unix_ms"`
	// Optional emotional tone tag.
	Tone string `json:"tone,omitempty"`
}

// WindowResponse is returned by GET /v1/sessions/{id}/window.
type WindowResponse struct {
	SessionID string     `json:"session_id"`
	Turns     []TurnView `json:"turns"`
}

// WarmResponse is returned by POST /v1/models/{user}/warm.
type WarmResponse struct {
	// example: op-3
	OpID string `json:"op_id" example:"op-3"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// HandleStatus summarizes a pooled model handle for /status.
type HandleStatus struct {
	// Owner of the handle.
	// example: u-42
	UserID string `json:"user_id" example:"u-42"`
	// Lifecycle state (loading, ready, busy).
	// example: ready
	State string `json:"state" example:"ready"`
	// Load completion time (unix seconds). Zero while loading.
	LoadedAt int64 `json:"loaded_at_unix"`
	// Last time this handle served a request (unix seconds).
	// example: 1700000000
	LastUsed int64 `json:"last_used_unix" example:"1700000000"`
	// Version reported by the runtime.
	Version string `json:"version,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Pooled handles.
	Handles []HandleStatus `json:"handles"`
	// Maximum concurrently loaded models.
	// example: 3
	Capacity int `json:"capacity" example:"3"`
	// Total successful model loads.
	LoadsTotal uint64 `json:"loads_total"`
	// Total evictions performed to free a slot.
	EvictionsTotal uint64 `json:"evictions_total"`
	// Total acquires that ended with pool exhaustion.
	ExhaustedTotal uint64 `json:"exhausted_total"`
	// Total failed loads (timeout or crash).
	LoadFailuresTotal uint64 `json:"load_failures_total"`
	// Active chat streams.
	ActiveStreams int `json:"active_streams"`
	// Uptime of the server in seconds.
	UptimeSeconds int64 `json:"uptime_seconds"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
}
