//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// SwaggerInfo describes the API document served at /swagger/doc.json.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "replyd API",
	Description:      "Conversation inference: sessions, streamed chat replies and model pool controls.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// MountSwagger serves the Swagger UI and document under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{escape .Description}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "schemes": {{ marshal .Schemes }},
    "paths": {
        "/v1/sessions": {
            "post": {
                "tags": ["sessions"],
                "summary": "Create a conversation session",
                "parameters": [{"type": "string", "name": "X-User-ID", "in": "header", "required": true}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/types.SessionResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/v1/sessions/{id}/window": {
            "get": {
                "tags": ["sessions"],
                "summary": "Read a session's context window",
                "parameters": [
                    {"type": "string", "name": "X-User-ID", "in": "header", "required": true},
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.WindowResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/v1/chat": {
            "post": {
                "tags": ["chat"],
                "summary": "Send a chat message and stream the reply",
                "consumes": ["application/json"],
                "produces": ["application/x-ndjson"],
                "parameters": [
                    {"type": "string", "name": "X-User-ID", "in": "header", "required": true},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.ChatRequest"}}
                ],
                "responses": {
                    "200": {"description": "NDJSON stream", "schema": {"$ref": "#/definitions/types.StreamEvent"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/v1/models/{user}/warm": {
            "post": {
                "tags": ["models"],
                "summary": "Preload a user's model",
                "parameters": [{"type": "string", "name": "user", "in": "path", "required": true}],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/types.WarmResponse"}}
                }
            }
        },
        "/v1/models/{user}": {
            "delete": {
                "tags": ["models"],
                "summary": "Unload a user's model",
                "parameters": [{"type": "string", "name": "user", "in": "path", "required": true}],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "tags": ["ops"],
                "summary": "Pool and stream status",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}}
            }
        }
    },
    "definitions": {
        "types.ChatSettings": {
            "type": "object",
            "properties": {
                "temperature": {"type": "number", "example": 0.7},
                "max_tokens": {"type": "integer", "example": 256},
                "personality_mode": {"type": "string", "example": "warm"},
                "include_voice": {"type": "boolean"}
            }
        },
        "types.ChatRequest": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "message": {"type": "string", "example": "How was your weekend?"},
                "settings": {"$ref": "#/definitions/types.ChatSettings"}
            }
        },
        "types.VoiceInfo": {
            "type": "object",
            "properties": {
                "audio_ref": {"type": "string"},
                "quality": {"type": "string"},
                "duration_ms": {"type": "integer"}
            }
        },
        "types.StreamEvent": {
            "type": "object",
            "properties": {
                "type": {"type": "string", "example": "chunk"},
                "session_id": {"type": "string"},
                "content": {"type": "string"},
                "response": {"type": "string"},
                "confidence": {"type": "number", "example": 0.82},
                "source": {"type": "string", "example": "model"},
                "model_version": {"type": "string"},
                "duration_ms": {"type": "integer"},
                "reason": {"type": "string"},
                "voice": {"$ref": "#/definitions/types.VoiceInfo"}
            }
        },
        "types.SessionResponse": {"type": "object", "properties": {"session_id": {"type": "string"}}},
        "types.TurnView": {
            "type": "object",
            "properties": {
                "role": {"type": "string"},
                "text": {"type": "string"},
                "at_unix_ms": {"type": "integer"},
                "tone": {"type": "string"}
            }
        },
        "types.WindowResponse": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "turns": {"type": "array", "items": {"$ref": "#/definitions/types.TurnView"}}
            }
        },
        "types.WarmResponse": {"type": "object", "properties": {"op_id": {"type": "string"}}},
        "types.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}, "code": {"type": "integer"}}
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "capacity": {"type": "integer"},
                "loads_total": {"type": "integer"},
                "evictions_total": {"type": "integer"},
                "exhausted_total": {"type": "integer"},
                "load_failures_total": {"type": "integer"},
                "active_streams": {"type": "integer"},
                "uptime_seconds": {"type": "integer"},
                "server_time_unix": {"type": "integer"}
            }
        }
    }
}`
