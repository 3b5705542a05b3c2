// Package docs registers the OpenAPI document served by gin-swagger under
// /swagger/*any. Keep it in sync with the godoc annotations on the handlers.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/translations": {
            "post": {
                "description": "Translates a stored review field or ad-hoc text. The first successful translation opens a window that locks the content to the target language for the window TTL.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Translations"],
                "summary": "Translate text into a target language",
                "operationId": "translate",
                "parameters": [
                    {"type": "string", "example": "user123", "description": "User ID", "name": "X-User-ID", "in": "header", "required": true},
                    {"type": "string", "example": "req-7f1c", "description": "Reuses the ad-hoc window on client retry", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Translation request", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.TranslateRequest"}}
                ],
                "responses": {
                    "200": {"description": "Translation from a new or an active window; cached tells them apart", "schema": {"$ref": "#/definitions/handlers.TranslationResponse"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Missing identity", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "User or source not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Content locked to another language", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {
                        "description": "Active window quota reached",
                        "schema": {"$ref": "#/definitions/handlers.ErrorResponse"},
                        "headers": {"Retry-After": {"type": "integer", "description": "Seconds until a slot frees"}}
                    },
                    "503": {"description": "Provider or storage unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/translations/quota": {
            "get": {
                "description": "Returns how many translation windows the caller holds and when the next slot frees up.",
                "produces": ["application/json"],
                "tags": ["Translations"],
                "summary": "Active window quota",
                "operationId": "translationQuota",
                "parameters": [
                    {"type": "string", "example": "user123", "description": "User ID", "name": "X-User-ID", "in": "header", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.QuotaResponse"}},
                    "401": {"description": "Missing identity", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Storage unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/translations/windows": {
            "get": {
                "description": "Returns the caller's active windows, soonest expiry first. Supports weak ETag via If-None-Match and may return 304.",
                "produces": ["application/json"],
                "tags": ["Translations"],
                "summary": "List active translation windows",
                "operationId": "listTranslationWindows",
                "parameters": [
                    {"type": "string", "example": "user123", "description": "User ID", "name": "X-User-ID", "in": "header", "required": true},
                    {"type": "string", "description": "Return 304 if ETag matches", "name": "If-None-Match", "in": "header"},
                    {"maximum": 100, "minimum": 1, "type": "integer", "default": 20, "description": "Max windows", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/handlers.ListWindowsResponse"},
                        "headers": {"ETag": {"type": "string", "description": "Weak ETag for current result"}}
                    },
                    "304": {"description": "Not Modified", "schema": {"type": "string"}},
                    "401": {"description": "Missing identity", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Storage unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.ContentKey": {
            "type": "object",
            "properties": {
                "field": {"type": "string", "example": "review_body"},
                "id": {"type": "string", "example": "42"},
                "table": {"type": "string", "example": "trustpilot_reviews"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "window_quota"},
                "locked_lang": {"type": "string", "example": "fr"},
                "locked_until": {"type": "string", "example": "2025-03-10T21:00:00Z"},
                "message": {"type": "string", "example": "active window quota of 5 reached, retry in 3600s"},
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"},
                "retry_after_seconds": {"type": "integer", "example": 3600},
                "retryable": {"type": "boolean"}
            }
        },
        "handlers.ListWindowsResponse": {
            "type": "object",
            "properties": {
                "count": {"type": "integer", "example": 1},
                "windows": {"type": "array", "items": {"$ref": "#/definitions/handlers.WindowSummary"}}
            }
        },
        "handlers.QuotaResponse": {
            "type": "object",
            "properties": {
                "active": {"type": "integer", "example": 2},
                "limit": {"type": "integer", "example": 5},
                "next_slot_at": {"type": "string", "example": "2025-03-10T21:00:00Z"},
                "remaining": {"type": "integer", "example": 3}
            }
        },
        "handlers.SourceRefRequest": {
            "type": "object",
            "properties": {
                "field": {"type": "string", "example": "review_body"},
                "id": {"type": "string", "example": "42"},
                "table": {"type": "string", "example": "trustpilot_reviews"}
            }
        },
        "handlers.TranslateRequest": {
            "type": "object",
            "properties": {
                "options": {"$ref": "#/definitions/handlers.TranslationOptionsRequest"},
                "source": {"$ref": "#/definitions/handlers.SourceRefRequest"},
                "target_lang": {"type": "string", "example": "en"},
                "text": {"type": "string", "example": "Très bon service, livraison rapide"}
            }
        },
        "handlers.TranslationOptionsRequest": {
            "type": "object",
            "properties": {
                "domain": {"type": "string", "enum": ["general", "review", "social"], "example": "review"},
                "formality": {"type": "string", "enum": ["default", "formal", "informal"], "example": "default"},
                "preserve_emojis": {"type": "boolean", "example": true}
            }
        },
        "handlers.TranslationResponse": {
            "type": "object",
            "properties": {
                "cached": {"type": "boolean", "example": false},
                "detected_lang": {"type": "string", "example": "fr"},
                "source_ref": {"$ref": "#/definitions/domain.ContentKey"},
                "target_lang": {"type": "string", "example": "en"},
                "translated_text": {"type": "string", "example": "Very good service, fast delivery"},
                "window_expires_at": {"type": "string", "example": "2025-03-10T21:00:00Z"}
            }
        },
        "handlers.WindowSummary": {
            "type": "object",
            "properties": {
                "created_at": {"type": "string"},
                "detected_lang": {"type": "string", "example": "fr"},
                "expires_at": {"type": "string"},
                "id": {"type": "string", "example": "141add05-4415-4938-b5a1-17e0d3171aff"},
                "source_ref": {"$ref": "#/definitions/domain.ContentKey"},
                "target_lang": {"type": "string", "example": "en"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Translation Window API",
	Description:      "Per-user, time-boxed translation windows over review content.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
