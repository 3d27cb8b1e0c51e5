// Package docs holds the generated OpenAPI definition served by the Swagger
// UI route. Regenerate with `swag init -g cmd/server/main.go` after changing
// handler annotations.
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
        "/classify": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["classification"],
                "summary": "Preview the two-pass intent classification for a reply text",
                "parameters": [
                    {
                        "description": "Reply text to classify",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handlers.ClassifyRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "Detection result"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "Classifier unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/replies": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["replies"],
                "summary": "Ingest a candidate inbound reply",
                "parameters": [
                    {
                        "description": "Reply payload",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handlers.IngestReplyRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/replies/{id}/process": {
            "post": {
                "produces": ["application/json"],
                "tags": ["replies"],
                "summary": "Run the auto-reply pipeline for one reply",
                "parameters": [
                    {"type": "string", "description": "Reply ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Processing outcome"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Auto-reply disabled or misconfigured", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/logs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["logs"],
                "summary": "List the attempt log, most recent first",
                "parameters": [
                    {"type": "integer", "default": 1, "name": "page", "in": "query"},
                    {"type": "integer", "default": 20, "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Page of log rows", "schema": {"$ref": "#/definitions/handlers.LogsResponse"}}
                }
            }
        },
        "/logs/pending-review": {
            "get": {
                "produces": ["application/json"],
                "tags": ["logs"],
                "summary": "List replies flagged for human review",
                "responses": {
                    "200": {"description": "Rows awaiting review"}
                }
            }
        },
        "/settings": {
            "get": {
                "produces": ["application/json"],
                "tags": ["settings"],
                "summary": "Get the caller's auto-reply settings",
                "responses": {
                    "200": {"description": "Current settings"}
                }
            },
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["settings"],
                "summary": "Replace the caller's auto-reply settings",
                "parameters": [
                    {
                        "description": "Settings payload",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handlers.UpdateSettingsRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "Updated settings"},
                    "422": {"description": "Invalid settings", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.ClassifyRequest": {
            "type": "object",
            "required": ["text"],
            "properties": {
                "text": {"type": "string", "example": "Sounds good, send me the link"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string", "example": "reply not found"},
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"}
            }
        },
        "handlers.IngestReplyRequest": {
            "type": "object",
            "required": ["contact_id", "body"],
            "properties": {
                "contact_id": {"type": "string", "example": "ct_8321"},
                "contact_name": {"type": "string", "example": "Dana Whitfield"},
                "contact_email": {"type": "string", "example": "dana@acme.example"},
                "subject": {"type": "string", "example": "Quick question about Q3"},
                "body": {"type": "string", "example": "Yes, let's set up a call."},
                "received_at": {"type": "string", "example": "2025-06-02T10:04:05Z"}
            }
        },
        "handlers.LogsResponse": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"type": "object"}},
                "pagination": {"type": "object"}
            }
        },
        "handlers.UpdateSettingsRequest": {
            "type": "object",
            "properties": {
                "enabled": {"type": "boolean", "example": true},
                "booking_link": {"type": "string", "example": "https://cal.example/dana/30min"},
                "custom_template": {"type": "string"}
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
	Title:            "Reply Engine API",
	Description:      "Reply-intent classification and autonomous auto-reply service.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
