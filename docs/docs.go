// Package docs registers the OpenAPI document served under /swagger/.
// Regenerate with: swag init -g cmd/server/main.go
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/v1/notifications": {
            "post": {
                "description": "Run a notification through the dispatch pipeline and return its outcome",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["notifications"],
                "summary": "Send notification",
                "parameters": [
                    {"type": "string", "description": "Tenant ID", "name": "X-Tenant-ID", "in": "header"},
                    {"type": "string", "description": "Idempotency key", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Notification request", "name": "notification", "in": "body", "required": true,
                     "schema": {"$ref": "#/definitions/handler.SendNotificationRequest"}}
                ],
                "responses": {
                    "200": {"description": "duplicate", "schema": {"$ref": "#/definitions/handler.Response"}},
                    "202": {"description": "sent", "schema": {"$ref": "#/definitions/handler.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.Response"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/handler.Response"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/handler.Response"}}
                }
            }
        },
        "/api/v1/notifications/queue": {
            "post": {
                "description": "Publish a notification onto the durable queue; a worker dispatches it",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["notifications"],
                "summary": "Enqueue notification",
                "parameters": [
                    {"type": "string", "description": "Tenant ID", "name": "X-Tenant-ID", "in": "header"},
                    {"type": "string", "description": "Idempotency key", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Notification request", "name": "notification", "in": "body", "required": true,
                     "schema": {"$ref": "#/definitions/handler.SendNotificationRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/handler.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.Response"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.Response"}}
                }
            }
        },
        "/api/v1/providers": {
            "get": {
                "produces": ["application/json"],
                "tags": ["providers"],
                "summary": "List providers",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.Response"}}}
            }
        },
        "/api/v1/providers/breakers": {
            "get": {
                "description": "Breaker state per (channel, provider) pair seen since start",
                "produces": ["application/json"],
                "tags": ["providers"],
                "summary": "List circuit breakers",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.Response"}}}
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.Response"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handler.Response"}}
                }
            }
        },
        "/health/live": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Liveness probe",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/health/ready": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Readiness probe",
                "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable"}}
            }
        },
        "/metrics/realtime": {
            "get": {
                "produces": ["application/json"],
                "tags": ["metrics"],
                "summary": "Real-time metrics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.Response"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.Response"}}
                }
            }
        },
        "/ws": {
            "get": {
                "description": "Stream dispatch events; send {\"action\":\"subscribe\",\"filter\":{...}} to narrow it",
                "tags": ["websocket"],
                "summary": "Dispatch event stream",
                "parameters": [
                    {"type": "string", "description": "Channel filter", "name": "channel", "in": "query"},
                    {"type": "string", "description": "Tenant filter", "name": "tenant", "in": "query"},
                    {"type": "string", "description": "Outcome filter", "name": "outcome", "in": "query"}
                ],
                "responses": {"101": {"description": "Switching Protocols"}}
            }
        }
    },
    "definitions": {
        "handler.Error": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "details": {},
                "message": {"type": "string"}
            }
        },
        "handler.Response": {
            "type": "object",
            "properties": {
                "data": {},
                "error": {"$ref": "#/definitions/handler.Error"},
                "success": {"type": "boolean"}
            }
        },
        "handler.RecipientInput": {
            "type": "object",
            "properties": {
                "device_token": {"type": "string"},
                "email": {"type": "string", "example": "ada@example.com"},
                "phone": {"type": "string", "example": "+905551234567"}
            }
        },
        "handler.SendNotificationRequest": {
            "type": "object",
            "properties": {
                "channel": {"type": "string", "enum": ["email", "sms", "push", "whatsapp", "inapp"], "example": "email"},
                "idempotency_key": {"type": "string", "example": "order-123-welcome"},
                "locale": {"type": "string", "example": "en-GB"},
                "metadata": {"type": "object", "additionalProperties": true},
                "priority": {"type": "string", "enum": ["high", "normal", "low"], "example": "normal"},
                "template_id": {"type": "string", "example": "welcome"},
                "tenant_id": {"type": "string", "example": "acme"},
                "to": {"$ref": "#/definitions/handler.RecipientInput"},
                "variables": {"type": "object", "additionalProperties": true}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Dispatch Service API",
	Description:      "Multi-channel notification dispatch with idempotency, throttling and provider circuit breaking",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
