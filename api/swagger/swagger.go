package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Marsha LTI API",
        "description": "LTI launch resolution, resource tokens and playlist portability.",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "ResourceToken": {"type": "apiKey", "in": "header", "name": "Authorization"}
    },
    "tags": [
        {"name": "LTI", "description": "Launch resolution and user associations"},
        {"name": "Resources", "description": "Resources reachable with a resource token"},
        {"name": "Portability", "description": "Playlist portability requests"},
        {"name": "Ops", "description": "Health, readiness and metrics"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["Ops"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "tags": ["Ops"],
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "A dependency is unavailable"}
                }
            }
        },
        "/metrics": {
            "get": {
                "tags": ["Ops"],
                "summary": "Prometheus metrics",
                "produces": ["text/plain"],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/lti/{kind}/launch": {
            "post": {
                "tags": ["LTI"],
                "summary": "Resolve an LTI launch",
                "consumes": ["application/x-www-form-urlencoded", "application/json"],
                "parameters": [
                    {"name": "kind", "in": "path", "required": true, "type": "string", "enum": ["video", "document", "markdown_document", "classroom"]},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LaunchRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid launch", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unknown or revoked passport", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown resource kind", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/resources/{id}": {
            "get": {
                "tags": ["Resources"],
                "summary": "Get a resource",
                "security": [{"ResourceToken": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/lti-user-associations": {
            "post": {
                "tags": ["LTI"],
                "summary": "Associate the token's LTI user with an account",
                "security": [{"ResourceToken": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateAssociationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already associated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/portability-requests": {
            "post": {
                "tags": ["Portability"],
                "summary": "Request access to another playlist",
                "security": [{"ResourceToken": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreatePortabilityRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Instructor role required", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "A pending request already exists", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/portability-requests/{id}/accept": {
            "post": {
                "tags": ["Portability"],
                "summary": "Accept a pending portability request",
                "security": [{"ResourceToken": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Request already decided", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/portability-requests/{id}/reject": {
            "post": {
                "tags": ["Portability"],
                "summary": "Reject a pending portability request",
                "security": [{"ResourceToken": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Request already decided", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LaunchRequest": {
            "type": "object",
            "required": ["oauth_consumer_key", "resource_link_id", "context_id", "roles"],
            "properties": {
                "oauth_consumer_key": {"type": "string"},
                "resource_link_id": {"type": "string"},
                "resource_link_title": {"type": "string"},
                "context_id": {"type": "string"},
                "context_title": {"type": "string"},
                "user_id": {"type": "string"},
                "roles": {"type": "string"}
            }
        },
        "CreateAssociationRequest": {
            "type": "object",
            "required": ["user_id"],
            "properties": {
                "user_id": {"type": "string", "format": "uuid"}
            }
        },
        "CreatePortabilityRequest": {
            "type": "object",
            "required": ["for_playlist"],
            "properties": {
                "for_playlist": {"type": "string", "format": "uuid"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "request_id": {"type": "string"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
