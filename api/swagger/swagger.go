package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Tahfidz Progress API",
        "description": "Memorisation progress tracking and the three-strike warning ladder",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": ["http", "https"],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Progress", "description": "Derived weekly memorisation grids"},
        {"name": "Warnings", "description": "Warning letters and escalation"},
        {"name": "Curriculum", "description": "Curriculum units and block schedules"}
    ],
    "paths": {
        "/learners/{id}/progress": {
            "get": {
                "tags": ["Progress"],
                "summary": "Get a learner's memorisation progress",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Learner not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/learners/{id}/progress/export": {
            "get": {
                "tags": ["Progress"],
                "summary": "Download a learner's progress grid",
                "produces": ["text/csv", "application/pdf", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf", "xlsx"], "default": "csv"}
                ],
                "responses": {
                    "200": {"description": "Document", "schema": {"type": "file"}},
                    "400": {"description": "Unsupported format", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/learners/{id}/warnings": {
            "get": {
                "tags": ["Warnings"],
                "summary": "List a learner's warnings",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/learners/{id}/escalation": {
            "get": {
                "tags": ["Warnings"],
                "summary": "Ladder state and terminal record of a learner",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/warnings": {
            "post": {
                "tags": ["Warnings"],
                "summary": "Issue the next warning for a non-compliant week",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/IssueWarningRequest"}}],
                "responses": {
                    "201": {"description": "Issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "200": {"description": "Existing warning for the same week", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Concurrent write, retry", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Ladder exhausted or week already completed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/warnings/{id}/cancel": {
            "post": {
                "tags": ["Warnings"],
                "summary": "Cancel a warning",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Warning not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/warnings/{id}/letter": {
            "get": {
                "tags": ["Warnings"],
                "summary": "Download a warning letter",
                "produces": ["application/pdf"],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "PDF", "schema": {"type": "file"}}}
            }
        },
        "/cohorts/{id}/progress": {
            "get": {
                "tags": ["Progress"],
                "summary": "Progress overview for every learner of a cohort",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/curriculum/units": {
            "get": {
                "tags": ["Curriculum"],
                "summary": "List curriculum units",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/curriculum/units/{code}/blocks": {
            "get": {
                "tags": ["Curriculum"],
                "summary": "Generated block schedule of a curriculum unit",
                "parameters": [{"name": "code", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "IssueWarningRequest": {
            "type": "object",
            "required": ["learner_id", "week", "reason"],
            "properties": {
                "learner_id": {"type": "string"},
                "week": {"type": "integer", "minimum": 1, "maximum": 10},
                "reason": {"type": "string"},
                "final_action": {"type": "string", "enum": ["blacklisted", "permanent_dismissal", "temporary_dismissal"]},
                "exception_type": {"type": "string"},
                "notes": {"type": "string"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "retryable": {"type": "boolean"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
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
