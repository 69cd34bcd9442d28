// Package docs holds the OpenAPI description of the jobgate admin API.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/locks": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["locks"],
                "summary": "List lock records",
                "responses": {
                    "200": {"description": "Lock records", "schema": {"$ref": "#/definitions/handlers.LockListResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/locks/jobs": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["locks"],
                "summary": "List every job holding a slot",
                "responses": {
                    "200": {"description": "Locked jobs", "schema": {"$ref": "#/definitions/handlers.LockedJobsResponse"}}
                }
            }
        },
        "/locks/{projectID}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["locks"],
                "summary": "Get a project lock record",
                "parameters": [{"type": "integer", "description": "Project ID", "name": "projectID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Lock record", "schema": {"$ref": "#/definitions/core.LockRecord"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["locks"],
                "summary": "Remove a project lock record",
                "description": "The next admission for the project rebuilds the record from the job store",
                "parameters": [{"type": "integer", "description": "Project ID", "name": "projectID", "in": "path", "required": true}],
                "responses": {"204": {"description": "Removed"}}
            }
        },
        "/locks/{projectID}/clear": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["locks"],
                "summary": "Release every slot of a project",
                "parameters": [{"type": "integer", "description": "Project ID", "name": "projectID", "in": "path", "required": true}],
                "responses": {"204": {"description": "Cleared"}}
            }
        },
        "/jobs/{jobID}/lock": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["jobs"],
                "summary": "Request a project slot for a job",
                "description": "Returns admitted=false when the project is at its limit; callers retry later",
                "parameters": [{"type": "integer", "description": "Job ID", "name": "jobID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "Admission decision", "schema": {"$ref": "#/definitions/handlers.AdmissionResponse"}},
                    "404": {"description": "Job not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Exclusive job without project", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["jobs"],
                "summary": "Release the slot held by a job",
                "parameters": [{"type": "integer", "description": "Job ID", "name": "jobID", "in": "path", "required": true}],
                "responses": {"204": {"description": "Released"}}
            }
        },
        "/queue": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["queue"],
                "summary": "List queued chunks",
                "parameters": [
                    {"type": "integer", "description": "Restrict to one project", "name": "project_id", "in": "query"},
                    {"type": "integer", "description": "Maximum number of chunks (default: 100, max: 1000)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Pending chunks", "schema": {"$ref": "#/definitions/handlers.QueueResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "core.HeldJob": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "type": {"type": "string"},
                "status": {"type": "string"},
                "stale": {"type": "boolean"}
            }
        },
        "core.LockRecord": {
            "type": "object",
            "properties": {
                "project_id": {"type": "integer"},
                "status": {"type": "string", "enum": ["UNINITIALIZED", "UNLOCKED", "LOCKED"]},
                "limit": {"type": "integer"},
                "jobs": {"type": "array", "items": {"$ref": "#/definitions/core.HeldJob"}}
            }
        },
        "handlers.AdmissionResponse": {
            "type": "object",
            "properties": {
                "job_id": {"type": "integer"},
                "admitted": {"type": "boolean"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "handlers.LockListResponse": {
            "type": "object",
            "properties": {
                "instance_id": {"type": "string"},
                "count": {"type": "integer"},
                "records": {"type": "array", "items": {"$ref": "#/definitions/core.LockRecord"}}
            }
        },
        "handlers.LockedJobsResponse": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"},
                "jobs": {"type": "array", "items": {"type": "integer"}}
            }
        },
        "jobs.Chunk": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "job_id": {"type": "integer"},
                "project_id": {"type": "integer"},
                "index": {"type": "integer"},
                "locked": {"type": "boolean"},
                "locked_at": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "handlers.QueueResponse": {
            "type": "object",
            "properties": {
                "project_id": {"type": "integer"},
                "count": {"type": "integer"},
                "chunks": {"type": "array", "items": {"$ref": "#/definitions/jobs.Chunk"}}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and an API key.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/v1",
	Schemes:          []string{},
	Title:            "jobgate API",
	Description:      "jobgate admits exclusive batch jobs under a per-project concurrency limit and exposes the lock state for operators.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
