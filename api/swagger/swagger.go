package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "FieldSync Agent API",
        "description": "Offline fieldwork agent: local checklist store, durable sync queue and conflict resolution",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Checklist", "description": "Review checklist kept in the local store"},
        {"name": "Evidence", "description": "Media captures attached to checklist items"},
        {"name": "Findings", "description": "Draft findings raised during fieldwork"},
        {"name": "Sync", "description": "Durable queue, drain passes and conflicts"},
        {"name": "Preflight", "description": "Capability checks before going offline"},
        {"name": "Reports", "description": "Asynchronous fieldwork summary exports"}
    ],
    "paths": {
        "/reviews/{id}/initialize": {
            "post": {
                "tags": ["Checklist"],
                "summary": "Prepare a review for offline fieldwork",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "No local data and server unreachable"}
                }
            }
        },
        "/reviews/{id}/checklist": {
            "get": {
                "tags": ["Checklist"],
                "summary": "Review checklist",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reviews/{id}/close": {
            "post": {
                "tags": ["Checklist"],
                "summary": "Archive a review's checklist",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/reviews/{id}/preflight": {
            "get": {
                "tags": ["Preflight"],
                "summary": "Run preflight checks for a review",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "Full report, including failed checks"}
                }
            }
        },
        "/reviews/{id}/findings": {
            "get": {
                "tags": ["Findings"],
                "summary": "Draft findings of one review",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/checklist-items/{id}": {
            "patch": {
                "tags": ["Checklist"],
                "summary": "Edit one checklist item",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateChecklistItemRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/checklist-items/{id}/evidence": {
            "get": {
                "tags": ["Evidence"],
                "summary": "Evidence metadata for one checklist item",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Evidence"],
                "summary": "Attach a media capture",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CaptureEvidenceRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "422": {"description": "Capture rejected"},
                    "507": {"description": "Local storage quota exceeded"}
                }
            }
        },
        "/evidence/{id}/blob": {
            "get": {
                "tags": ["Evidence"],
                "summary": "Raw media payload of one capture",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Unknown capture or blob pruned after upload"}
                }
            }
        },
        "/evidence/{id}/annotations": {
            "patch": {
                "tags": ["Evidence"],
                "summary": "Replace the annotation overlay of a capture",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AnnotateEvidenceRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/evidence/{id}": {
            "delete": {
                "tags": ["Evidence"],
                "summary": "Discard an unsynced capture",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "204": {"description": "Discarded"},
                    "400": {"description": "Synced evidence cannot be discarded"}
                }
            }
        },
        "/findings": {
            "post": {
                "tags": ["Findings"],
                "summary": "Draft a finding",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateFindingRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/findings/{id}": {
            "patch": {
                "tags": ["Findings"],
                "summary": "Edit a draft finding",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateFindingRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "delete": {
                "tags": ["Findings"],
                "summary": "Delete a draft finding",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "204": {"description": "Deleted"}
                }
            }
        },
        "/sync": {
            "post": {
                "tags": ["Sync"],
                "summary": "Run one sync pass now",
                "responses": {
                    "200": {"description": "Pass outcome and fresh status"}
                }
            }
        },
        "/sync/status": {
            "get": {
                "tags": ["Sync"],
                "summary": "Aggregate sync status",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/sync/queue": {
            "get": {
                "tags": ["Sync"],
                "summary": "List queued mutations",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "enum": ["pending", "failed", "conflict"]},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/sync/retry-failed": {
            "post": {
                "tags": ["Sync"],
                "summary": "Revive exhausted queue entries",
                "responses": {
                    "200": {"description": "Number of revived entries"}
                }
            }
        },
        "/sync/conflicts": {
            "get": {
                "tags": ["Sync"],
                "summary": "List conflicted entries with both sides",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/sync/conflicts/{id}/resolve": {
            "post": {
                "tags": ["Sync"],
                "summary": "Resolve one conflicted entry",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ResolveConflictRequest"}}
                ],
                "responses": {
                    "204": {"description": "Resolved"},
                    "409": {"description": "Server state unavailable for keep_server"}
                }
            }
        },
        "/field-reports": {
            "post": {
                "tags": ["Reports"],
                "summary": "Queue a fieldwork summary export",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/FieldReportRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted"}
                }
            }
        },
        "/field-reports/{id}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Export job progress",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/field-reports/download": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download a finished export",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"name": "token", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Missing or tampered token"}
                }
            }
        }
    },
    "definitions": {
        "UpdateChecklistItemRequest": {
            "type": "object",
            "properties": {
                "isCompleted": {"type": "boolean"},
                "notes": {"type": "string"},
                "completedAt": {"type": "string", "format": "date-time"}
            }
        },
        "CaptureEvidenceRequest": {
            "type": "object",
            "properties": {
                "reviewId": {"type": "string"},
                "type": {"type": "string", "enum": ["PHOTO", "VOICE_NOTE", "VIDEO"]},
                "mimeType": {"type": "string"},
                "fileName": {"type": "string"},
                "blob": {"type": "string", "format": "byte"},
                "thumbnail": {"type": "string", "format": "byte"},
                "durationSeconds": {"type": "number"},
                "annotations": {"type": "string"}
            },
            "required": ["reviewId", "type", "mimeType", "blob"]
        },
        "AnnotateEvidenceRequest": {
            "type": "object",
            "properties": {
                "annotations": {"type": "string"}
            },
            "required": ["annotations"]
        },
        "CreateFindingRequest": {
            "type": "object",
            "properties": {
                "reviewId": {"type": "string"},
                "checklistItemId": {"type": "string"},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "severity": {"type": "string", "enum": ["observation", "minor", "major"]}
            },
            "required": ["reviewId", "title", "severity"]
        },
        "UpdateFindingRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "severity": {"type": "string", "enum": ["observation", "minor", "major"]}
            }
        },
        "ResolveConflictRequest": {
            "type": "object",
            "properties": {
                "resolution": {"type": "string", "enum": ["keep_mine", "keep_server"]}
            },
            "required": ["resolution"]
        },
        "FieldReportRequest": {
            "type": "object",
            "properties": {
                "reviewId": {"type": "string"},
                "format": {"type": "string", "enum": ["csv", "pdf"]}
            },
            "required": ["reviewId", "format"]
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
