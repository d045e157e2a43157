// Package docs holds the OpenAPI document served under /docs.
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
        "/capture": {
            "post": {
                "description": "Saves the next fresh frame as a JPEG in the active save directory",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["capture"],
                "summary": "Capture a still image",
                "parameters": [
                    {
                        "description": "Base name",
                        "name": "request",
                        "in": "body",
                        "schema": {"$ref": "#/definitions/models.CaptureRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.CaptureResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/config": {
            "get": {
                "produces": ["application/json"],
                "tags": ["config"],
                "summary": "Get configuration",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ConfigResponse"}}
                }
            },
            "post": {
                "description": "Switches camera, sets the save directory and camera properties",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["config"],
                "summary": "Update configuration",
                "parameters": [
                    {
                        "description": "Changes",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/models.ConfigRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ConfigResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Service status",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/stream": {
            "get": {
                "produces": ["multipart/x-mixed-replace"],
                "tags": ["stream"],
                "summary": "Live MJPEG stream",
                "responses": {
                    "200": {"description": "OK"},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/ws": {
            "get": {
                "tags": ["stream"],
                "summary": "Live WebSocket stream",
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/system/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Get system stats",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "models.CaptureRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "user_base_name": {"type": "string"}
            }
        },
        "models.CaptureResponse": {
            "type": "object",
            "properties": {
                "ok": {"type": "boolean"},
                "saved_path": {"type": "string"},
                "filename": {"type": "string"},
                "seq": {"type": "integer"},
                "bytes": {"type": "integer"},
                "device": {"type": "integer"},
                "timestamp": {"type": "string"}
            }
        },
        "models.ConfigRequest": {
            "type": "object",
            "properties": {
                "index": {"type": "integer"},
                "name": {"type": "string"},
                "save_dir": {"type": "string"},
                "properties": {"type": "object", "additionalProperties": {"type": "number"}}
            }
        },
        "models.ConfigResponse": {
            "type": "object",
            "properties": {
                "available_indices": {"type": "array", "items": {"type": "integer"}},
                "devices": {"type": "array", "items": {"$ref": "#/definitions/models.DeviceEntry"}},
                "current_index": {"type": "integer"},
                "current_name": {"type": "string"},
                "save_dir": {"type": "string"},
                "save_dir_override": {"type": "string"},
                "properties": {"type": "object", "additionalProperties": {"type": "number"}},
                "unsupported": {"type": "array", "items": {"type": "string"}},
                "status": {"$ref": "#/definitions/models.CameraStatus"}
            }
        },
        "models.DeviceEntry": {
            "type": "object",
            "properties": {
                "index": {"type": "integer"},
                "name": {"type": "string"}
            }
        },
        "models.CameraStatus": {
            "type": "object",
            "properties": {
                "state": {"type": "string"},
                "degraded": {"type": "boolean"},
                "index": {"type": "integer"},
                "name": {"type": "string"},
                "backend": {"type": "string"},
                "last_seq": {"type": "integer"},
                "last_frame_time": {"type": "string"},
                "frame_count": {"type": "integer"},
                "error_count": {"type": "integer"},
                "subscribers": {"type": "integer"},
                "last_error": {"type": "string"}
            }
        },
        "models.ErrorResponse": {
            "type": "object",
            "properties": {
                "ok": {"type": "boolean"},
                "kind": {"type": "string"},
                "error": {"type": "string"},
                "message": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:5000",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "snapcam API",
	Description:      "Local camera service: live MJPEG preview, still capture and camera configuration",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
