// Package docs holds the OpenAPI document served at /openapi.json, in the
// layout swag init emits. Keep it in step with the handler godoc annotations.
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
        "/": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Service status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.RootResponse"}}
                }
            }
        },
        "/ping": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.PingResponse"}}
                }
            }
        },
        "/api/users/": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "List users",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.UserResponse"}}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/model.MessageResponse"}}
                }
            }
        },
        "/api/users/forget-password": {
            "post": {
                "description": "Stores a reset token valid for 3 hours and mails the link. Mail delivery errors are not reported.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "Request a password reset link",
                "parameters": [
                    {"description": "Account email", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.ForgotPasswordRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/model.MessageResponse"}}
                }
            }
        },
        "/api/users/profile": {
            "put": {
                "security": [{"BearerAuth": []}],
                "description": "Empty fields keep their current value. Returns a fresh token.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "Update own profile",
                "parameters": [
                    {"description": "Profile fields", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.ProfileUpdateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.UserResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/model.MessageResponse"}}
                }
            }
        },
        "/api/users/reset-password": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "Reset password with a reset token",
                "parameters": [
                    {"description": "Reset token and new password", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.ResetPasswordRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/model.MessageResponse"}}
                }
            }
        },
        "/api/users/signin": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "Sign in",
                "parameters": [
                    {"description": "Email and password", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.SigninRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.UserResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/model.MessageResponse"}}
                }
            }
        },
        "/api/users/signup": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "Register a new user",
                "parameters": [
                    {"description": "Name, email and password", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.SignupRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.UserResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/model.MessageResponse"}}
                }
            }
        },
        "/api/users/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Get a user by ID",
                "parameters": [
                    {"type": "string", "description": "User ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.UserResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/model.MessageResponse"}}
                }
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "description": "The bootstrap admin always keeps its admin flag and email.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Edit a user",
                "parameters": [
                    {"type": "string", "description": "User ID", "name": "id", "in": "path", "required": true},
                    {"description": "User fields", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.AdminUpdateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.UserUpdatedResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/model.MessageResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "description": "The bootstrap admin can not be deleted.",
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Delete a user",
                "parameters": [
                    {"type": "string", "description": "User ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/model.MessageResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/model.MessageResponse"}}
                }
            }
        }
    },
    "definitions": {
        "model.AdminUpdateRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "isAdmin": {"type": "boolean"},
                "name": {"type": "string"}
            }
        },
        "model.ForgotPasswordRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"}
            }
        },
        "model.MessageResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"}
            }
        },
        "model.PingResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"}
            }
        },
        "model.ProfileUpdateRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "name": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "model.ResetPasswordRequest": {
            "type": "object",
            "properties": {
                "password": {"type": "string"},
                "token": {"type": "string"}
            }
        },
        "model.RootResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "status": {"type": "string"}
            }
        },
        "model.SigninRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "model.SignupRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "name": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "model.UserResponse": {
            "type": "object",
            "properties": {
                "_id": {"type": "string"},
                "email": {"type": "string"},
                "isAdmin": {"type": "boolean"},
                "name": {"type": "string"},
                "token": {"type": "string"}
            }
        },
        "model.UserUpdatedResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "user": {"$ref": "#/definitions/model.UserResponse"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and the session token.",
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
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Amazona User Service API",
	Description:      "Accounts, session tokens and password reset for the Amazona storefront.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
