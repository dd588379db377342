// Package docs 注册 FreightFlow API 的 Swagger 文档，由 /swagger/*any 提供。
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
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "paths": {
        "/v1/dashboard/analytics": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "获取角色看板",
                "parameters": [{"type": "string", "name": "role", "in": "query"}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "403": {"description": "Forbidden"}, "503": {"description": "Service Unavailable"}}
            }
        },
        "/v1/activity": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "动态流",
                "parameters": [
                    {"type": "string", "name": "role", "in": "query"},
                    {"type": "string", "name": "cursor", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/v1/shipments/recent": {
            "get": {
                "tags": ["Shipments"],
                "summary": "最近运单",
                "parameters": [
                    {"type": "string", "name": "role", "in": "query"},
                    {"type": "integer", "name": "page", "in": "query"},
                    {"type": "integer", "name": "pageSize", "in": "query"},
                    {"type": "string", "name": "cursor", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/v1/shipments/{id}": {
            "get": {
                "tags": ["Shipments"],
                "summary": "运单详情",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "role", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/v1/notifications/dispatch": {
            "post": {
                "tags": ["Notifications"],
                "summary": "分发通知",
                "consumes": ["application/json"],
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"type": "object"}}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "403": {"description": "Forbidden"}}
            }
        },
        "/v1/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "我的站内通知",
                "parameters": [
                    {"type": "string", "name": "cursor", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/notifications/{id}/read": {
            "post": {
                "tags": ["Notifications"],
                "summary": "标记通知已读",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/v1/notifications/read-all": {
            "post": {
                "tags": ["Notifications"],
                "summary": "全部标记已读",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/notifications/preferences": {
            "get": {
                "tags": ["Notifications"],
                "summary": "我的通知偏好",
                "responses": {"200": {"description": "OK"}}
            },
            "put": {
                "tags": ["Notifications"],
                "summary": "修改通知偏好",
                "consumes": ["application/json"],
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"type": "object"}}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/health": {
            "get": {
                "tags": ["Health"],
                "summary": "健康检查",
                "security": [],
                "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable"}}
            }
        },
        "/health/detailed": {
            "get": {
                "tags": ["Health"],
                "summary": "详细健康检查",
                "security": [],
                "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable"}}
            }
        }
    }
}`

// SwaggerInfo 文档元信息，启动时可覆盖 Host 与 Version
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "FreightFlow Dashboard & Notification API",
	Description:      "Role-scoped dashboards, activity feeds and multi-channel notification dispatch.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
