// Package docs registers the OpenAPI description served under /swagger/.
// Regenerate with: swag init -g internal/api/router.go
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
        "/extractions": {
            "get": {"tags": ["extractions"], "summary": "List extractions", "produces": ["application/json"], "responses": {"200": {"description": "Extraction jobs"}}},
            "post": {"tags": ["extractions"], "summary": "Create an extraction", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"name": "extraction", "in": "body", "required": true, "schema": {"type": "object"}}],
                "responses": {"202": {"description": "Extraction accepted"}, "400": {"description": "Invalid request payload"}}}
        },
        "/extractions/{id}": {
            "get": {"tags": ["extractions"], "summary": "Get extraction", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "Extraction job"}, "404": {"description": "Job not found"}}}
        },
        "/extractions/{id}/results": {
            "get": {"tags": ["extractions"], "summary": "Get aggregated quantities",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}, {"name": "sort", "in": "query", "type": "string"}, {"name": "order", "in": "query", "type": "string"}],
                "responses": {"200": {"description": "Aggregated table"}, "409": {"description": "Job not completed"}}}
        },
        "/extractions/{id}/observations": {
            "get": {"tags": ["extractions"], "summary": "Get observations", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "Observation rows"}}}
        },
        "/extractions/{id}/export": {
            "get": {"tags": ["extractions"], "summary": "Export extraction",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}, {"name": "format", "in": "query", "type": "string"}, {"name": "table", "in": "query", "type": "string"}, {"name": "locale", "in": "query", "type": "string"}],
                "responses": {"200": {"description": "Exported table"}}}
        },
        "/extractions/{id}/logs": {
            "get": {"tags": ["extractions"], "summary": "Get extraction logs", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "Stage logs"}}}
        },
        "/comparisons": {
            "get": {"tags": ["comparisons"], "summary": "List comparisons", "responses": {"200": {"description": "Comparison jobs"}}},
            "post": {"tags": ["comparisons"], "summary": "Create a comparison", "consumes": ["application/json"],
                "parameters": [{"name": "comparison", "in": "body", "required": true, "schema": {"type": "object"}}],
                "responses": {"202": {"description": "Comparison accepted"}, "400": {"description": "Invalid request payload"}}}
        },
        "/comparisons/{id}": {
            "get": {"tags": ["comparisons"], "summary": "Get comparison", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "Comparison job"}}}
        },
        "/comparisons/{id}/results": {
            "get": {"tags": ["comparisons"], "summary": "Get differences",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}, {"name": "mirror", "in": "query", "type": "boolean"}],
                "responses": {"200": {"description": "Comparison rows"}}}
        },
        "/comparisons/{id}/export": {
            "get": {"tags": ["comparisons"], "summary": "Export comparison",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}, {"name": "format", "in": "query", "type": "string"}, {"name": "locale", "in": "query", "type": "string"}],
                "responses": {"200": {"description": "Exported differences"}}}
        },
        "/comparisons/{id}/logs": {
            "get": {"tags": ["comparisons"], "summary": "Get comparison logs", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "Stage logs"}}}
        },
        "/jobs/{id}/retry": {
            "post": {"tags": ["jobs"], "summary": "Retry job", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"202": {"description": "Retry initiated"}, "409": {"description": "Job still running"}}}
        },
        "/jobs/{id}/metrics": {
            "get": {"tags": ["jobs"], "summary": "Get job metrics", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "Pipeline metrics"}}}
        },
        "/jobs/{id}/files": {
            "get": {"tags": ["files"], "summary": "List job files", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "Job files"}}}
        },
        "/jobs/{id}/files/{filename}": {
            "get": {"tags": ["files"], "summary": "Download file",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}, {"name": "filename", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "File download"}, "404": {"description": "File not found"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Quantity Pipeline API",
	Description:      "Extracts, aggregates and compares building element quantities.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
