package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the form service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>collabform API docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document describing the durable-write surface. The
// realtime channel (GET /ws) is a WebSocket upgrade and is listed for
// discovery only.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "collabform", "version": "v0.1.0" },
  "paths": {
    "/api/forms/{id}": {
      "get": { "summary": "Get a form definition", "responses": { "200": { "description": "form" }, "404": { "description": "not found" } } }
    },
    "/api/forms/share/{link}": {
      "get": { "summary": "Get a form definition by share link", "responses": { "200": { "description": "form" }, "404": { "description": "not found" } } }
    },
    "/api/responses/form/{formId}/join": {
      "post": { "summary": "Join (or create) the shared response for a form", "responses": { "200": { "description": "response snapshot" }, "404": { "description": "form not found" } } }
    },
    "/api/responses/form/{formId}": {
      "get": { "summary": "List responses recorded for a form", "responses": { "200": { "description": "responses" } } }
    },
    "/api/responses/{id}": {
      "get": { "summary": "Get a response snapshot", "responses": { "200": { "description": "response" }, "403": { "description": "not a collaborator" }, "404": { "description": "not found" } } }
    },
    "/api/responses/{id}/fields/{fieldId}": {
      "patch": { "summary": "Update one field value (last write wins)", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"value":{}}}}}}, "responses": { "200": { "description": "updated field value" }, "400": { "description": "response completed" }, "403": { "description": "not an active collaborator" }, "404": { "description": "response or field not found" } } }
    },
    "/api/responses/{id}/complete": {
      "patch": { "summary": "Mark a response complete (idempotent)", "responses": { "200": { "description": "response snapshot" }, "403": { "description": "not an active collaborator" } } }
    },
    "/ws": { "get": { "summary": "Realtime channel (WebSocket upgrade)", "responses": { "101": { "description": "switching protocols" } } } },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
