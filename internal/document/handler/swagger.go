package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger serves a Swagger UI page and the OpenAPI document.
// - GET /swagger/index.html
// - GET /swagger/doc.json
func RegisterSwagger(r gin.IRouter) {
	r.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	r.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>docflow API</title>
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

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "docflow", "version": "v0.1.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer" } },
    "schemas": {
      "Error": { "type": "object", "properties": { "error": {"type":"string"}, "kind": {"type":"string","enum":["permission_denied","invalid_transition","document_locked","concurrent_modification","persistence_failure","not_found","validation","internal"]} } },
      "Document": { "type": "object", "properties": { "id": {"type":"string"}, "title": {"type":"string"}, "body": {"type":"string"}, "status": {"type":"string","enum":["draft","in_review","changes_requested","approved","published","archived"]}, "version": {"type":"integer"}, "isTemplate": {"type":"boolean"}, "authorId": {"type":"string"}, "projectId": {"type":"string"} } }
    }
  },
  "security": [ { "bearer": [] } ],
  "paths": {
    "/api/documents": {
      "post": { "summary": "Create a draft", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"projectId":{"type":"string"},"title":{"type":"string"},"body":{"type":"string"}}}}}}, "responses": { "201": { "description": "created" }, "400": { "description": "invalid request" } } }
    },
    "/api/templates": {
      "post": { "summary": "Create a template", "responses": { "201": { "description": "created" } } }
    },
    "/api/templates/{id}/instantiate": {
      "post": { "summary": "Start a draft from a template", "responses": { "201": { "description": "created" }, "404": { "description": "not found" } } }
    },
    "/api/documents/{id}": {
      "get": { "summary": "Get a document", "responses": { "200": { "description": "document" }, "404": { "description": "not found" } } },
      "patch": { "summary": "Update title or body", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"title":{"type":"string"},"body":{"type":"string"},"resubmitForReview":{"type":"boolean"},"expectedVersion":{"type":"integer"},"changeSummary":{"type":"string"}}}}}}, "responses": { "200": { "description": "updated document" }, "403": { "description": "not the author" }, "409": { "description": "version conflict" }, "423": { "description": "archived" } } },
      "delete": { "summary": "Delete a document and its history", "responses": { "204": { "description": "deleted" } } }
    },
    "/api/documents/{id}/request-review": { "post": { "summary": "Assign a reviewer", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"reviewerId":{"type":"string"},"message":{"type":"string"},"dueAt":{"type":"string","format":"date-time"}}}}}}, "responses": { "200": { "description": "document and review request" } } } },
    "/api/documents/{id}/open-review": { "post": { "summary": "Reviewer opens the review", "responses": { "200": { "description": "document and review request" } } } },
    "/api/documents/{id}/approve": { "post": { "summary": "Approve", "responses": { "200": { "description": "document and review request" } } } },
    "/api/documents/{id}/request-changes": { "post": { "summary": "Request changes", "responses": { "200": { "description": "document and review request" } } } },
    "/api/documents/{id}/revoke": { "post": { "summary": "Revoke an approval", "responses": { "200": { "description": "document and review request" } } } },
    "/api/documents/{id}/decline": { "post": { "summary": "Decline the review", "responses": { "200": { "description": "document and review request" } } } },
    "/api/documents/{id}/resubmit": { "post": { "summary": "Send changes back to review", "responses": { "200": { "description": "document and review request" } } } },
    "/api/documents/{id}/archive": { "post": { "summary": "Archive", "responses": { "200": { "description": "document" } } } },
    "/api/documents/{id}/restore": { "post": { "summary": "Restore an archived document", "responses": { "200": { "description": "document" } } } },
    "/api/documents/{id}/publish": { "post": { "summary": "Publish an approved document", "responses": { "200": { "description": "document" } } } },
    "/api/documents/{id}/active-review": { "get": { "summary": "Active review request", "responses": { "200": { "description": "request and reviewer" } } } },
    "/api/documents/{id}/revisions": { "get": { "summary": "Revision history, newest first", "responses": { "200": { "description": "revisions" } } } },
    "/api/documents/{id}/comments": {
      "get": { "summary": "Comment threads", "responses": { "200": { "description": "threads" } } },
      "post": { "summary": "Add a comment or reply", "responses": { "201": { "description": "comment" } } }
    },
    "/api/comments/{id}": { "patch": { "summary": "Resolve or reopen a thread", "responses": { "200": { "description": "comment" } } } },
    "/api/documents/{id}/events": { "get": { "summary": "Server-sent domain events of a document", "responses": { "200": { "description": "text/event-stream" } } } },
    "/api/me/documents": { "get": { "summary": "My documents", "responses": { "200": { "description": "documents" } } } },
    "/api/me/reviews": { "get": { "summary": "Reviews waiting for me", "responses": { "200": { "description": "review items" } } } },
    "/api/me/assigned": { "get": { "summary": "Documents of other authors", "responses": { "200": { "description": "documents" } } } },
    "/api/archived": { "get": { "summary": "Archived documents", "responses": { "200": { "description": "documents" } } } },
    "/api/projects/{id}/templates": { "get": { "summary": "Templates of a project", "responses": { "200": { "description": "documents" } } } },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`
