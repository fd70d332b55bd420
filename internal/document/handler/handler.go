// Package handler exposes the document workflow over HTTP.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/docflow/internal/document"
	"github.com/gogotex/docflow/internal/document/service"
	"github.com/gogotex/docflow/internal/document/workflow"
	"github.com/gogotex/docflow/internal/events"
	"github.com/gogotex/docflow/internal/identity"
	"github.com/gogotex/docflow/pkg/metrics"
)

// Handler serves the document API. Writes go to the engine, reads to the
// cached query service.
type Handler struct {
	engine    *workflow.Engine
	queries   *service.Service
	bus       *events.Bus
	heartbeat time.Duration
}

func New(engine *workflow.Engine, queries *service.Service, bus *events.Bus) *Handler {
	return &Handler{engine: engine, queries: queries, bus: bus, heartbeat: 25 * time.Second}
}

// Register mounts the API routes on r. Identity must already be on the
// request context (see middleware.AuthMiddleware).
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api")

	api.POST("/documents", h.createDocument)
	api.POST("/templates", h.createTemplate)
	api.POST("/templates/:id/instantiate", h.instantiate)
	api.GET("/documents/:id", h.getDocument)
	api.PATCH("/documents/:id", h.updateContent)
	api.DELETE("/documents/:id", h.deleteDocument)

	// workflow actions
	api.POST("/documents/:id/request-review", h.requestReview)
	api.POST("/documents/:id/open-review", h.openReview)
	api.POST("/documents/:id/approve", h.decision(h.engine.Approve))
	api.POST("/documents/:id/request-changes", h.decision(h.engine.RequestChanges))
	api.POST("/documents/:id/revoke", h.decision(h.engine.Revoke))
	api.POST("/documents/:id/decline", h.decision(h.engine.Decline))
	api.POST("/documents/:id/resubmit", h.resubmit)
	api.POST("/documents/:id/archive", h.lifecycle(h.engine.Archive))
	api.POST("/documents/:id/restore", h.lifecycle(h.engine.Restore))
	api.POST("/documents/:id/publish", h.lifecycle(h.engine.Publish))

	api.GET("/documents/:id/active-review", h.activeReview)
	api.GET("/documents/:id/revisions", h.revisions)
	api.GET("/documents/:id/comments", h.comments)
	api.POST("/documents/:id/comments", h.addComment)
	api.PATCH("/comments/:id", h.resolveComment)
	api.GET("/documents/:id/events", h.streamEvents)

	api.GET("/me/documents", h.myDocuments)
	api.GET("/me/reviews", h.myReviews)
	api.GET("/me/assigned", h.assignedToMe)
	api.GET("/archived", h.archived)
	api.GET("/projects/:id/templates", h.templates)
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(kind string) int {
	switch kind {
	case document.KindPermissionDenied:
		return http.StatusForbidden
	case document.KindInvalidTransition, document.KindConcurrentModification:
		return http.StatusConflict
	case document.KindDocumentLocked:
		return http.StatusLocked
	case document.KindPersistence:
		return http.StatusServiceUnavailable
	case document.KindNotFound:
		return http.StatusNotFound
	case document.KindValidation:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// fail renders every failure the same way: one message and its kind.
func fail(c *gin.Context, err error) {
	kind := document.KindOf(err)
	c.AbortWithStatusJSON(StatusOf(kind), gin.H{"error": document.Message(err), "kind": kind})
}

func bind(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		fail(c, fmt.Errorf("%w: %v", document.ErrValidation, err))
		return false
	}
	return true
}

// bindOptional accepts an empty body.
func bindOptional(c *gin.Context, v interface{}) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		fail(c, fmt.Errorf("%w: %v", document.ErrValidation, err))
		return false
	}
	return true
}

type createRequest struct {
	ProjectID string `json:"projectId"`
	Title     string `json:"title"`
	Body      string `json:"body"`
}

func (h *Handler) createDocument(c *gin.Context) {
	var req createRequest
	if !bind(c, &req) {
		return
	}
	d, err := h.engine.CreateDocument(c.Request.Context(), workflow.NewDocument(req))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *Handler) createTemplate(c *gin.Context) {
	var req createRequest
	if !bind(c, &req) {
		return
	}
	d, err := h.engine.CreateTemplate(c.Request.Context(), workflow.NewDocument(req))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *Handler) instantiate(c *gin.Context) {
	var req struct {
		ProjectID string `json:"projectId"`
		Title     string `json:"title"`
	}
	if !bindOptional(c, &req) {
		return
	}
	d, err := h.engine.CreateFromTemplate(c.Request.Context(), c.Param("id"), workflow.NewDocument{ProjectID: req.ProjectID, Title: req.Title})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *Handler) getDocument(c *gin.Context) {
	d, err := h.queries.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// UpdateRequest is the body of PATCH /api/documents/:id.
type UpdateRequest struct {
	Title             *string `json:"title,omitempty"`
	Body              *string `json:"body,omitempty"`
	ResubmitForReview bool    `json:"resubmitForReview,omitempty"`
	ExpectedVersion   int     `json:"expectedVersion,omitempty"`
	Summary           string  `json:"changeSummary,omitempty"`
}

func (h *Handler) updateContent(c *gin.Context) {
	var req UpdateRequest
	if !bind(c, &req) {
		return
	}
	d, err := h.engine.UpdateContent(c.Request.Context(), c.Param("id"), workflow.ContentPatch(req))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) deleteDocument(c *gin.Context) {
	if err := h.engine.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func result(c *gin.Context, r workflow.Result) {
	c.JSON(http.StatusOK, gin.H{"document": r.Document, "review": r.Review})
}

func (h *Handler) requestReview(c *gin.Context) {
	var req struct {
		ReviewerID string     `json:"reviewerId"`
		Message    string     `json:"message"`
		DueAt      *time.Time `json:"dueAt"`
	}
	if !bind(c, &req) {
		return
	}
	r, err := h.engine.RequestReview(c.Request.Context(), c.Param("id"), workflow.ReviewInput{
		ReviewerID: req.ReviewerID,
		Message:    req.Message,
		DueAt:      req.DueAt,
	})
	if err != nil {
		fail(c, err)
		return
	}
	result(c, r)
}

func (h *Handler) openReview(c *gin.Context) {
	r, err := h.engine.OpenReview(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	result(c, r)
}

func (h *Handler) resubmit(c *gin.Context) {
	r, err := h.engine.Resubmit(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	result(c, r)
}

type decideFunc func(ctx context.Context, documentID string, in workflow.Decision) (workflow.Result, error)

func (h *Handler) decision(fn decideFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Message         string `json:"message"`
			ExpectedVersion int    `json:"expectedVersion"`
		}
		if !bindOptional(c, &req) {
			return
		}
		r, err := fn(c.Request.Context(), c.Param("id"), workflow.Decision{Message: req.Message, ExpectedVersion: req.ExpectedVersion})
		if err != nil {
			fail(c, err)
			return
		}
		result(c, r)
	}
}

func (h *Handler) lifecycle(fn func(ctx context.Context, documentID string) (*document.Document, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := fn(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	}
}

func (h *Handler) activeReview(c *gin.Context) {
	ar, err := h.queries.GetActiveReview(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if ar == nil {
		c.JSON(http.StatusOK, gin.H{"request": nil})
		return
	}
	c.JSON(http.StatusOK, ar)
}

func (h *Handler) revisions(c *gin.Context) {
	revs, err := h.queries.ListRevisions(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, revs)
}

func (h *Handler) comments(c *gin.Context) {
	threads, err := h.queries.ListComments(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, threads)
}

func (h *Handler) addComment(c *gin.Context) {
	var req struct {
		Body     string `json:"body"`
		ParentID string `json:"parentId"`
	}
	if !bind(c, &req) {
		return
	}
	cm, err := h.engine.AddComment(c.Request.Context(), c.Param("id"), req.Body, req.ParentID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cm)
}

func (h *Handler) resolveComment(c *gin.Context) {
	var req struct {
		Resolved *bool `json:"resolved"`
	}
	if !bind(c, &req) {
		return
	}
	if req.Resolved == nil {
		fail(c, fmt.Errorf("%w: resolved is required", document.ErrValidation))
		return
	}
	cm, err := h.engine.SetResolved(c.Request.Context(), c.Param("id"), *req.Resolved)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cm)
}

// streamEvents sends the domain events of one document as server-sent
// events until the client goes away.
func (h *Handler) streamEvents(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := h.queries.GetDocument(ctx, id); err != nil {
		fail(c, err)
		return
	}
	ch, stop := h.bus.Stream(id, 32)
	defer stop()
	metrics.StreamSubscribers.Inc()
	defer metrics.StreamSubscribers.Dec()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"documentId": id})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return ev.Type != events.DocumentDeleted
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}

func (h *Handler) myDocuments(c *gin.Context) {
	ctx := c.Request.Context()
	actor, err := identity.ActorID(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	docs, err := h.queries.ListMyDocuments(ctx, actor)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (h *Handler) myReviews(c *gin.Context) {
	ctx := c.Request.Context()
	actor, err := identity.ActorID(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	items, err := h.queries.ListMyReviews(ctx, actor)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) assignedToMe(c *gin.Context) {
	ctx := c.Request.Context()
	actor, err := identity.ActorID(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	docs, err := h.queries.ListAssignedToMe(ctx, actor)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (h *Handler) archived(c *gin.Context) {
	docs, err := h.queries.ListArchived(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (h *Handler) templates(c *gin.Context) {
	docs, err := h.queries.ListTemplates(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}
