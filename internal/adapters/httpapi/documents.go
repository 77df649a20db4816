package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"officeflow/internal/core"
	"officeflow/pkg/domain"
)

type createDocumentRequest struct {
	Title   string         `json:"title" binding:"required"`
	Content string         `json:"content"`
	DueDate string         `json:"due_date"`
	Extra   map[string]any `json:"extra"`
}

type moveDocumentRequest struct {
	Target  string                `json:"target" binding:"required"`
	Status  domain.DocumentStatus `json:"status"`
	DueDate string                `json:"due_date"`
}

type editDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (h *Handler) createDocument(c *gin.Context) {
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(badRequest(err))
		return
	}
	doc, err := h.svc.CreateDocument(c.Request.Context(), core.CreateDocumentInput{
		Department: c.Param("dept"),
		Title:      req.Title,
		Content:    req.Content,
		Creator:    currentUser(c),
		DueDate:    req.DueDate,
		Extra:      req.Extra,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) getDocument(c *gin.Context) {
	doc, err := h.svc.GetDocument(c.Request.Context(), c.Param("dept"), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// listDocuments searches with ?q=; without a term it lists what the caller
// may see: everything for administrators, otherwise the documents they are
// involved with.
func (h *Handler) listDocuments(c *gin.Context) {
	ctx := c.Request.Context()
	dept, user := c.Param("dept"), currentUser(c)
	if q := c.Query("q"); q != "" {
		docs, err := h.svc.Search(ctx, dept, user, q)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, docs)
		return
	}
	docs, err := h.svc.ListDocuments(ctx, dept)
	if err != nil {
		_ = c.Error(err)
		return
	}
	admin, err := h.svc.Permissions().IsAdmin(ctx, dept, user)
	if err != nil {
		_ = c.Error(err)
		return
	}
	visible := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		if admin || d.InvolvedWith(user) {
			visible = append(visible, d)
		}
	}
	c.JSON(http.StatusOK, visible)
}

func (h *Handler) moveDocument(c *gin.Context) {
	var req moveDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(badRequest(err))
		return
	}
	ctx := c.Request.Context()
	current, err := h.svc.GetDocument(ctx, c.Param("dept"), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	ok, err := core.IsOwnerOrAdmin(ctx, h.svc.Permissions(), c.Param("dept"), current, currentUser(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !ok {
		_ = c.Error(domain.Forbidden(domain.EntityDocument, current.ID, "only the current owner or an administrator can move the document"))
		return
	}
	doc, err := h.svc.MoveDocument(ctx, core.MoveDocumentInput{
		Department: c.Param("dept"),
		DocumentID: c.Param("id"),
		Target:     req.Target,
		Actor:      currentUser(c),
		Status:     req.Status,
		DueDate:    req.DueDate,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) editDocument(c *gin.Context) {
	var req editDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(badRequest(err))
		return
	}
	doc, err := h.svc.EditDocument(c.Request.Context(), core.EditDocumentInput{
		Department: c.Param("dept"),
		DocumentID: c.Param("id"),
		Actor:      currentUser(c),
		Title:      req.Title,
		Content:    req.Content,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) pullDocument(c *gin.Context) {
	doc, err := h.svc.PullDocument(c.Request.Context(), c.Param("dept"), c.Param("id"), currentUser(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) attachFile(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		_ = c.Error(badRequest(err))
		return
	}
	f, err := fh.Open()
	if err != nil {
		_ = c.Error(badRequest(err))
		return
	}
	defer f.Close()
	att, err := h.svc.AttachFile(c.Request.Context(), core.AttachFileInput{
		Department:  c.Param("dept"),
		DocumentID:  c.Param("id"),
		Actor:       currentUser(c),
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Body:        f,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, att)
}

func (h *Handler) detachFile(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		_ = c.Error(badRequest(errors.New("path query parameter required")))
		return
	}
	if err := h.svc.DetachFile(c.Request.Context(), c.Param("dept"), c.Param("id"), currentUser(c), path); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) downloadAttachment(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		_ = c.Error(badRequest(errors.New("path query parameter required")))
		return
	}
	info, rc, err := h.svc.OpenAttachment(c.Request.Context(), c.Param("dept"), c.Param("id"), path)
	if err != nil {
		_ = c.Error(err)
		return
	}
	defer rc.Close()
	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	name := path[strings.LastIndex(path, "/")+1:]
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, rc)
}
