package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"officeflow/internal/core"
	"officeflow/pkg/domain"
)

type registerDakRequest struct {
	Direction    domain.DakDirection `json:"direction"`
	Sender       string              `json:"sender"`
	Subject      string              `json:"subject"`
	ReceivedDate string              `json:"received_date"`
	PhysicalMode string              `json:"physical_mode"`
	AssignedTo   string              `json:"assigned_to"`
}

type convertDakRequest struct {
	Reference string `json:"reference" binding:"required"`
}

type createDepartmentRequest struct {
	ID        string `json:"id" binding:"required"`
	Name      string `json:"name" binding:"required"`
	AdminUser string `json:"admin_user"`
	AdminName string `json:"admin_name"`
}

func (h *Handler) inbox(c *gin.Context) {
	items, err := h.svc.Inbox(c.Request.Context(), c.Param("dept"), currentUser(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) outbox(c *gin.Context) {
	items, err := h.svc.Outbox(c.Request.Context(), c.Param("dept"), currentUser(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) register(c *gin.Context) {
	rows, err := h.svc.MasterRegister(c.Request.Context(), c.Param("dept"), currentUser(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handler) registerCSV(c *gin.Context) {
	ctx := c.Request.Context()
	dept, user := c.Param("dept"), currentUser(c)
	// rows are checked first so a refusal still renders as JSON
	if _, err := h.svc.MasterRegister(ctx, dept, user); err != nil {
		_ = c.Error(err)
		return
	}
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="master_register_`+dept+`.csv"`)
	c.Status(http.StatusOK)
	if err := h.svc.ExportRegisterCSV(ctx, dept, user, c.Writer); err != nil {
		h.log.Warn("register export interrupted", zap.String("department", dept), zap.Error(err))
	}
}

func (h *Handler) masterLog(c *gin.Context) {
	ctx := c.Request.Context()
	dept := c.Param("dept")
	ok, err := h.svc.Permissions().IsAdmin(ctx, dept, currentUser(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !ok {
		_ = c.Error(domain.Forbidden(domain.EntityDepartment, dept, "administrator rights required"))
		return
	}
	lines, err := h.svc.MasterLog(ctx, dept)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, lines)
}

func (h *Handler) listDak(c *gin.Context) {
	entries, err := h.svc.ListDak(c.Request.Context(), c.Param("dept"), domain.DakDirection(c.Query("direction")))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) registerDak(c *gin.Context) {
	var req registerDakRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(badRequest(err))
		return
	}
	entry, err := h.svc.RegisterDak(c.Request.Context(), core.RegisterDakInput{
		Department:   c.Param("dept"),
		Actor:        currentUser(c),
		Direction:    req.Direction,
		Sender:       req.Sender,
		Subject:      req.Subject,
		ReceivedDate: req.ReceivedDate,
		PhysicalMode: req.PhysicalMode,
		AssignedTo:   req.AssignedTo,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) convertDak(c *gin.Context) {
	var req convertDakRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(badRequest(err))
		return
	}
	doc, err := h.svc.ConvertDakToDocument(c.Request.Context(), c.Param("dept"), req.Reference, currentUser(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) listContractors(c *gin.Context) {
	list, err := h.svc.ListContractors(c.Request.Context(), c.Param("dept"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) createContractor(c *gin.Context) {
	var req domain.Contractor
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(badRequest(err))
		return
	}
	created, err := h.svc.CreateContractor(c.Request.Context(), c.Param("dept"), currentUser(c), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) updateContractor(c *gin.Context) {
	var req domain.Contractor
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(badRequest(err))
		return
	}
	updated, err := h.svc.UpdateContractor(c.Request.Context(), c.Param("dept"), currentUser(c), c.Param("cid"), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) deleteContractor(c *gin.Context) {
	if err := h.svc.DeleteContractor(c.Request.Context(), c.Param("dept"), currentUser(c), c.Param("cid")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listDepartments(c *gin.Context) {
	depts, err := h.svc.ListDepartments(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, depts)
}

func (h *Handler) createDepartment(c *gin.Context) {
	var req createDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(badRequest(err))
		return
	}
	dept, err := h.svc.CreateDepartment(c.Request.Context(), core.CreateDepartmentInput{
		ID:        req.ID,
		Name:      req.Name,
		AdminUser: req.AdminUser,
		AdminName: req.AdminName,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, dept)
}
