// Package httpapi exposes the document engine as a JSON API over gin.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"officeflow/internal/core"
)

// Handler serves the API for one engine.
type Handler struct {
	svc *core.Service
	log *zap.Logger
}

// NewRouter wires every route. A nil gatherer leaves /metrics unregistered.
func NewRouter(svc *core.Service, log *zap.Logger, gatherer prometheus.Gatherer) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "http"))
	h := &Handler{svc: svc, log: log}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log), errorHandler(log))

	r.GET("/healthz", h.health)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api", requireUser())
	api.GET("/departments", h.listDepartments)
	api.POST("/departments", h.createDepartment)

	dept := api.Group("/departments/:dept")
	dept.GET("/documents", h.listDocuments)
	dept.POST("/documents", h.createDocument)
	dept.GET("/documents/:id", h.getDocument)
	dept.PUT("/documents/:id", h.editDocument)
	dept.POST("/documents/:id/move", h.moveDocument)
	dept.POST("/documents/:id/pull", h.pullDocument)
	dept.POST("/documents/:id/attachments", h.attachFile)
	dept.GET("/documents/:id/attachments", h.downloadAttachment)
	dept.DELETE("/documents/:id/attachments", h.detachFile)

	dept.GET("/inbox", h.inbox)
	dept.GET("/outbox", h.outbox)
	dept.GET("/register", h.register)
	dept.GET("/register.csv", h.registerCSV)
	dept.GET("/log", h.masterLog)

	dept.GET("/dak", h.listDak)
	dept.POST("/dak", h.registerDak)
	dept.POST("/dak/convert", h.convertDak)

	dept.GET("/contractors", h.listContractors)
	dept.POST("/contractors", h.createContractor)
	dept.PUT("/contractors/:cid", h.updateContractor)
	dept.DELETE("/contractors/:cid", h.deleteContractor)
	return r
}

func (h *Handler) health(c *gin.Context) {
	st := h.svc.CheckStorage(c.Request.Context())
	status := http.StatusOK
	if !st.Ready() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"ready": st.Ready(), "storage": st})
}
