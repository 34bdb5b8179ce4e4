package dispatch

import (
	"encoding/json"
	"io"
	"net/http"

	"contentplane/pkg/errutil"
	"contentplane/pkg/health"
	"contentplane/pkg/middleware"
	pkgworkflow "contentplane/pkg/workflow"
	"contentplane/services/payment"
	"contentplane/services/post"
	"contentplane/services/tenant"

	"github.com/gin-gonic/gin"
	"go.temporal.io/sdk/client"
	"go.uber.org/fx"
)

// Handler is the HTTP face of the platform: payment collection, the provider
// callback, post lifecycle, tenant administration, and workflow diagnostics.
type Handler struct {
	payments *payment.Service
	posts    *post.Service
	tenants  *tenant.Service
	tc       client.Client
	health   health.HealthService
}

type HandlerParams struct {
	fx.In
	Payments *payment.Service
	Posts    *post.Service
	Tenants  *tenant.Service
	Temporal client.Client `optional:"true"`
	Health   health.HealthService
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		payments: p.Payments,
		posts:    p.Posts,
		tenants:  p.Tenants,
		tc:       p.Temporal,
		health:   p.Health,
	}
}

func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Error())

	r.GET("/healthz", h.health.Liveness)
	r.GET("/readyz", h.health.Readiness)

	v1 := r.Group("/v1")
	{
		v1.POST("/tenants", h.createTenant)
		v1.GET("/tenants/:id", h.getTenant)
		v1.POST("/memberships/sync", h.syncMemberships)

		v1.POST("/payments", h.collectPayment)
		v1.GET("/payments/:id", h.getPayment)
		v1.POST("/callbacks/payments", h.paymentCallback)

		v1.POST("/posts", h.createPost)
		v1.GET("/posts/:id", h.getPost)
		v1.GET("/posts/:id/attempts", h.listAttempts)
		v1.POST("/posts/:id/approval", h.approvePost)

		v1.GET("/workflows/:id/status", h.workflowStatus)
	}

	return r
}

func (h *Handler) createTenant(c *gin.Context) {
	var req tenant.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	t, err := h.tenants.CreateTenant(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, t)
}

func (h *Handler) getTenant(c *gin.Context) {
	t, err := h.tenants.GetTenant(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, t)
}

func (h *Handler) syncMemberships(c *gin.Context) {
	var req tenant.MembershipChange
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	if err := h.tenants.SyncMemberships(c.Request.Context(), req); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "syncing"})
}

func (h *Handler) collectPayment(c *gin.Context) {
	var req payment.CollectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	attempt, err := h.payments.Collect(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusAccepted, attempt)
}

func (h *Handler) getPayment(c *gin.Context) {
	attempt, err := h.payments.GetAttempt(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// paymentCallback keeps the raw body alongside the parsed fields; the
// untouched payload is what lands in the attempt's audit column.
func (h *Handler) paymentCallback(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Error(errutil.BadRequest("failed to read callback body", err))
		return
	}

	var req payment.CallbackRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.CorrelationID == "" {
		c.Error(errutil.BadRequest("invalid callback body", err))
		return
	}

	if err := h.payments.DeliverCallback(c.Request.Context(), req, raw); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (h *Handler) createPost(c *gin.Context) {
	var req post.CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	p, err := h.posts.CreatePost(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, p)
}

func (h *Handler) getPost(c *gin.Context) {
	p, err := h.posts.GetPost(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, p)
}

func (h *Handler) listAttempts(c *gin.Context) {
	attempts, err := h.posts.Attempts(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}

func (h *Handler) approvePost(c *gin.Context) {
	var req post.ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	if err := h.posts.Approve(c.Request.Context(), c.Param("id"), req); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "delivered"})
}

// workflowStatus surfaces the live state of any orchestration instance by its
// workflow id, for operators chasing a stuck payment or post.
func (h *Handler) workflowStatus(c *gin.Context) {
	if h.tc == nil {
		c.Error(errutil.Internal("workflow client not configured", nil))
		return
	}

	resp, err := h.tc.QueryWorkflow(c.Request.Context(), c.Param("id"), "", pkgworkflow.QueryStatus)
	if err != nil {
		c.Error(errutil.NotFound("workflow instance not found", err))
		return
	}

	var state string
	if err := resp.Get(&state); err != nil {
		c.Error(errutil.Internal("failed to decode workflow state", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"workflow_id": c.Param("id"), "state": state})
}
