package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"orgadmin/internal/service"
	"orgadmin/pkg/pagination"
)

type AuditHandler struct {
	auditService service.AuditService
	orgService   service.OrganizationService
}

func NewAuditHandler(auditService service.AuditService, orgService service.OrganizationService) *AuditHandler {
	return &AuditHandler{auditService: auditService, orgService: orgService}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup, g *Guard) {
	group := router.Group("/audit-logs", g.Authenticated(), g.Require(PermAuditRead))
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs returns the stamped-write trail of the caller's organization
// subtree, newest first. Catalog changes are visible from a root organization.
// @Summary      Get audit logs
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        entity     query     string  false  "Entity type, e.g. Role"
// @Param        entity_id  query     string  false  "Entity ID"
// @Param        actor_id   query     string  false  "Actor ID"
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Number of items per page (default 20)"
// @Success      200        {object}  response.Response{data=response.Page{items=[]service.AuditLogResponse}}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)
	if p.Limit == 0 {
		p.Page, p.Limit = pagination.DefaultPage, pagination.DefaultLimit
	}
	q := service.AuditQuery{Entity: c.Query("entity"), Page: p.Page, Limit: p.Limit}
	var valid bool
	if q.EntityID, valid = optionalID(c, "entity_id"); !valid {
		return
	}
	if q.ActorID, valid = optionalID(c, "actor_id"); !valid {
		return
	}

	ctx, own := c.Request.Context(), principal(c).OrganizationID
	// deleted tenants keep their history
	scope, err := h.orgService.VisibleIDs(ctx, own, true)
	if err != nil {
		fail(c, err)
		return
	}
	root, err := h.orgService.IsRoot(ctx, own)
	if err != nil {
		fail(c, err)
		return
	}
	q.Organizations, q.Unowned = scope, root

	logs, total, err := h.auditService.GetAuditLogs(ctx, q)
	if err != nil {
		fail(c, err)
		return
	}
	page(c, logs, total, p)
}

func optionalID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		badRequest(c, "Invalid "+name+": "+raw)
		return nil, false
	}
	return &id, true
}
