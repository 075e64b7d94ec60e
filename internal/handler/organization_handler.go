package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"orgadmin/internal/service"
	"orgadmin/pkg/apperror"
	"orgadmin/pkg/pagination"
)

type OrganizationHandler struct {
	orgService service.OrganizationService
	authz      service.Authorizer
}

func NewOrganizationHandler(orgService service.OrganizationService, authz service.Authorizer) *OrganizationHandler {
	return &OrganizationHandler{orgService: orgService, authz: authz}
}

func (h *OrganizationHandler) RegisterRoutes(router *gin.RouterGroup, g *Guard) {
	orgs := router.Group("/organizations", g.Authenticated())
	{
		orgs.GET("", g.Require(PermOrganizationsRead), h.ListOrganizations)
		orgs.GET("/:id", g.Require(PermOrganizationsRead), h.GetOrganization)
		orgs.GET("/:id/ancestors", g.Require(PermOrganizationsRead), h.GetAncestors)
		orgs.GET("/:id/children", g.Require(PermOrganizationsRead), h.GetChildren)
		orgs.GET("/:id/descendants", g.Require(PermOrganizationsRead), h.GetDescendants)
		orgs.POST("", g.Require(PermOrganizationsWrite), h.CreateOrganization)
		orgs.PUT("/:id", g.Require(PermOrganizationsWrite), h.UpdateOrganization)
		orgs.PUT("/:id/parent", g.Require(PermOrganizationsWrite), h.SetParent)
		orgs.DELETE("/:id", g.Require(PermOrganizationsWrite), h.DeleteOrganization)
	}
}

// scopedID parses :id and checks it lies within the caller's subtree.
func (h *OrganizationHandler) scopedID(c *gin.Context) (uuid.UUID, bool) {
	id, valid := pathID(c)
	if !valid {
		return uuid.Nil, false
	}
	if err := h.authz.CheckScope(c.Request.Context(), principal(c), id); err != nil {
		fail(c, err)
		return uuid.Nil, false
	}
	return id, true
}

// checkParent allows a nil parent only to callers sitting at a root.
func (h *OrganizationHandler) checkParent(ctx context.Context, p service.Principal, parentID *uuid.UUID) error {
	if parentID != nil {
		return h.authz.CheckScope(ctx, p, *parentID)
	}
	root, err := h.orgService.IsRoot(ctx, p.OrganizationID)
	if err != nil {
		return err
	}
	if !root {
		return apperror.Forbidden("only members of a root organization may create or move root organizations")
	}
	return nil
}

// ListOrganizations lists the caller's organization and its descendants
// @Summary      List organizations
// @Tags         organizations
// @Security     BearerAuth
// @Produce      json
// @Param        page             query     int   false  "Page number"
// @Param        limit            query     int   false  "Items per page"
// @Param        include_deleted  query     bool  false  "Include soft-deleted rows"
// @Success      200  {object}  response.Response{data=response.Page{items=[]service.OrganizationResponse}}
// @Router       /api/organizations [get]
func (h *OrganizationHandler) ListOrganizations(c *gin.Context) {
	p := pagination.Parse(c)
	scope, err := h.orgService.VisibleIDs(c.Request.Context(), principal(c).OrganizationID, p.IncludeDeleted)
	if err != nil {
		fail(c, err)
		return
	}
	orgs, total, err := h.orgService.ListOrganizations(c.Request.Context(), listQuery(p), scope)
	if err != nil {
		fail(c, err)
		return
	}
	page(c, orgs, total, p)
}

// GetOrganization
// @Summary      Get an organization
// @Tags         organizations
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Organization ID"
// @Success      200  {object}  response.Response{data=service.OrganizationResponse}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/organizations/{id} [get]
func (h *OrganizationHandler) GetOrganization(c *gin.Context) {
	id, valid := h.scopedID(c)
	if !valid {
		return
	}
	org, err := h.orgService.GetOrganization(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, org)
}

// GetAncestors returns the parent chain, nearest first. The chain stops at the
// caller's own organization.
// @Summary      List an organization's ancestors
// @Tags         organizations
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Organization ID"
// @Success      200  {object}  response.Response{data=[]service.OrganizationResponse}
// @Router       /api/organizations/{id}/ancestors [get]
func (h *OrganizationHandler) GetAncestors(c *gin.Context) {
	id, valid := h.scopedID(c)
	if !valid {
		return
	}
	orgs, err := h.orgService.AncestorsWithin(c.Request.Context(), id, principal(c).OrganizationID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, orgs)
}

// GetChildren
// @Summary      List an organization's direct children
// @Tags         organizations
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Organization ID"
// @Success      200  {object}  response.Response{data=[]service.OrganizationResponse}
// @Router       /api/organizations/{id}/children [get]
func (h *OrganizationHandler) GetChildren(c *gin.Context) {
	id, valid := h.scopedID(c)
	if !valid {
		return
	}
	orgs, err := h.orgService.Children(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, orgs)
}

// GetDescendants
// @Summary      List an organization's whole subtree
// @Tags         organizations
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Organization ID"
// @Success      200  {object}  response.Response{data=[]service.OrganizationResponse}
// @Router       /api/organizations/{id}/descendants [get]
func (h *OrganizationHandler) GetDescendants(c *gin.Context) {
	id, valid := h.scopedID(c)
	if !valid {
		return
	}
	orgs, err := h.orgService.Descendants(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, orgs)
}

// CreateOrganization
// @Summary      Create an organization
// @Tags         organizations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateOrganizationRequest  true  "Organization"
// @Success      201      {object}  response.Response{data=service.OrganizationResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /api/organizations [post]
func (h *OrganizationHandler) CreateOrganization(c *gin.Context) {
	var req service.CreateOrganizationRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.checkParent(c.Request.Context(), principal(c), req.ParentID); err != nil {
		fail(c, err)
		return
	}
	org, err := h.orgService.CreateOrganization(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, org)
}

// UpdateOrganization
// @Summary      Update an organization
// @Tags         organizations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                             true  "Organization ID"
// @Param        payload  body      service.UpdateOrganizationRequest  true  "Organization"
// @Success      200      {object}  response.Response{data=service.OrganizationResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/organizations/{id} [put]
func (h *OrganizationHandler) UpdateOrganization(c *gin.Context) {
	id, valid := h.scopedID(c)
	if !valid {
		return
	}
	var req service.UpdateOrganizationRequest
	if !bindJSON(c, &req) {
		return
	}
	org, err := h.orgService.UpdateOrganization(c.Request.Context(), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, org)
}

// SetParent moves an organization under a new parent, or to the top level
// @Summary      Re-parent an organization
// @Tags         organizations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                    true  "Organization ID"
// @Param        payload  body      service.SetParentRequest  true  "New parent (null for none)"
// @Success      200      {object}  response.Response{data=service.OrganizationResponse}
// @Failure      409      {object}  response.Response  "would create a cycle"
// @Router       /api/organizations/{id}/parent [put]
func (h *OrganizationHandler) SetParent(c *gin.Context) {
	id, valid := h.scopedID(c)
	if !valid {
		return
	}
	var req service.SetParentRequest
	if !bindJSON(c, &req) {
		return
	}
	p := principal(c)
	if id == p.OrganizationID {
		fail(c, apperror.Forbidden("cannot move your own organization"))
		return
	}
	if err := h.checkParent(c.Request.Context(), p, req.ParentID); err != nil {
		fail(c, err)
		return
	}
	org, err := h.orgService.SetParent(c.Request.Context(), id, req.ParentID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, org)
}

// DeleteOrganization soft-deletes an organization without live dependents
// @Summary      Delete an organization
// @Tags         organizations
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Organization ID"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response  "has live children or users"
// @Router       /api/organizations/{id} [delete]
func (h *OrganizationHandler) DeleteOrganization(c *gin.Context) {
	id, valid := h.scopedID(c)
	if !valid {
		return
	}
	if err := h.orgService.DeleteOrganization(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"message": "Organization deleted successfully"})
}
