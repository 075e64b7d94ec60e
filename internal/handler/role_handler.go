package handler

import (
	"github.com/gin-gonic/gin"

	"orgadmin/internal/service"
	"orgadmin/pkg/pagination"
)

type RoleHandler struct {
	roleService service.RoleService
}

func NewRoleHandler(roleService service.RoleService) *RoleHandler {
	return &RoleHandler{roleService: roleService}
}

func (h *RoleHandler) RegisterRoutes(router *gin.RouterGroup, g *Guard) {
	roles := router.Group("/roles", g.Authenticated())
	{
		roles.GET("", g.Require(PermRolesRead), h.ListRoles)
		roles.GET("/:id", g.Require(PermRolesRead), h.GetRole)
		roles.GET("/:id/permissions", g.Require(PermRolesRead), h.GetRolePermissions)
		roles.POST("", g.Require(PermRolesWrite), h.CreateRole)
		roles.PUT("/:id", g.Require(PermRolesWrite), h.UpdateRole)
		roles.DELETE("/:id", g.Require(PermRolesWrite), h.DeleteRole)
		roles.POST("/:id/restore", g.Require(PermRolesWrite), h.RestoreRole)
	}
}

// ListRoles returns roles in creation order
// @Summary      List roles
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Param        page             query     int   false  "Page number"
// @Param        limit            query     int   false  "Items per page"
// @Param        include_deleted  query     bool  false  "Include soft-deleted rows"
// @Success      200  {object}  response.Response{data=response.Page{items=[]service.RoleResponse}}
// @Router       /api/roles [get]
func (h *RoleHandler) ListRoles(c *gin.Context) {
	p := pagination.Parse(c)
	roles, total, err := h.roleService.ListRoles(c.Request.Context(), listQuery(p))
	if err != nil {
		fail(c, err)
		return
	}
	page(c, roles, total, p)
}

// GetRole returns a single role with its live permissions
// @Summary      Get a role
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Role ID"
// @Success      200  {object}  response.Response{data=service.RoleResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/roles/{id} [get]
func (h *RoleHandler) GetRole(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	role, err := h.roleService.GetRole(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, role)
}

// GetRolePermissions
// @Summary      List a role's permissions
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Role ID"
// @Success      200  {object}  response.Response{data=[]service.PermissionResponse}
// @Router       /api/roles/{id}/permissions [get]
func (h *RoleHandler) GetRolePermissions(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	perms, err := h.roleService.GetRolePermissions(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, perms)
}

// CreateRole creates a new custom role
// @Summary      Create a role
// @Tags         roles
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateRoleRequest  true  "Role"
// @Success      201      {object}  response.Response{data=service.RoleResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/roles [post]
func (h *RoleHandler) CreateRole(c *gin.Context) {
	var req service.CreateRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	role, err := h.roleService.CreateRole(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, role)
}

// UpdateRole replaces a role's fields and permission set atomically
// @Summary      Update a role
// @Tags         roles
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true  "Role ID"
// @Param        payload  body      service.UpdateRoleRequest  true  "Role"
// @Success      200      {object}  response.Response{data=service.RoleResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/roles/{id} [put]
func (h *RoleHandler) UpdateRole(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req service.UpdateRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	role, err := h.roleService.UpdateRole(c.Request.Context(), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, role)
}

// DeleteRole soft-deletes a non-system role
// @Summary      Delete a role
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Role ID"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/roles/{id} [delete]
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.roleService.DeleteRole(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"message": "Role deleted successfully"})
}

// RestoreRole
// @Summary      Restore a soft-deleted role
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Role ID"
// @Success      200  {object}  response.Response{data=service.RoleResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/roles/{id}/restore [post]
func (h *RoleHandler) RestoreRole(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	role, err := h.roleService.RestoreRole(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, role)
}
