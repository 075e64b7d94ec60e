package handler

import (
	"github.com/gin-gonic/gin"

	"orgadmin/internal/service"
	"orgadmin/pkg/pagination"
)

type PermissionHandler struct {
	permissionService service.PermissionService
}

func NewPermissionHandler(permissionService service.PermissionService) *PermissionHandler {
	return &PermissionHandler{permissionService: permissionService}
}

func (h *PermissionHandler) RegisterRoutes(router *gin.RouterGroup, g *Guard) {
	perms := router.Group("/permissions", g.Authenticated())
	{
		perms.GET("", g.Require(PermPermissionsRead), h.ListPermissions)
		perms.GET("/:id", g.Require(PermPermissionsRead), h.GetPermission)
		perms.POST("", g.Require(PermPermissionsWrite), h.CreatePermission)
		perms.PUT("/:id", g.Require(PermPermissionsWrite), h.UpdatePermission)
		perms.DELETE("/:id", g.Require(PermPermissionsWrite), h.DeletePermission)
	}
}

// ListPermissions
// @Summary      List permissions
// @Tags         permissions
// @Security     BearerAuth
// @Produce      json
// @Param        page             query     int   false  "Page number"
// @Param        limit            query     int   false  "Items per page"
// @Param        include_deleted  query     bool  false  "Include soft-deleted rows"
// @Success      200  {object}  response.Response{data=response.Page{items=[]service.PermissionResponse}}
// @Router       /api/permissions [get]
func (h *PermissionHandler) ListPermissions(c *gin.Context) {
	p := pagination.Parse(c)
	perms, total, err := h.permissionService.ListPermissions(c.Request.Context(), listQuery(p))
	if err != nil {
		fail(c, err)
		return
	}
	page(c, perms, total, p)
}

// GetPermission
// @Summary      Get a permission
// @Tags         permissions
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Permission ID"
// @Success      200  {object}  response.Response{data=service.PermissionResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/permissions/{id} [get]
func (h *PermissionHandler) GetPermission(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	perm, err := h.permissionService.GetPermission(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, perm)
}

// CreatePermission
// @Summary      Create a permission
// @Tags         permissions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreatePermissionRequest  true  "Permission"
// @Success      201      {object}  response.Response{data=service.PermissionResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/permissions [post]
func (h *PermissionHandler) CreatePermission(c *gin.Context) {
	var req service.CreatePermissionRequest
	if !bindJSON(c, &req) {
		return
	}
	perm, err := h.permissionService.CreatePermission(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, perm)
}

// UpdatePermission
// @Summary      Update a permission
// @Tags         permissions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                           true  "Permission ID"
// @Param        payload  body      service.UpdatePermissionRequest  true  "Permission"
// @Success      200      {object}  response.Response{data=service.PermissionResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/permissions/{id} [put]
func (h *PermissionHandler) UpdatePermission(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req service.UpdatePermissionRequest
	if !bindJSON(c, &req) {
		return
	}
	perm, err := h.permissionService.UpdatePermission(c.Request.Context(), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, perm)
}

// DeletePermission soft-deletes a permission
// @Summary      Delete a permission
// @Tags         permissions
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Permission ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/permissions/{id} [delete]
func (h *PermissionHandler) DeletePermission(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.permissionService.DeletePermission(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"message": "Permission deleted successfully"})
}

