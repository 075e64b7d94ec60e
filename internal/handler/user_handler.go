package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"orgadmin/internal/service"
	"orgadmin/pkg/apperror"
	"orgadmin/pkg/pagination"
)

type UserHandler struct {
	userService service.UserService
	orgService  service.OrganizationService
	authz       service.Authorizer
}

// NewUserHandler sets up the routing dependencies for User endpoints
func NewUserHandler(userService service.UserService, orgService service.OrganizationService, authz service.Authorizer) *UserHandler {
	return &UserHandler{userService: userService, orgService: orgService, authz: authz}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup, g *Guard) {
	users := router.Group("/users", g.Authenticated())
	{
		users.GET("", g.Require(PermUsersRead), h.ListUsers)
		users.GET("/:id", g.Require(PermUsersRead), h.GetUserByID)
		users.GET("/:id/roles", g.Require(PermUsersRead), h.GetUserRoles)
		users.GET("/:id/permissions", g.Require(PermUsersRead), h.GetUserPermissions)
		users.POST("", g.Require(PermUsersWrite), h.CreateUser)
		users.PUT("/:id", g.Require(PermUsersWrite), h.UpdateUser)
		users.PUT("/:id/roles", g.Require(PermUsersWrite, PermRolesRead), h.AssignRoles)
		users.DELETE("/:id", g.Require(PermUsersWrite), h.DeleteUser)
	}
}

// scopedUser parses :id, loads the user and checks its organization lies
// within the caller's subtree.
func (h *UserHandler) scopedUser(c *gin.Context) (*service.UserResponse, bool) {
	id, valid := pathID(c)
	if !valid {
		return nil, false
	}
	user, err := h.userService.GetUserByID(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return nil, false
	}
	if err := h.authz.CheckScope(c.Request.Context(), principal(c), user.OrganizationID); err != nil {
		fail(c, err)
		return nil, false
	}
	return user, true
}

// checkGrantable lets role editors assign any role. Everyone else may only
// hand out roles whose permissions they hold themselves.
func (h *UserHandler) checkGrantable(ctx context.Context, p service.Principal, roleIDs []uuid.UUID) error {
	if len(roleIDs) == 0 {
		return nil
	}
	editor, err := h.authz.HasPermission(ctx, p.UserID, PermRolesWrite)
	if err != nil || editor {
		return err
	}
	return h.authz.CheckGrantable(ctx, p.UserID, roleIDs)
}

// ListUsers lists users of the caller's organization subtree
// @Summary      List users
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        page             query     int   false  "Page number"
// @Param        limit            query     int   false  "Items per page"
// @Param        include_deleted  query     bool  false  "Include soft-deleted rows"
// @Success      200  {object}  response.Response{data=response.Page{items=[]service.UserResponse}}
// @Router       /api/users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	p := pagination.Parse(c)
	scope, err := h.orgService.VisibleIDs(c.Request.Context(), principal(c).OrganizationID, p.IncludeDeleted)
	if err != nil {
		fail(c, err)
		return
	}
	users, total, err := h.userService.ListUsers(c.Request.Context(), listQuery(p), scope)
	if err != nil {
		fail(c, err)
		return
	}
	page(c, users, total, p)
}

// GetUserByID
// @Summary      Get a user
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response{data=service.UserResponse}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/users/{id} [get]
func (h *UserHandler) GetUserByID(c *gin.Context) {
	user, valid := h.scopedUser(c)
	if !valid {
		return
	}
	ok(c, user)
}

// GetUserRoles
// @Summary      List a user's live roles
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response{data=[]service.RoleResponse}
// @Router       /api/users/{id}/roles [get]
func (h *UserHandler) GetUserRoles(c *gin.Context) {
	user, valid := h.scopedUser(c)
	if !valid {
		return
	}
	ok(c, user.Roles)
}

// GetUserPermissions
// @Summary      List a user's effective permission keys
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response{data=[]string}
// @Router       /api/users/{id}/permissions [get]
func (h *UserHandler) GetUserPermissions(c *gin.Context) {
	user, valid := h.scopedUser(c)
	if !valid {
		return
	}
	keys, err := h.userService.GetUserPermissions(c.Request.Context(), user.ID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, keys)
}

// CreateUser handles POST /users requests mapping
// @Summary      Create a new user
// @Description  Creates a user in an organization of the caller's subtree, hashing the password
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateUserRequest  true  "Create User Payload"
// @Success      201      {object}  response.Response{data=service.UserResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req service.CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.authz.CheckScope(c.Request.Context(), principal(c), req.OrganizationID); err != nil {
		fail(c, err)
		return
	}
	if len(req.RoleIDs) > 0 {
		if err := h.authz.Authorize(c.Request.Context(), principal(c).UserID, PermRolesRead); err != nil {
			fail(c, err)
			return
		}
		if err := h.checkGrantable(c.Request.Context(), principal(c), req.RoleIDs); err != nil {
			fail(c, err)
			return
		}
	}
	user, err := h.userService.CreateUser(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, user)
}

// UpdateUser
// @Summary      Update a user
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                     true  "User ID"
// @Param        payload  body      service.UpdateUserRequest  true  "Update User Payload"
// @Success      200      {object}  response.Response{data=service.UserResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/users/{id} [put]
func (h *UserHandler) UpdateUser(c *gin.Context) {
	user, valid := h.scopedUser(c)
	if !valid {
		return
	}
	var req service.UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.OrganizationID != nil {
		if err := h.authz.CheckScope(c.Request.Context(), principal(c), *req.OrganizationID); err != nil {
			fail(c, err)
			return
		}
	}
	updated, err := h.userService.UpdateUser(c.Request.Context(), user.ID, req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, updated)
}

// AssignRoles replaces the user's role set. Roles the user already holds may
// be kept even if the caller could not grant them.
// @Summary      Replace a user's roles
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                      true  "User ID"
// @Param        payload  body      service.AssignRolesRequest  true  "Role IDs"
// @Success      200      {object}  response.Response{data=service.UserResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/users/{id}/roles [put]
func (h *UserHandler) AssignRoles(c *gin.Context) {
	user, valid := h.scopedUser(c)
	if !valid {
		return
	}
	var req service.AssignRolesRequest
	if !bindJSON(c, &req) {
		return
	}
	held := make(map[uuid.UUID]bool, len(user.Roles))
	for _, r := range user.Roles {
		held[r.ID] = true
	}
	var added []uuid.UUID
	for _, id := range req.RoleIDs {
		if !held[id] {
			added = append(added, id)
		}
	}
	if err := h.checkGrantable(c.Request.Context(), principal(c), added); err != nil {
		fail(c, err)
		return
	}
	updated, err := h.userService.AssignRoles(c.Request.Context(), user.ID, req.RoleIDs)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, updated)
}

// DeleteUser soft-deletes a user and revokes its sessions
// @Summary      Delete a user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /api/users/{id} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	user, valid := h.scopedUser(c)
	if !valid {
		return
	}
	if user.ID == principal(c).UserID {
		fail(c, apperror.Forbidden("cannot delete yourself"))
		return
	}
	if err := h.userService.DeleteUser(c.Request.Context(), user.ID); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"message": "User deleted successfully"})
}

