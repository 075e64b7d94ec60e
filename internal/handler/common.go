package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"orgadmin/internal/middleware"
	"orgadmin/internal/service"
	"orgadmin/pkg/pagination"
	"orgadmin/pkg/response"
)

// Permission keys guarding the API. They are seeded at startup.
const (
	PermPermissionsRead    = "permissions.read"
	PermPermissionsWrite   = "permissions.write"
	PermRolesRead          = "roles.read"
	PermRolesWrite         = "roles.write"
	PermOrganizationsRead  = "organizations.read"
	PermOrganizationsWrite = "organizations.write"
	PermUsersRead          = "users.read"
	PermUsersWrite         = "users.write"
	PermAuditRead          = "audit.read"
)

// Guard builds the authentication and permission middleware for routes.
type Guard struct {
	auth  service.AuthService
	authz service.Authorizer
}

func NewGuard(auth service.AuthService, authz service.Authorizer) *Guard {
	return &Guard{auth: auth, authz: authz}
}

func (g *Guard) Authenticated() gin.HandlerFunc { return middleware.Authenticate(g.auth) }

func (g *Guard) Require(keys ...string) gin.HandlerFunc {
	return middleware.RequirePermission(g.authz, keys...)
}

// fail writes the error response for a service failure and records the
// error on the context for the request logger.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	res := response.FromError(err)
	c.JSON(res.StatusCode, res)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, msg))
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return false
	}
	return true
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid id: "+c.Param("id"))
		return uuid.Nil, false
	}
	return id, true
}

func principal(c *gin.Context) service.Principal {
	p, _ := middleware.PrincipalFrom(c)
	return p
}

func listQuery(p pagination.Params) service.ListQuery {
	return service.ListQuery{Page: p.Page, Limit: p.Limit, IncludeDeleted: p.IncludeDeleted}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, response.Success(http.StatusOK, data))
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, data))
}

func page(c *gin.Context, items any, total int64, p pagination.Params) {
	ok(c, response.Page{Items: items, Total: total, Page: p.Page, Limit: p.Limit})
}
