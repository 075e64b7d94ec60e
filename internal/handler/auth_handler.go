package handler

import (
	"github.com/gin-gonic/gin"

	"orgadmin/internal/middleware"
	"orgadmin/internal/service"
	"orgadmin/pkg/apperror"
)

type AuthHandler struct {
	authService service.AuthService
	userService service.UserService
	authz       service.Authorizer
	cookies     middleware.CookieSettings
}

func NewAuthHandler(authService service.AuthService, userService service.UserService, authz service.Authorizer, cookies middleware.CookieSettings) *AuthHandler {
	return &AuthHandler{authService: authService, userService: userService, authz: authz, cookies: cookies}
}

// MeResponse is the authenticated user with its effective permissions.
type MeResponse struct {
	User        *service.UserResponse `json:"user"`
	Permissions []string              `json:"permissions"`
}

// RegisterRoutes mounts the auth endpoints. loginLimit throttles login and
// refresh per client IP.
func (h *AuthHandler) RegisterRoutes(router *gin.RouterGroup, g *Guard, loginLimit gin.HandlerFunc) {
	auth := router.Group("/auth")
	{
		auth.POST("/login", loginLimit, h.Login)
		auth.POST("/refresh", loginLimit, h.Refresh)
		auth.POST("/logout", g.Authenticated(), h.Logout)
	}
	router.GET("/me", g.Authenticated(), h.GetMe)
}

// Login
// @Summary      Login user
// @Description  Authenticates by username or email and password, returning an access/refresh pair
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LoginRequest  true  "Login Credentials"
// @Success      200      {object}  response.Response{data=service.TokenResponse}
// @Failure      401      {object}  response.Response
// @Failure      429      {object}  response.Response
// @Router       /api/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	tok, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	middleware.SetTokenCookies(c, h.cookies, tok.AccessToken, tok.RefreshToken)
	ok(c, tok)
}

// Refresh exchanges a refresh token (body or cookie) for a new pair
// @Summary      Refresh tokens
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RefreshRequest  false  "Refresh token, if not sent as cookie"
// @Success      200      {object}  response.Response{data=service.TokenResponse}
// @Failure      401      {object}  response.Response
// @Router       /api/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req service.RefreshRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	if req.RefreshToken == "" {
		req.RefreshToken, _ = c.Cookie(middleware.RefreshCookie)
	}
	tok, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		fail(c, err)
		return
	}
	middleware.SetTokenCookies(c, h.cookies, tok.AccessToken, tok.RefreshToken)
	ok(c, tok)
}

// Logout revokes the current session
// @Summary      Logout
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response
// @Router       /api/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context(), principal(c)); err != nil {
		fail(c, err)
		return
	}
	middleware.ClearTokenCookies(c, h.cookies)
	ok(c, gin.H{"message": "Logged out successfully"})
}

// GetMe
// @Summary      Get current user
// @Description  The authenticated user with its effective permissions
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=MeResponse}
// @Failure      401  {object}  response.Response
// @Router       /api/me [get]
func (h *AuthHandler) GetMe(c *gin.Context) {
	p := principal(c)
	user, err := h.userService.GetUserByID(c.Request.Context(), p.UserID)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			err = apperror.Unauthenticated("user no longer exists")
		}
		fail(c, err)
		return
	}
	perms, err := h.authz.Permissions(c.Request.Context(), p.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, MeResponse{User: user, Permissions: perms})
}
