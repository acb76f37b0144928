package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	rbacdomain "github.com/smallbiznis/pricedesk/internal/rbac/domain"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
)

type assignRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// MyPermissions returns the caller's effective permissions. The UI uses it to
// decide which screens to show.
func (s *Server) MyPermissions(c *gin.Context) {
	ctx := c.Request.Context()
	actorID, ok := tenantcontext.ActorIDFromContext(ctx)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.rbacSvc.Resolve(ctx, actorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListRBACFeatures(c *gin.Context) {
	resp, err := s.rbacSvc.ListFeatures(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListRoles(c *gin.Context) {
	resp, err := s.rbacSvc.ListRoles(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateRole(c *gin.Context) {
	var req rbacdomain.RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.rbacSvc.CreateRole(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetRole(c *gin.Context) {
	resp, err := s.rbacSvc.GetRole(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateRole(c *gin.Context) {
	var req rbacdomain.RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.rbacSvc.UpdateRole(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteRole(c *gin.Context) {
	if err := s.rbacSvc.DeleteRole(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) SetRolePermissions(c *gin.Context) {
	var perms rbacdomain.Permissions
	if err := c.ShouldBindJSON(&perms); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.rbacSvc.SetRolePermissions(c.Request.Context(), c.Param("id"), perms)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetUserPermissions(c *gin.Context) {
	resp, err := s.rbacSvc.GetUserPermissions(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// SetUserPermissions replaces the user's direct grants. Role grants are
// untouched.
func (s *Server) SetUserPermissions(c *gin.Context) {
	var perms rbacdomain.Permissions
	if err := c.ShouldBindJSON(&perms); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	ctx := c.Request.Context()
	if err := s.rbacSvc.SetUserPermissions(ctx, c.Param("id"), perms); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.rbacSvc.GetUserPermissions(ctx, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AssignRole(c *gin.Context) {
	var req assignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	if err := s.rbacSvc.AssignRole(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.Role)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) RevokeRole(c *gin.Context) {
	if err := s.rbacSvc.RevokeRole(c.Request.Context(), c.Param("id"), c.Param("role")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
