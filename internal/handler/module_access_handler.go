package handler

import (
	"net/http"
	"strconv"

	"hospital_backoffice_go/internal/service"
	"hospital_backoffice_go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ModuleAccessHandler 负责角色的模块级授权接口（管理员路由）。
type ModuleAccessHandler struct {
	moduleAccessService service.ModuleAccessService
}

func NewModuleAccessHandler(moduleAccessService service.ModuleAccessService) *ModuleAccessHandler {
	return &ModuleAccessHandler{moduleAccessService: moduleAccessService}
}

// SyncModuleAccessRequest 是同步角色模块授权的请求体。
// permissions 必须是调用方期望的完整选择，未选中的模块权限会被移除。
type SyncModuleAccessRequest struct {
	Permissions []string `json:"permissions" binding:"required"`
}

// ListModules 返回全部已注册模块。
func (h *ModuleAccessHandler) ListModules(c *gin.Context) {
	modules, err := h.moduleAccessService.ListModules()
	if err != nil {
		status, msg := mapServiceError(err)
		c.JSON(status, gin.H{
			"code":    status,
			"message": msg,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Modules retrieved successfully",
		"data":    modules,
	})
}

// RolePermissions 返回角色当前的完整权限集。
func (h *ModuleAccessHandler) RolePermissions(c *gin.Context) {
	roleID, ok := parseRoleIDParam(c)
	if !ok {
		return
	}

	permissions, err := h.moduleAccessService.RolePermissions(roleID)
	if err != nil {
		status, msg := mapServiceError(err)
		c.JSON(status, gin.H{
			"code":    status,
			"message": msg,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Role permissions retrieved successfully",
		"data":    permissions,
	})
}

// SyncModuleAccess 把角色在模块权限全集内的授权整体替换为本次提交的选择。
// 模块权限全集之外的权限不受影响。
func (h *ModuleAccessHandler) SyncModuleAccess(c *gin.Context) {
	roleID, ok := parseRoleIDParam(c)
	if !ok {
		return
	}

	var req SyncModuleAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "Invalid request body",
		})
		return
	}

	permissions, err := h.moduleAccessService.SyncModuleAccess(roleID, req.Permissions)
	if err != nil {
		log.Warnf("ModuleAccessHandler.SyncModuleAccess: failed for role %d: %v", roleID, err)
		status, msg := mapServiceError(err)
		c.JSON(status, gin.H{
			"code":    status,
			"message": msg,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Module access synchronized successfully",
		"data":    permissions,
	})
}

// parseRoleIDParam 解析路径参数 roleId，非法时直接写 400 响应并返回 false。
func parseRoleIDParam(c *gin.Context) (uint, bool) {
	id64, err := strconv.ParseUint(c.Param("roleId"), 10, 64)
	if err != nil || id64 == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "Invalid roleId parameter",
		})
		return 0, false
	}
	return uint(id64), true
}
