package handler

import (
	"errors"
	"net/http"
	"hospital_backoffice_go/internal/model"
	"hospital_backoffice_go/internal/service"
	"strings"

	"github.com/gin-gonic/gin"
)

// mapServiceError 把 Service 层哨兵错误转换为 HTTP 状态码和对外消息。
// 统一映射的价值：
// 1. Handler 不必散落大量 if/else 判断。
// 2. 对外返回口径稳定，避免泄露内部实现细节。
func mapServiceError(err error) (httpStatus int, message string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid request parameters"
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid username or password"
	case errors.Is(err, service.ErrUserAlreadyExists):
		return http.StatusConflict, "User already exists"
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, service.ErrNodeNotFound):
		return http.StatusNotFound, "Organization node not found"
	case errors.Is(err, service.ErrNodeAlreadyExists):
		return http.StatusConflict, "Organization node already exists"
	case errors.Is(err, service.ErrNodeHasChildren):
		return http.StatusConflict, "Organization node has child nodes"
	case errors.Is(err, service.ErrCircularReference):
		return http.StatusConflict, "Move would create a circular reference"
	case errors.Is(err, service.ErrRuleNotFound):
		return http.StatusNotFound, "Allocation rule not found"
	case errors.Is(err, service.ErrRuleAlreadyExists):
		return http.StatusConflict, "Allocation rule already exists"
	case errors.Is(err, service.ErrInvalidFormula):
		return http.StatusUnprocessableEntity, "Invalid allocation formula"
	case errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict, "Operation not allowed in current approval status"
	case errors.Is(err, service.ErrSelfApprovalForbidden):
		return http.StatusForbidden, "Creator cannot approve own record"
	case errors.Is(err, service.ErrImmutable):
		return http.StatusConflict, "Approved record cannot be modified"
	case errors.Is(err, service.ErrBudgetNotFound):
		return http.StatusNotFound, "Budget not found"
	case errors.Is(err, service.ErrBudgetAlreadyExists):
		return http.StatusConflict, "Budget already exists for this period"
	case errors.Is(err, service.ErrAssetNotFound):
		return http.StatusNotFound, "Asset not found"
	case errors.Is(err, service.ErrAssetAlreadyExists):
		return http.StatusConflict, "Asset already exists"
	case errors.Is(err, service.ErrNotDepreciable):
		return http.StatusUnprocessableEntity, "Asset has no depreciation configuration"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// extractBearerToken 从 Authorization 请求头提取 Bearer Token。
// 期望格式：Authorization: Bearer <token>
func extractBearerToken(authHeader string) (string, error) {
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	if strings.TrimSpace(parts[1]) == "" {
		return "", errors.New("empty token")
	}
	return parts[1], nil
}

// getUserFromContext 从 Gin 上下文中读取 AuthMiddleware 注入的用户对象。
// 如果上下文异常，该函数会直接写错误响应并返回 false，调用方只需 `if !ok { return }`。
func getUserFromContext(c *gin.Context) (*model.User, bool) {
	userVal, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    http.StatusUnauthorized,
			"error":   "Unauthorized",
			"message": "User not found in context",
		})
		return nil, false
	}

	user, ok := userVal.(*model.User)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"error":   "Internal server error",
			"message": "Failed to get user profile",
		})
		return nil, false
	}
	return user, true
}
