package handler

import (
	"net/http"
	"strconv"

	"hospital_backoffice_go/internal/service"
	"hospital_backoffice_go/pkg/log"

	"github.com/gin-gonic/gin"
)

// OrgNodeHandler 负责组织层级（科室/成本中心）管理接口（管理员路由）。
type OrgNodeHandler struct {
	hierarchyService service.HierarchyService
}

func NewOrgNodeHandler(hierarchyService service.HierarchyService) *OrgNodeHandler {
	return &OrgNodeHandler{hierarchyService: hierarchyService}
}

// CreateOrgNodeRequest 是创建组织节点的请求体。
// parentId 使用指针以区分“根节点”和“没传该字段”两种情况。
type CreateOrgNodeRequest struct {
	Code     string `json:"code" binding:"required"`
	Name     string `json:"name" binding:"required"`
	NodeType string `json:"nodeType" binding:"required"`
	ParentID *uint  `json:"parentId"`
}

// UpdateOrgNodeRequest 是更新组织节点的请求体（不含挂载位置，移动走单独接口）。
type UpdateOrgNodeRequest struct {
	Name     string `json:"name" binding:"required"`
	NodeType string `json:"nodeType" binding:"required"`
	IsActive *bool  `json:"isActive" binding:"required"`
}

// MoveOrgNodeRequest 是移动组织节点的请求体。
type MoveOrgNodeRequest struct {
	NewParentID *uint `json:"newParentId"`
}

// Create 创建组织节点。
func (h *OrgNodeHandler) Create(c *gin.Context) {
	var req CreateOrgNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "Invalid request body",
		})
		return
	}

	user, ok := getUserFromContext(c)
	if !ok {
		return
	}

	node, err := h.hierarchyService.Create(req.Code, req.Name, req.NodeType, req.ParentID, user.Username)
	if err != nil {
		log.Warnf("OrgNodeHandler.Create: failed to create node: %v", err)
		status, msg := mapServiceError(err)
		c.JSON(status, gin.H{
			"code":    status,
			"message": msg,
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    http.StatusCreated,
		"message": "Organization node created successfully",
		"data":    node,
	})
}

// List 返回组织节点平铺列表。
func (h *OrgNodeHandler) List(c *gin.Context) {
	nodes, err := h.hierarchyService.List()
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
		"message": "Organization nodes retrieved successfully",
		"data":    nodes,
	})
}

// GetTree 返回树形组织结构。
func (h *OrgNodeHandler) GetTree(c *gin.Context) {
	tree, err := h.hierarchyService.GetTree()
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
		"message": "Organization tree retrieved successfully",
		"data":    tree,
	})
}

// Get 返回单个组织节点。
func (h *OrgNodeHandler) Get(c *gin.Context) {
	nodeID, ok := parseIDParam(c)
	if !ok {
		return
	}

	node, err := h.hierarchyService.FindByID(nodeID)
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
		"message": "Organization node retrieved successfully",
		"data":    node,
	})
}

// Update 更新组织节点的名称、类型和启用状态。
func (h *OrgNodeHandler) Update(c *gin.Context) {
	nodeID, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req UpdateOrgNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "Invalid request body",
		})
		return
	}

	user, ok := getUserFromContext(c)
	if !ok {
		return
	}

	node, err := h.hierarchyService.Update(nodeID, req.Name, req.NodeType, *req.IsActive, user.Username)
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
		"message": "Organization node updated successfully",
		"data":    node,
	})
}

// Move 把节点（连同整棵子树）挂到新父节点下。
func (h *OrgNodeHandler) Move(c *gin.Context) {
	nodeID, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req MoveOrgNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "Invalid request body",
		})
		return
	}

	user, ok := getUserFromContext(c)
	if !ok {
		return
	}

	node, err := h.hierarchyService.Move(nodeID, req.NewParentID, user.Username)
	if err != nil {
		log.Warnf("OrgNodeHandler.Move: failed to move node %d: %v", nodeID, err)
		status, msg := mapServiceError(err)
		c.JSON(status, gin.H{
			"code":    status,
			"message": msg,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Organization node moved successfully",
		"data":    node,
	})
}

// Delete 删除组织节点，有子节点时拒绝。
func (h *OrgNodeHandler) Delete(c *gin.Context) {
	nodeID, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := h.hierarchyService.Delete(nodeID); err != nil {
		status, msg := mapServiceError(err)
		c.JSON(status, gin.H{
			"code":    status,
			"message": msg,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Organization node deleted successfully",
	})
}

// parseIDParam 解析路径参数 id，非法时直接写 400 响应并返回 false。
func parseIDParam(c *gin.Context) (uint, bool) {
	id64, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id64 == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "Invalid id parameter",
		})
		return 0, false
	}
	return uint(id64), true
}
