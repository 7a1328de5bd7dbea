package handler

import (
	"net/http"
	"strconv"

	"hospital_backoffice_go/internal/service"
	"hospital_backoffice_go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// BudgetHandler 负责成本中心预算接口（管理员路由）。
type BudgetHandler struct {
	budgetService service.BudgetService
}

func NewBudgetHandler(budgetService service.BudgetService) *BudgetHandler {
	return &BudgetHandler{budgetService: budgetService}
}

// CreateBudgetRequest 是创建预算行的请求体。
type CreateBudgetRequest struct {
	CostCenterID uint            `json:"costCenterId" binding:"required"`
	FiscalYear   int             `json:"fiscalYear" binding:"required"`
	PeriodMonth  int             `json:"periodMonth" binding:"required"`
	Category     string          `json:"category" binding:"required"`
	BudgetAmount decimal.Decimal `json:"budgetAmount" binding:"required"`
}

// RecordActualRequest 是更新实际发生额的请求体。
type RecordActualRequest struct {
	ActualAmount decimal.Decimal `json:"actualAmount" binding:"required"`
}

// ReviseBudgetRequest 是修订预算金额的请求体，修订理由必填。
type ReviseBudgetRequest struct {
	NewAmount     decimal.Decimal `json:"newAmount" binding:"required"`
	Justification string          `json:"justification" binding:"required"`
}

// Create 创建预算行。
func (h *BudgetHandler) Create(c *gin.Context) {
	var req CreateBudgetRequest
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

	budget, err := h.budgetService.Create(req.CostCenterID, req.FiscalYear, req.PeriodMonth,
		req.Category, req.BudgetAmount, user.ID)
	if err != nil {
		log.Warnf("BudgetHandler.Create: failed to create budget: %v", err)
		status, msg := mapServiceError(err)
		c.JSON(status, gin.H{
			"code":    status,
			"message": msg,
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    http.StatusCreated,
		"message": "Budget created successfully",
		"data":    budget,
	})
}

// Get 返回单条预算行，附带剩余预算。
func (h *BudgetHandler) Get(c *gin.Context) {
	budgetID, ok := parseIDParam(c)
	if !ok {
		return
	}

	budget, err := h.budgetService.FindByID(budgetID)
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
		"message": "Budget retrieved successfully",
		"data": gin.H{
			"budget":    budget,
			"remaining": h.budgetService.RemainingBudget(budget),
		},
	})
}

// ListByCostCenter 返回某成本中心某财年的全部预算行。
// query 参数：costCenterId、fiscalYear。
func (h *BudgetHandler) ListByCostCenter(c *gin.Context) {
	costCenterID, err := strconv.ParseUint(c.Query("costCenterId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "Invalid costCenterId parameter",
		})
		return
	}
	fiscalYear, err := strconv.Atoi(c.Query("fiscalYear"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "Invalid fiscalYear parameter",
		})
		return
	}

	budgets, err := h.budgetService.ListByCostCenter(uint(costCenterID), fiscalYear)
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
		"message": "Budgets retrieved successfully",
		"data":    budgets,
	})
}

// RecordActual 更新实际发生额并重算差异额与使用率。
func (h *BudgetHandler) RecordActual(c *gin.Context) {
	budgetID, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req RecordActualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "Invalid request body",
		})
		return
	}

	budget, err := h.budgetService.RecordActual(budgetID, req.ActualAmount)
	if err != nil {
		log.Warnf("BudgetHandler.RecordActual: failed for budget %d: %v", budgetID, err)
		status, msg := mapServiceError(err)
		c.JSON(status, gin.H{
			"code":    status,
			"message": msg,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Actual amount recorded successfully",
		"data":    budget,
	})
}

// Revise 修订预算金额，旧版本进入修订历史。
func (h *BudgetHandler) Revise(c *gin.Context) {
	budgetID, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req ReviseBudgetRequest
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

	budget, err := h.budgetService.Revise(budgetID, req.NewAmount, req.Justification, user.ID)
	if err != nil {
		log.Warnf("BudgetHandler.Revise: failed for budget %d: %v", budgetID, err)
		status, msg := mapServiceError(err)
		c.JSON(status, gin.H{
			"code":    status,
			"message": msg,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Budget revised successfully",
		"data":    budget,
	})
}

// Revisions 返回预算行的全部修订历史。
func (h *BudgetHandler) Revisions(c *gin.Context) {
	budgetID, ok := parseIDParam(c)
	if !ok {
		return
	}

	revisions, err := h.budgetService.Revisions(budgetID)
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
		"message": "Budget revisions retrieved successfully",
		"data":    revisions,
	})
}
