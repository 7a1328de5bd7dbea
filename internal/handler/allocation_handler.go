package handler

import (
	"net/http"
	"time"

	"hospital_backoffice_go/internal/service"
	"hospital_backoffice_go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// 接口收发日期只认天粒度。
const dateLayout = "2006-01-02"

// AllocationHandler 负责成本分摊规则的管理、审批与执行接口（管理员路由）。
type AllocationHandler struct {
	allocationService service.AllocationService
}

func NewAllocationHandler(allocationService service.AllocationService) *AllocationHandler {
	return &AllocationHandler{allocationService: allocationService}
}

// AllocationTargetRequest 是单个分摊目标。
type AllocationTargetRequest struct {
	CostCenterID uint            `json:"costCenterId" binding:"required"`
	Percentage   decimal.Decimal `json:"percentage"`
}

// AllocationRuleRequest 是创建/更新分摊规则的请求体。
type AllocationRuleRequest struct {
	Code               string                    `json:"code" binding:"required"`
	Name               string                    `json:"name" binding:"required"`
	SourceCostCenterID uint                      `json:"sourceCostCenterId" binding:"required"`
	AllocationBase     string                    `json:"allocationBase" binding:"required"`
	AllocationFormula  *string                   `json:"allocationFormula"`
	EffectiveDate      string                    `json:"effectiveDate" binding:"required"`
	EndDate            *string                   `json:"endDate"`
	Targets            []AllocationTargetRequest `json:"targets" binding:"required"`
}

// DecideRequest 是审批决定的请求体。
type DecideRequest struct {
	Approve *bool `json:"approve" binding:"required"`
}

// ExecuteAllocationRequest 是执行一次分摊的请求体。
// variables 是公式基础下的命名变量（如各目标的工作量），其余基础可省略。
type ExecuteAllocationRequest struct {
	Period       string                     `json:"period" binding:"required"`
	SourceAmount decimal.Decimal            `json:"sourceAmount" binding:"required"`
	Variables    map[string]decimal.Decimal `json:"variables"`
}

// toInput 把请求体转成服务层输入，日期解析失败时返回 false（响应已写出）。
func (req *AllocationRuleRequest) toInput(c *gin.Context) (service.RuleInput, bool) {
	effective, err := time.Parse(dateLayout, req.EffectiveDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "Invalid effectiveDate, expected YYYY-MM-DD",
		})
		return service.RuleInput{}, false
	}

	var endDate *time.Time
	if req.EndDate != nil {
		parsed, err := time.Parse(dateLayout, *req.EndDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    http.StatusBadRequest,
				"message": "Invalid endDate, expected YYYY-MM-DD",
			})
			return service.RuleInput{}, false
		}
		endDate = &parsed
	}

	targets := make([]service.TargetInput, 0, len(req.Targets))
	for _, t := range req.Targets {
		targets = append(targets, service.TargetInput{
			CostCenterID: t.CostCenterID,
			Percentage:   t.Percentage,
		})
	}

	return service.RuleInput{
		Code:               req.Code,
		Name:               req.Name,
		SourceCostCenterID: req.SourceCostCenterID,
		AllocationBase:     req.AllocationBase,
		AllocationFormula:  req.AllocationFormula,
		EffectiveDate:      effective,
		EndDate:            endDate,
		Targets:            targets,
	}, true
}

// Create 创建分摊规则（初始为 DRAFT）。
func (h *AllocationHandler) Create(c *gin.Context) {
	var req AllocationRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "Invalid request body",
		})
		return
	}

	input, ok := req.toInput(c)
	if !ok {
		return
	}

	user, ok := getUserFromContext(c)
	if !ok {
		return
	}

	rule, err := h.allocationService.CreateRule(input, user.ID)
	if err != nil {
		log.Warnf("AllocationHandler.Create: failed to create rule: %v", err)
		status, msg := mapServiceError(err)
		c.JSON(status, gin.H{
			"code":    status,
			"message": msg,
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    http.StatusCreated,
		"message": "Allocation rule created successfully",
		"data":    rule,
	})
}

// List 返回全部分摊规则。
func (h *AllocationHandler) List(c *gin.Context) {
	rules, err := h.allocationService.ListRules()
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
		"message": "Allocation rules retrieved successfully",
		"data":    rules,
	})
}

// Get 返回单条分摊规则（含目标明细）。
func (h *AllocationHandler) Get(c *gin.Context) {
	ruleID, ok := parseIDParam(c)
	if !ok {
		return
	}

	rule, err := h.allocationService.FindRule(ruleID)
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
		"message": "Allocation rule retrieved successfully",
		"data":    rule,
	})
}

// Update 更新分摊规则（DRAFT/REJECTED 状态才允许）。
func (h *AllocationHandler) Update(c *gin.Context) {
	ruleID, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req AllocationRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "Invalid request body",
		})
		return
	}

	input, ok := req.toInput(c)
	if !ok {
		return
	}

	rule, err := h.allocationService.UpdateRule(ruleID, input)
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
		"message": "Allocation rule updated successfully",
		"data":    rule,
	})
}

// Delete 删除分摊规则（DRAFT/REJECTED 状态才允许）。
func (h *AllocationHandler) Delete(c *gin.Context) {
	ruleID, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := h.allocationService.DeleteRule(ruleID); err != nil {
		status, msg := mapServiceError(err)
		c.JSON(status, gin.H{
			"code":    status,
			"message": msg,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Allocation rule deleted successfully",
	})
}

// Submit 把规则送审（DRAFT/REJECTED -> PENDING）。
func (h *AllocationHandler) Submit(c *gin.Context) {
	ruleID, ok := parseIDParam(c)
	if !ok {
		return
	}

	user, ok := getUserFromContext(c)
	if !ok {
		return
	}

	if err := h.allocationService.SubmitForApproval(ruleID, user.ID); err != nil {
		log.Warnf("AllocationHandler.Submit: failed to submit rule %d: %v", ruleID, err)
		status, msg := mapServiceError(err)
		c.JSON(status, gin.H{
			"code":    status,
			"message": msg,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Allocation rule submitted for approval",
	})
}

// Decide 批准或驳回送审中的规则，创建人不能审批自己的规则。
func (h *AllocationHandler) Decide(c *gin.Context) {
	ruleID, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req DecideRequest
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

	rule, err := h.allocationService.Decide(ruleID, user.ID, *req.Approve)
	if err != nil {
		log.Warnf("AllocationHandler.Decide: failed to decide rule %d: %v", ruleID, err)
		status, msg := mapServiceError(err)
		c.JSON(status, gin.H{
			"code":    status,
			"message": msg,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Allocation rule decision recorded",
		"data":    rule,
	})
}

// Execute 执行一次分摊并返回本批次的结果行。
func (h *AllocationHandler) Execute(c *gin.Context) {
	ruleID, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req ExecuteAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "Invalid request body",
		})
		return
	}

	journals, err := h.allocationService.Execute(ruleID, req.Period, req.SourceAmount, req.Variables)
	if err != nil {
		log.Warnf("AllocationHandler.Execute: failed to execute rule %d: %v", ruleID, err)
		status, msg := mapServiceError(err)
		c.JSON(status, gin.H{
			"code":    status,
			"message": msg,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Allocation executed successfully",
		"data":    journals,
	})
}
