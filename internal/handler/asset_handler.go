package handler

import (
	"net/http"
	"time"

	"hospital_backoffice_go/internal/service"
	"hospital_backoffice_go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// AssetHandler 负责固定资产与折旧查询接口（管理员路由）。
type AssetHandler struct {
	depreciationService service.DepreciationService
}

func NewAssetHandler(depreciationService service.DepreciationService) *AssetHandler {
	return &AssetHandler{depreciationService: depreciationService}
}

// CreateAssetRequest 是登记资产的请求体。
// 折旧年限与折旧方法要么都给、要么都不给，只给一个会被服务层拒绝。
type CreateAssetRequest struct {
	Code               string          `json:"code" binding:"required"`
	Name               string          `json:"name" binding:"required"`
	AcquisitionValue   decimal.Decimal `json:"acquisitionValue" binding:"required"`
	ResidualValue      decimal.Decimal `json:"residualValue"`
	AcquisitionDate    string          `json:"acquisitionDate" binding:"required"`
	UsefulLifeYears    *int            `json:"usefulLifeYears"`
	DepreciationMethod *string         `json:"depreciationMethod"`
	LocationID         *uint           `json:"locationId"`
}

// MoveAssetRequest 是资产调拨的请求体。
type MoveAssetRequest struct {
	ToLocationID uint   `json:"toLocationId" binding:"required"`
	MovementDate string `json:"movementDate" binding:"required"`
	Reason       string `json:"reason"`
}

// Create 登记固定资产。
func (h *AssetHandler) Create(c *gin.Context) {
	var req CreateAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "Invalid request body",
		})
		return
	}

	acquisitionDate, err := time.Parse(dateLayout, req.AcquisitionDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "Invalid acquisitionDate, expected YYYY-MM-DD",
		})
		return
	}

	user, ok := getUserFromContext(c)
	if !ok {
		return
	}

	asset, err := h.depreciationService.CreateAsset(req.Code, req.Name, req.AcquisitionValue,
		req.ResidualValue, acquisitionDate, req.UsefulLifeYears, req.DepreciationMethod,
		req.LocationID, user.Username)
	if err != nil {
		log.Warnf("AssetHandler.Create: failed to create asset: %v", err)
		status, msg := mapServiceError(err)
		c.JSON(status, gin.H{
			"code":    status,
			"message": msg,
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    http.StatusCreated,
		"message": "Asset created successfully",
		"data":    asset,
	})
}

// List 返回全部资产。
func (h *AssetHandler) List(c *gin.Context) {
	assets, err := h.depreciationService.ListAssets()
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
		"message": "Assets retrieved successfully",
		"data":    assets,
	})
}

// Get 返回单个资产。
func (h *AssetHandler) Get(c *gin.Context) {
	assetID, ok := parseIDParam(c)
	if !ok {
		return
	}

	asset, err := h.depreciationService.FindAsset(assetID)
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
		"message": "Asset retrieved successfully",
		"data":    asset,
	})
}

// Depreciation 计算资产在某时点的折旧结果。
// query 参数：asOf（YYYY-MM-DD，默认当天）、usageRatio（0~1，仅产量法有意义）。
func (h *AssetHandler) Depreciation(c *gin.Context) {
	assetID, ok := parseIDParam(c)
	if !ok {
		return
	}

	asOf := time.Now()
	if raw := c.Query("asOf"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    http.StatusBadRequest,
				"message": "Invalid asOf, expected YYYY-MM-DD",
			})
			return
		}
		asOf = parsed
	}

	var usageRatio *decimal.Decimal
	if raw := c.Query("usageRatio"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    http.StatusBadRequest,
				"message": "Invalid usageRatio",
			})
			return
		}
		usageRatio = &parsed
	}

	result, err := h.depreciationService.Compute(assetID, asOf, usageRatio)
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
		"message": "Depreciation computed successfully",
		"data":    result,
	})
}

// Schedule 返回资产整个使用期的逐月折旧计划表。
func (h *AssetHandler) Schedule(c *gin.Context) {
	assetID, ok := parseIDParam(c)
	if !ok {
		return
	}

	schedule, straightLineFallback, err := h.depreciationService.Schedule(assetID)
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
		"message": "Depreciation schedule retrieved successfully",
		"data": gin.H{
			"entries":                schedule,
			"straight_line_fallback": straightLineFallback,
		},
	})
}

// Move 登记资产调拨。
func (h *AssetHandler) Move(c *gin.Context) {
	assetID, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req MoveAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "Invalid request body",
		})
		return
	}

	movementDate, err := time.Parse(dateLayout, req.MovementDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "Invalid movementDate, expected YYYY-MM-DD",
		})
		return
	}

	user, ok := getUserFromContext(c)
	if !ok {
		return
	}

	movement, err := h.depreciationService.RecordMovement(assetID, req.ToLocationID,
		movementDate, req.Reason, user.Username)
	if err != nil {
		log.Warnf("AssetHandler.Move: failed to move asset %d: %v", assetID, err)
		status, msg := mapServiceError(err)
		c.JSON(status, gin.H{
			"code":    status,
			"message": msg,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Asset movement recorded successfully",
		"data":    movement,
	})
}

// Movements 返回资产的调拨历史。
func (h *AssetHandler) Movements(c *gin.Context) {
	assetID, ok := parseIDParam(c)
	if !ok {
		return
	}

	movements, err := h.depreciationService.ListMovements(assetID)
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
		"message": "Asset movements retrieved successfully",
		"data":    movements,
	})
}
