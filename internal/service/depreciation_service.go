package service

import (
	"errors"
	"hospital_backoffice_go/internal/model"
	"hospital_backoffice_go/internal/repository"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 双倍余额递减法的加速系数。
var decliningFactor = decimal.NewFromInt(2)

// DepreciationResult 是某个时点的折旧计算结果。
// 金额在返回边界处保留两位小数，中间计算保持全精度。
type DepreciationResult struct {
	Monthly       decimal.Decimal `json:"monthly"`
	Accumulated   decimal.Decimal `json:"accumulated"`
	BookValue     decimal.Decimal `json:"book_value"`
	MonthsElapsed int             `json:"months_elapsed"`
	// StraightLineFallback 为 true 表示产量法缺少用量数据、已按直线法回退计算。
	// 调用方必须把该标记透传给使用者，不允许把回退值当作产量法结果上报。
	StraightLineFallback bool `json:"straight_line_fallback"`
}

// ScheduleEntry 是折旧计划表的一行（第 n 个月的折旧额与期末余额）。
type ScheduleEntry struct {
	Month       int             `json:"month"`
	Period      string          `json:"period"` // 格式 YYYY-MM
	Amount      decimal.Decimal `json:"amount"`
	Accumulated decimal.Decimal `json:"accumulated"`
	BookValue   decimal.Decimal `json:"book_value"`
}

// DepreciationService 封装固定资产折旧计算与资产调拨的领域逻辑。
// 折旧三个派生值（月折旧、累计折旧、账面净值）按需计算、不落库；
// 计算是纯 CPU 运算，全部使用 decimal 定点数，禁止浮点参与货币运算。
type DepreciationService interface {
	CreateAsset(code, name string, acquisitionValue, residualValue decimal.Decimal,
		acquisitionDate time.Time, usefulLifeYears *int, method *string, locationID *uint, actor string) (*model.Asset, error)
	FindAsset(assetID uint) (*model.Asset, error)
	ListAssets() ([]model.Asset, error)

	// IsDepreciable 年限与方法都已配置才返回 true；调用方必须先检查再取数。
	IsDepreciable(asset *model.Asset) bool

	// Compute 计算 asOf 时点的折旧结果。
	// usageRatio 仅对产量法有意义：表示截至 asOf 已消耗的产能比例（0~1）；
	// 传 nil 时产量法按直线法回退并置 StraightLineFallback。
	Compute(assetID uint, asOf time.Time, usageRatio *decimal.Decimal) (*DepreciationResult, error)

	// Schedule 生成整个使用期的逐月折旧计划表。
	// 产量法没有预定的逐月用量，计划表按直线法口径生成，
	// 此时第二个返回值为 true，调用方必须透传该回退标记。
	Schedule(assetID uint) ([]ScheduleEntry, bool, error)

	// RecordMovement 登记资产调拨：追加审计行并更新资产当前位置。
	RecordMovement(assetID, toLocationID uint, movementDate time.Time, reason, actor string) (*model.AssetMovement, error)
	ListMovements(assetID uint) ([]model.AssetMovement, error)
}

type depreciationService struct {
	assetRepo repository.AssetRepository
	nodeRepo  repository.OrganizationNodeRepository
}

func NewDepreciationService(assetRepo repository.AssetRepository, nodeRepo repository.OrganizationNodeRepository) DepreciationService {
	return &depreciationService{assetRepo: assetRepo, nodeRepo: nodeRepo}
}

// CreateAsset 创建固定资产。
// 关键规则：
// 1. code/name 必填；取得值必须大于 0；残值不能为负且不能超过取得值。
// 2. 折旧年限和折旧方法要么都填、要么都不填（半配置视为输入错误）。
// 3. 指定存放位置时，位置必须是已存在的组织节点。
func (s *depreciationService) CreateAsset(code, name string, acquisitionValue, residualValue decimal.Decimal,
	acquisitionDate time.Time, usefulLifeYears *int, method *string, locationID *uint, actor string) (*model.Asset, error) {
	if s.assetRepo == nil {
		return nil, ErrInternal
	}

	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return nil, ErrInvalidInput
	}
	if !acquisitionValue.IsPositive() {
		return nil, ErrInvalidInput
	}
	if residualValue.IsNegative() || residualValue.GreaterThan(acquisitionValue) {
		return nil, ErrInvalidInput
	}
	if (usefulLifeYears == nil) != (method == nil) {
		return nil, ErrInvalidInput
	}
	if usefulLifeYears != nil && *usefulLifeYears <= 0 {
		return nil, ErrInvalidInput
	}
	if method != nil {
		switch *method {
		case model.DepreciationStraightLine, model.DepreciationDecliningBalance, model.DepreciationUnitsOfProd:
		default:
			return nil, ErrInvalidInput
		}
	}

	_, err := s.assetRepo.FindByCode(code)
	if err == nil {
		return nil, ErrAssetAlreadyExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if locationID != nil {
		if _, err := s.nodeRepo.FindByID(*locationID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNodeNotFound
			}
			return nil, err
		}
	}

	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = "system"
	}

	asset := &model.Asset{
		Code:               code,
		Name:               name,
		AcquisitionValue:   acquisitionValue,
		AcquisitionDate:    acquisitionDate,
		ResidualValue:      residualValue,
		UsefulLifeYears:    usefulLifeYears,
		DepreciationMethod: method,
		CurrentLocationID:  locationID,
		CreatedBy:          actor,
		UpdatedBy:          actor,
	}
	if err := s.assetRepo.Create(asset); err != nil {
		return nil, err
	}
	return asset, nil
}

func (s *depreciationService) FindAsset(assetID uint) (*model.Asset, error) {
	if s.assetRepo == nil {
		return nil, ErrInternal
	}
	if assetID == 0 {
		return nil, ErrInvalidInput
	}

	asset, err := s.assetRepo.FindByID(assetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssetNotFound
		}
		return nil, err
	}
	return asset, nil
}

func (s *depreciationService) ListAssets() ([]model.Asset, error) {
	if s.assetRepo == nil {
		return nil, ErrInternal
	}
	return s.assetRepo.FindAll()
}

func (s *depreciationService) IsDepreciable(asset *model.Asset) bool {
	return asset != nil && asset.UsefulLifeYears != nil && asset.DepreciationMethod != nil
}

// Compute 计算 asOf 时点的折旧结果。
// 不变量：
//   - 累计折旧不超过 (取得值 - 残值)，且随 asOf 单调不减
//   - 账面净值 = 取得值 - 累计折旧，下限为残值
//   - 经过月数向下取整、不为负、不超过 年限 × 12
func (s *depreciationService) Compute(assetID uint, asOf time.Time, usageRatio *decimal.Decimal) (*DepreciationResult, error) {
	asset, err := s.FindAsset(assetID)
	if err != nil {
		return nil, err
	}
	if !s.IsDepreciable(asset) {
		return nil, ErrNotDepreciable
	}
	return computeDepreciation(asset, asOf, usageRatio)
}

// computeDepreciation 是纯计算部分，测试直接覆盖这里。
func computeDepreciation(asset *model.Asset, asOf time.Time, usageRatio *decimal.Decimal) (*DepreciationResult, error) {
	lifeMonths := *asset.UsefulLifeYears * 12
	base := asset.AcquisitionValue.Sub(asset.ResidualValue)
	months := monthsBetween(asset.AcquisitionDate, asOf)
	if months > lifeMonths {
		months = lifeMonths
	}

	result := &DepreciationResult{MonthsElapsed: months}

	switch *asset.DepreciationMethod {
	case model.DepreciationDecliningBalance:
		// 双倍余额递减：月折旧 = 期初账面净值 × (2 / 总月数)，逐月迭代，
		// 累计折旧封顶在可折旧基数（即账面净值不低于残值）。
		rate := decliningFactor.Div(decimal.NewFromInt(int64(lifeMonths)))
		accumulated := decimal.Zero
		monthly := decimal.Zero
		for i := 0; i < months; i++ {
			bookValue := asset.AcquisitionValue.Sub(accumulated)
			monthly = bookValue.Mul(rate)
			if accumulated.Add(monthly).GreaterThan(base) {
				monthly = base.Sub(accumulated)
			}
			accumulated = accumulated.Add(monthly)
		}
		if months == 0 {
			monthly = asset.AcquisitionValue.Mul(rate)
		}
		result.Monthly = monthly.Round(2)
		result.Accumulated = accumulated.Round(2)

	case model.DepreciationUnitsOfProd:
		if usageRatio == nil {
			// 用量数据缺失：按直线法回退并显式标记，绝不静默冒充产量法结果
			result.StraightLineFallback = true
			monthly := base.Div(decimal.NewFromInt(int64(lifeMonths)))
			result.Monthly = monthly.Round(2)
			result.Accumulated = capAt(monthly.Mul(decimal.NewFromInt(int64(months))), base).Round(2)
			break
		}
		if usageRatio.IsNegative() || usageRatio.GreaterThan(decimal.NewFromInt(1)) {
			return nil, ErrInvalidInput
		}
		accumulated := capAt(base.Mul(*usageRatio), base)
		monthly := decimal.Zero
		if months > 0 {
			monthly = accumulated.Div(decimal.NewFromInt(int64(months)))
		}
		result.Monthly = monthly.Round(2)
		result.Accumulated = accumulated.Round(2)

	default: // STRAIGHT_LINE
		monthly := base.Div(decimal.NewFromInt(int64(lifeMonths)))
		result.Monthly = monthly.Round(2)
		result.Accumulated = capAt(monthly.Mul(decimal.NewFromInt(int64(months))), base).Round(2)
	}

	result.BookValue = asset.AcquisitionValue.Sub(result.Accumulated)
	if result.BookValue.LessThan(asset.ResidualValue) {
		result.BookValue = asset.ResidualValue
	}
	result.BookValue = result.BookValue.Round(2)
	return result, nil
}

// Schedule 生成逐月折旧计划表，直到折完为止。
// 产量法没有预定的逐月用量，计划表按直线法口径生成并显式带上回退标记，
// 与 Compute 缺少用量数据时的行为一致。
func (s *depreciationService) Schedule(assetID uint) ([]ScheduleEntry, bool, error) {
	asset, err := s.FindAsset(assetID)
	if err != nil {
		return nil, false, err
	}
	if !s.IsDepreciable(asset) {
		return nil, false, ErrNotDepreciable
	}
	straightLineFallback := *asset.DepreciationMethod == model.DepreciationUnitsOfProd

	lifeMonths := *asset.UsefulLifeYears * 12
	base := asset.AcquisitionValue.Sub(asset.ResidualValue)
	rate := decliningFactor.Div(decimal.NewFromInt(int64(lifeMonths)))
	straightMonthly := base.Div(decimal.NewFromInt(int64(lifeMonths)))

	entries := make([]ScheduleEntry, 0, lifeMonths)
	accumulated := decimal.Zero
	for m := 1; m <= lifeMonths; m++ {
		var monthly decimal.Decimal
		if *asset.DepreciationMethod == model.DepreciationDecliningBalance {
			monthly = asset.AcquisitionValue.Sub(accumulated).Mul(rate)
		} else {
			monthly = straightMonthly
		}
		if accumulated.Add(monthly).GreaterThan(base) {
			monthly = base.Sub(accumulated)
		}
		accumulated = accumulated.Add(monthly)

		period := asset.AcquisitionDate.AddDate(0, m-1, 0)
		entries = append(entries, ScheduleEntry{
			Month:       m,
			Period:      period.Format("2006-01"),
			Amount:      monthly.Round(2),
			Accumulated: accumulated.Round(2),
			BookValue:   asset.AcquisitionValue.Sub(accumulated).Round(2),
		})

		if accumulated.GreaterThanOrEqual(base) {
			break
		}
	}
	return entries, straightLineFallback, nil
}

// RecordMovement 登记资产调拨。
// 关键规则：
// 1. 资产和目标位置都必须存在；reason 必填（审计要求）。
// 2. 审计行追加与位置更新由仓库在一个事务内完成。
func (s *depreciationService) RecordMovement(assetID, toLocationID uint, movementDate time.Time, reason, actor string) (*model.AssetMovement, error) {
	if s.assetRepo == nil || s.nodeRepo == nil {
		return nil, ErrInternal
	}

	reason = strings.TrimSpace(reason)
	if assetID == 0 || toLocationID == 0 || reason == "" {
		return nil, ErrInvalidInput
	}

	if _, err := s.FindAsset(assetID); err != nil {
		return nil, err
	}
	if _, err := s.nodeRepo.FindByID(toLocationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNodeNotFound
		}
		return nil, err
	}

	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = "system"
	}

	movement := &model.AssetMovement{
		AssetID:      assetID,
		ToLocationID: toLocationID,
		MovementDate: movementDate,
		Reason:       reason,
		CreatedBy:    actor,
	}
	if err := s.assetRepo.RecordMovement(movement); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssetNotFound
		}
		return nil, err
	}
	return movement, nil
}

func (s *depreciationService) ListMovements(assetID uint) ([]model.AssetMovement, error) {
	if s.assetRepo == nil {
		return nil, ErrInternal
	}
	if assetID == 0 {
		return nil, ErrInvalidInput
	}
	return s.assetRepo.FindMovements(assetID)
}

// monthsBetween 计算两个日期之间的整月数（向下取整，不为负）。
func monthsBetween(from, to time.Time) int {
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// capAt 把 v 封顶在 limit。
func capAt(v, limit decimal.Decimal) decimal.Decimal {
	if v.GreaterThan(limit) {
		return limit
	}
	return v
}
