package repository

import (
	"fmt"
	"hospital_backoffice_go/internal/model"

	"gorm.io/gorm"
)

// PermissionRepository 定义模块注册表和角色权限的持久化操作接口。
// 角色权限同步是“读出全量 -> 计算最终集 -> 整体替换”的三步，
// 计算在 service 层，整体替换由本层在一个事务内完成。
type PermissionRepository interface {
	FindAllModules() ([]model.AppModule, error)
	FindRolePermissions(roleID uint) ([]string, error)

	// ReplaceRolePermissions 在一个事务内删除角色的全部权限行并写入新集合。
	// 要么整体替换成功，要么保持原状。
	ReplaceRolePermissions(roleID uint, permissions []string) error
}

// permissionRepository 权限仓库实现
type permissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) PermissionRepository {
	return &permissionRepository{db: db}
}

// FindAllModules 按 sort_order 返回全部模块。
// 顺序稳定：权限全集的生成顺序依赖这里的排序。
func (r *permissionRepository) FindAllModules() ([]model.AppModule, error) {
	var modules []model.AppModule
	if err := r.db.Order("sort_order ASC, id ASC").Find(&modules).Error; err != nil {
		return nil, err
	}
	return modules, nil
}

func (r *permissionRepository) FindRolePermissions(roleID uint) ([]string, error) {
	if roleID == 0 {
		return nil, fmt.Errorf("role id is required")
	}

	var rows []model.RolePermission
	if err := r.db.Where("role_id = ?", roleID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	perms := make([]string, 0, len(rows))
	for _, row := range rows {
		perms = append(perms, row.Permission)
	}
	return perms, nil
}

// ReplaceRolePermissions 整体替换角色权限集。
// 删除 + 重建在同一事务内完成，中途失败不会留下半同步状态。
func (r *permissionRepository) ReplaceRolePermissions(roleID uint, permissions []string) error {
	if roleID == 0 {
		return fmt.Errorf("role id is required")
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", roleID).Delete(&model.RolePermission{}).Error; err != nil {
			return err
		}

		if len(permissions) == 0 {
			return nil
		}

		rows := make([]model.RolePermission, 0, len(permissions))
		for _, p := range permissions {
			rows = append(rows, model.RolePermission{RoleID: roleID, Permission: p})
		}
		return tx.Create(&rows).Error
	})
}
