package service

import (
	"fmt"
	"hospital_backoffice_go/internal/model"
	"hospital_backoffice_go/internal/repository"
	"strings"
)

// 每个模块派生的操作后缀，顺序固定。
var moduleActionSuffixes = []string{"view", "create", "edit", "delete"}

// ModuleAccessService 封装模块级授权同步的领域逻辑。
// 同步语义是“全集内整体替换”而不是增量加减：
//   - 模块权限全集内的权限，以调用方本次提交的选择为准，未选中的一律移除
//   - 全集之外的权限（如报表类）不归本系统管理，原样保留
// 因此调用方每次必须提交完整的期望选择。
type ModuleAccessService interface {
	// BuildModulePermissionNames 生成模块权限全集。
	// 顺序稳定：模块按注册顺序，每个模块内按 access/view/create/edit/delete。
	BuildModulePermissionNames(modules []model.AppModule) []string

	ListModules() ([]model.AppModule, error)
	RolePermissions(roleID uint) ([]string, error)

	// SyncModuleAccess 把角色在模块权限全集内的授权整体替换为 selected ∩ 全集，
	// 返回替换后的完整权限集。
	SyncModuleAccess(roleID uint, selected []string) ([]string, error)
}

type moduleAccessService struct {
	permRepo repository.PermissionRepository
}

func NewModuleAccessService(permRepo repository.PermissionRepository) ModuleAccessService {
	return &moduleAccessService{permRepo: permRepo}
}

func (s *moduleAccessService) BuildModulePermissionNames(modules []model.AppModule) []string {
	names := make([]string, 0, len(modules)*(len(moduleActionSuffixes)+1))
	for _, m := range modules {
		key := strings.TrimSpace(m.Key)
		if key == "" {
			continue
		}
		names = append(names, "access "+key)
		for _, suffix := range moduleActionSuffixes {
			names = append(names, fmt.Sprintf("%s.%s", key, suffix))
		}
	}
	return names
}

func (s *moduleAccessService) ListModules() ([]model.AppModule, error) {
	if s.permRepo == nil {
		return nil, ErrInternal
	}
	return s.permRepo.FindAllModules()
}

func (s *moduleAccessService) RolePermissions(roleID uint) ([]string, error) {
	if s.permRepo == nil {
		return nil, ErrInternal
	}
	if roleID == 0 {
		return nil, ErrInvalidInput
	}
	return s.permRepo.FindRolePermissions(roleID)
}

// SyncModuleAccess 同步角色的模块授权。
// 三步：读出当前权限集 -> 计算最终集（保留全集外 + 采纳选中∩全集）-> 整体替换。
// 计算基于落库前刚读出的状态，整体替换由仓库在一个事务内完成。
func (s *moduleAccessService) SyncModuleAccess(roleID uint, selected []string) ([]string, error) {
	if s.permRepo == nil {
		return nil, ErrInternal
	}
	if roleID == 0 {
		return nil, ErrInvalidInput
	}

	modules, err := s.permRepo.FindAllModules()
	if err != nil {
		return nil, err
	}
	universe := make(map[string]struct{})
	for _, name := range s.BuildModulePermissionNames(modules) {
		universe[name] = struct{}{}
	}

	current, err := s.permRepo.FindRolePermissions(roleID)
	if err != nil {
		return nil, err
	}

	// 全集之外的权限保留，顺序维持原样
	final := make([]string, 0, len(current)+len(selected))
	seen := make(map[string]struct{}, len(current)+len(selected))
	for _, p := range current {
		if _, inUniverse := universe[p]; inUniverse {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		final = append(final, p)
	}

	// 选中项只采纳全集内的，按提交顺序去重追加
	for _, p := range selected {
		p = strings.TrimSpace(p)
		if _, inUniverse := universe[p]; !inUniverse {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		final = append(final, p)
	}

	if err := s.permRepo.ReplaceRolePermissions(roleID, final); err != nil {
		return nil, err
	}
	return final, nil
}
