package service

import (
	"errors"
	"fmt"
	"hospital_backoffice_go/internal/model"
	"hospital_backoffice_go/internal/repository"
	"strings"

	"gorm.io/gorm"
)

// HierarchyService 封装组织树（组织单元/成本中心）的领域逻辑。
// 设计目标：
// 1. Handler 不直接操作 Repository，避免协议层混入业务规则。
// 2. 统一错误语义，把底层 gorm/repository 错误转换为 service 哨兵错误。
// 3. 维护树不变量：Level = 父节点 Level + 1（根为 0）；HierarchyPath 是
//    父路径 + "/" + 自身 ID（根为自身 ID）；任何节点不能成为自己的祖先。
type HierarchyService interface {
	Create(code, name, nodeType string, parentID *uint, actor string) (*model.OrganizationNode, error)
	Update(nodeID uint, name, nodeType string, isActive bool, actor string) (*model.OrganizationNode, error)
	// Move 调整节点的父节点，并把新的 level/hierarchy_path 传播到整棵子树。
	Move(nodeID uint, newParentID *uint, actor string) (*model.OrganizationNode, error)
	Delete(nodeID uint) error
	ComputeLevel(parentID *uint) (int, error)
	// ValidateNoCycle 返回 false 表示调整会形成环，调用方应拒绝。
	ValidateNoCycle(nodeID uint, proposedParentID *uint) (bool, error)
	GetTree() ([]*model.OrganizationNodeTree, error)
	FindByID(nodeID uint) (*model.OrganizationNode, error)
	List() ([]model.OrganizationNode, error)
}

type hierarchyService struct {
	nodeRepo repository.OrganizationNodeRepository
}

func NewHierarchyService(nodeRepo repository.OrganizationNodeRepository) HierarchyService {
	return &hierarchyService{nodeRepo: nodeRepo}
}

// ComputeLevel 计算挂在 parentID 下的节点应有的层级。
// parentID 为空表示根节点，层级为 0；父节点不存在返回 ErrNodeNotFound。
func (s *hierarchyService) ComputeLevel(parentID *uint) (int, error) {
	if s.nodeRepo == nil {
		return 0, ErrInternal
	}
	if parentID == nil {
		return 0, nil
	}

	parent, err := s.nodeRepo.FindByID(*parentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNodeNotFound
		}
		return 0, err
	}
	return parent.Level + 1, nil
}

// ValidateNoCycle 从 proposedParentID 沿祖先链向上走，途中遇到 nodeID 即判定成环。
// 步数上限取节点总数：即使存量数据已经损坏成环，也能保证终止。
func (s *hierarchyService) ValidateNoCycle(nodeID uint, proposedParentID *uint) (bool, error) {
	if s.nodeRepo == nil {
		return false, ErrInternal
	}
	if proposedParentID == nil {
		return true, nil
	}
	if *proposedParentID == nodeID {
		return false, nil
	}

	total, err := s.nodeRepo.CountAll()
	if err != nil {
		return false, err
	}

	currentID := *proposedParentID
	for i := int64(0); i <= total; i++ {
		node, err := s.nodeRepo.FindByID(currentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// 祖先链断裂：链上已无 nodeID，不构成环
				return true, nil
			}
			return false, err
		}
		if node.ID == nodeID {
			return false, nil
		}
		if node.ParentID == nil {
			return true, nil
		}
		currentID = *node.ParentID
	}
	// 步数超过节点总数说明存量数据本身已成环，保守拒绝本次调整
	return false, nil
}

// Create 创建组织节点。
// 关键规则：
// 1. code/name/type 必填，且去除首尾空白。
// 2. code 不能重复。
// 3. 指定 parentID 时，父节点必须存在；Level 和 HierarchyPath 按父节点推导。
func (s *hierarchyService) Create(code, name, nodeType string, parentID *uint, actor string) (*model.OrganizationNode, error) {
	if s.nodeRepo == nil {
		return nil, ErrInternal
	}

	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	nodeType = strings.TrimSpace(nodeType)
	if code == "" || name == "" || nodeType == "" {
		return nil, ErrInvalidInput
	}

	// 先检查编码是否已存在，避免数据库唯一键报错直接外泄。
	_, err := s.nodeRepo.FindByCode(code)
	if err == nil {
		return nil, ErrNodeAlreadyExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	level := 0
	parentPath := ""
	if parentID != nil {
		parent, err := s.nodeRepo.FindByID(*parentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNodeNotFound
			}
			return nil, err
		}
		level = parent.Level + 1
		parentPath = parent.HierarchyPath
	}

	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = "system"
	}

	node := &model.OrganizationNode{
		Code:      code,
		Name:      name,
		Type:      nodeType,
		ParentID:  parentID,
		Level:     level,
		IsActive:  true,
		CreatedBy: actor,
		UpdatedBy: actor,
	}
	// 自身 ID 在插入后才生成，路径由仓库在同一事务内补写
	if err := s.nodeRepo.Create(node, parentPath); err != nil {
		return nil, err
	}
	return node, nil
}

// Update 更新节点基础信息（name/type/is_active）。父子关系调整走 Move。
func (s *hierarchyService) Update(nodeID uint, name, nodeType string, isActive bool, actor string) (*model.OrganizationNode, error) {
	if s.nodeRepo == nil {
		return nil, ErrInternal
	}

	name = strings.TrimSpace(name)
	nodeType = strings.TrimSpace(nodeType)
	if nodeID == 0 || name == "" || nodeType == "" {
		return nil, ErrInvalidInput
	}

	node, err := s.FindByID(nodeID)
	if err != nil {
		return nil, err
	}

	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = "system"
	}

	node.Name = name
	node.Type = nodeType
	node.IsActive = isActive
	node.UpdatedBy = actor

	if err := s.nodeRepo.Update(node); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNodeNotFound
		}
		return nil, err
	}
	return node, nil
}

// Move 调整节点的父节点。
// 关键规则：
// 1. 不能把节点挂到自己或自己的后代下（ErrCircularReference）。
// 2. 节点及其整棵子树的 level/hierarchy_path 一并重算，由仓库在一个事务内落库。
// 3. 重算基于落库前重新读取的全量快照，避免乐观并发下的丢失更新。
func (s *hierarchyService) Move(nodeID uint, newParentID *uint, actor string) (*model.OrganizationNode, error) {
	if s.nodeRepo == nil {
		return nil, ErrInternal
	}
	if nodeID == 0 {
		return nil, ErrInvalidInput
	}

	node, err := s.FindByID(nodeID)
	if err != nil {
		return nil, err
	}

	newLevel := 0
	newParentPath := ""
	if newParentID != nil {
		parent, err := s.nodeRepo.FindByID(*newParentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNodeNotFound
			}
			return nil, err
		}
		newLevel = parent.Level + 1
		newParentPath = parent.HierarchyPath
	}

	ok, err := s.ValidateNoCycle(nodeID, newParentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCircularReference
	}

	// 全量快照 + 按父节点分组，自上而下重算整棵受影响子树
	all, err := s.nodeRepo.FindAll()
	if err != nil {
		return nil, err
	}
	childrenByParent := make(map[uint][]*model.OrganizationNode, len(all))
	for i := range all {
		n := &all[i]
		if n.ParentID != nil {
			childrenByParent[*n.ParentID] = append(childrenByParent[*n.ParentID], n)
		}
	}

	updates := make([]repository.PathUpdate, 0, 8)
	var walk func(id uint, level int, path string)
	walk = func(id uint, level int, path string) {
		updates = append(updates, repository.PathUpdate{NodeID: id, Level: level, HierarchyPath: path})
		for _, child := range childrenByParent[id] {
			walk(child.ID, level+1, childPath(path, child.ID))
		}
	}
	walk(nodeID, newLevel, childPath(newParentPath, nodeID))

	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = "system"
	}

	if err := s.nodeRepo.Reparent(nodeID, newParentID, actor, updates); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNodeNotFound
		}
		return nil, err
	}

	node.ParentID = newParentID
	node.Level = newLevel
	node.HierarchyPath = childPath(newParentPath, nodeID)
	node.UpdatedBy = actor
	return node, nil
}

// Delete 执行保护删除。
// 当节点有子节点时返回 ErrNodeHasChildren，提示调用方先处理层级关系。
func (s *hierarchyService) Delete(nodeID uint) error {
	if s.nodeRepo == nil {
		return ErrInternal
	}
	if nodeID == 0 {
		return ErrInvalidInput
	}

	if err := s.nodeRepo.Delete(nodeID); err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return ErrNodeNotFound
		case errors.Is(err, repository.ErrNodeHasChildren):
			return ErrNodeHasChildren
		default:
			return err
		}
	}
	return nil
}

func (s *hierarchyService) List() ([]model.OrganizationNode, error) {
	if s.nodeRepo == nil {
		return nil, ErrInternal
	}
	return s.nodeRepo.FindAll()
}

// GetTree 构建组织树（根节点 + 递归 children）。
// 实现采用两遍扫描：
// 1. 第一遍创建所有节点并放入 map（id -> node）
// 2. 第二遍按 parent 关系把子节点挂到父节点上
func (s *hierarchyService) GetTree() ([]*model.OrganizationNodeTree, error) {
	if s.nodeRepo == nil {
		return nil, ErrInternal
	}

	nodes, err := s.nodeRepo.FindAll()
	if err != nil {
		return nil, err
	}

	byID := make(map[uint]*model.OrganizationNodeTree, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = &model.OrganizationNodeTree{
			ID:            n.ID,
			Code:          n.Code,
			Name:          n.Name,
			Type:          n.Type,
			ParentID:      n.ParentID,
			Level:         n.Level,
			HierarchyPath: n.HierarchyPath,
			IsActive:      n.IsActive,
			Children:      []*model.OrganizationNodeTree{},
		}
	}

	tree := make([]*model.OrganizationNodeTree, 0)
	for _, n := range nodes {
		node := byID[n.ID]
		if n.ParentID != nil {
			if parent, ok := byID[*n.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		// 父节点不存在或为空时，统一作为根节点返回，避免节点丢失。
		tree = append(tree, node)
	}
	return tree, nil
}

func (s *hierarchyService) FindByID(nodeID uint) (*model.OrganizationNode, error) {
	if s.nodeRepo == nil {
		return nil, ErrInternal
	}
	if nodeID == 0 {
		return nil, ErrInvalidInput
	}

	node, err := s.nodeRepo.FindByID(nodeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNodeNotFound
		}
		return nil, err
	}
	if node == nil {
		return nil, ErrNodeNotFound
	}
	return node, nil
}

// childPath 拼接子节点的物化路径：父路径 + "/" + 自身 ID，根节点为自身 ID。
func childPath(parentPath string, id uint) string {
	if parentPath == "" {
		return fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("%s/%d", parentPath, id)
}
