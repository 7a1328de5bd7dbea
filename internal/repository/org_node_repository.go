package repository

import (
	"errors"
	"fmt"
	"hospital_backoffice_go/internal/model"

	"gorm.io/gorm"
)

var (
	// ErrNodeHasChildren 表示节点下仍有子节点，禁止直接删除。
	ErrNodeHasChildren = errors.New("organization node has children")
)

// PathUpdate 是一次层级调整中单个节点的路径/层级更新。
// HierarchyService 计算出整棵受影响子树的更新集后，由仓库在一个事务内落库。
type PathUpdate struct {
	NodeID        uint
	Level         int
	HierarchyPath string
}

// OrganizationNodeRepository 定义组织节点的持久化操作接口。
// 组织节点是树形结构，通过 ParentID 实现父子关系，
// Level/HierarchyPath 的一致性由 service 层负责计算、本层负责原子落库。
type OrganizationNodeRepository interface {
	// Create 在一个事务内插入节点并回填 hierarchy_path
	// （父路径 + "/" + 自身 ID，根节点为自身 ID）。
	// 节点与路径要么一起落库，要么整体回滚。
	Create(node *model.OrganizationNode, parentPath string) error
	FindAll() ([]model.OrganizationNode, error)
	FindByID(id uint) (*model.OrganizationNode, error)
	FindByCode(code string) (*model.OrganizationNode, error)
	FindByParent(parentID *uint) ([]model.OrganizationNode, error)
	CountAll() (int64, error)

	// Update 更新节点基础信息（name, type, is_active, updated_by）。
	// 父子关系调整不走本方法，必须走 Reparent 以保证路径一致性。
	Update(node *model.OrganizationNode) error

	// Reparent 在一个事务内更新节点的 parent_id 和 updated_by，并应用
	// 整棵受影响子树的 level/hierarchy_path 更新集。要么全部成功，要么保持原状。
	Reparent(nodeID uint, newParentID *uint, actor string, updates []PathUpdate) error

	// Delete 保护删除：有子节点则返回 ErrNodeHasChildren。
	// 使用事务保证“检查子节点 + 删除”的原子性。
	Delete(nodeID uint) error
}

// organizationNodeRepository 组织节点仓库实现
type organizationNodeRepository struct {
	db *gorm.DB
}

func NewOrganizationNodeRepository(db *gorm.DB) OrganizationNodeRepository {
	return &organizationNodeRepository{db: db}
}

// Create 在事务中先插入节点，再用数据库生成的自身 ID 补写物化路径。
// 路径补写失败时整体回滚，不会留下 hierarchy_path 为空的节点。
func (r *organizationNodeRepository) Create(node *model.OrganizationNode, parentPath string) error {
	if node == nil {
		return fmt.Errorf("node is nil")
	}
	if node.Code == "" {
		return fmt.Errorf("node code is required")
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(node).Error; err != nil {
			return err
		}

		path := fmt.Sprintf("%d", node.ID)
		if parentPath != "" {
			path = fmt.Sprintf("%s/%d", parentPath, node.ID)
		}
		if err := tx.Model(&model.OrganizationNode{}).
			Where("id = ?", node.ID).
			Update("hierarchy_path", path).Error; err != nil {
			return err
		}

		node.HierarchyPath = path
		return nil
	})
}

func (r *organizationNodeRepository) FindAll() ([]model.OrganizationNode, error) {
	var nodes []model.OrganizationNode
	if err := r.db.Order("id ASC").Find(&nodes).Error; err != nil {
		return nil, err
	}
	return nodes, nil
}

func (r *organizationNodeRepository) FindByID(id uint) (*model.OrganizationNode, error) {
	if id == 0 {
		return nil, fmt.Errorf("node id is required")
	}

	var node model.OrganizationNode
	if err := r.db.Where("id = ?", id).First(&node).Error; err != nil {
		return nil, err
	}
	return &node, nil
}

func (r *organizationNodeRepository) FindByCode(code string) (*model.OrganizationNode, error) {
	if code == "" {
		return nil, fmt.Errorf("node code is required")
	}

	var node model.OrganizationNode
	if err := r.db.Where("code = ?", code).First(&node).Error; err != nil {
		return nil, err
	}
	return &node, nil
}

func (r *organizationNodeRepository) FindByParent(parentID *uint) ([]model.OrganizationNode, error) {
	var nodes []model.OrganizationNode

	tx := r.db.Order("id ASC")
	if parentID == nil {
		tx = tx.Where("parent_id IS NULL")
	} else {
		tx = tx.Where("parent_id = ?", *parentID)
	}

	if err := tx.Find(&nodes).Error; err != nil {
		return nil, err
	}
	return nodes, nil
}

func (r *organizationNodeRepository) CountAll() (int64, error) {
	var count int64
	if err := r.db.Model(&model.OrganizationNode{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Update 更新节点的 name、type、is_active、updated_by 字段。
// 使用 Select 限定只更新这四个字段，避免零值覆盖 level/hierarchy_path。
// 如果 ID 不存在，返回 gorm.ErrRecordNotFound。
func (r *organizationNodeRepository) Update(node *model.OrganizationNode) error {
	if node == nil {
		return fmt.Errorf("organization node is nil")
	}
	if node.ID == 0 {
		return fmt.Errorf("node id is required")
	}

	tx := r.db.Model(&model.OrganizationNode{}).
		Where("id = ?", node.ID).
		Select("name", "type", "is_active", "updated_by").
		Updates(node)

	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Reparent 在事务中先改父指针，再逐条应用子树的 level/path 更新。
// 调用方视角下整棵子树的路径传播是原子的：任何一步失败都整体回滚。
func (r *organizationNodeRepository) Reparent(nodeID uint, newParentID *uint, actor string, updates []PathUpdate) error {
	if nodeID == 0 {
		return fmt.Errorf("node id is required")
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.OrganizationNode{}).
			Where("id = ?", nodeID).
			Updates(map[string]interface{}{
				"parent_id":  newParentID,
				"updated_by": actor,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		for _, u := range updates {
			if err := tx.Model(&model.OrganizationNode{}).
				Where("id = ?", u.NodeID).
				Updates(map[string]interface{}{
					"level":          u.Level,
					"hierarchy_path": u.HierarchyPath,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete 保护删除：在事务中先确认记录存在、再检查是否有子节点、最后执行删除。
// 有子节点时返回 ErrNodeHasChildren，调用方可据此提示用户先处理子节点。
func (r *organizationNodeRepository) Delete(nodeID uint) error {
	if nodeID == 0 {
		return fmt.Errorf("node id is required")
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		var current model.OrganizationNode
		if err := tx.Where("id = ?", nodeID).First(&current).Error; err != nil {
			return err
		}

		var childCount int64
		if err := tx.Model(&model.OrganizationNode{}).
			Where("parent_id = ?", nodeID).
			Count(&childCount).Error; err != nil {
			return err
		}
		if childCount > 0 {
			return ErrNodeHasChildren
		}

		res := tx.Where("id = ?", nodeID).Delete(&model.OrganizationNode{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
