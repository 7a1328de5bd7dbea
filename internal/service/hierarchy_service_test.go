package service

import (
	"errors"
	"testing"

	"hospital_backoffice_go/internal/model"
	"hospital_backoffice_go/internal/repository"

	"gorm.io/gorm"
)

func uintPtr(v uint) *uint {
	return &v
}

type fakeNodeRepo struct {
	createFn       func(node *model.OrganizationNode, parentPath string) error
	findAllFn      func() ([]model.OrganizationNode, error)
	findByIDFn     func(id uint) (*model.OrganizationNode, error)
	findByCodeFn   func(code string) (*model.OrganizationNode, error)
	findByParentFn func(parentID *uint) ([]model.OrganizationNode, error)
	countAllFn     func() (int64, error)
	updateFn       func(node *model.OrganizationNode) error
	reparentFn     func(nodeID uint, newParentID *uint, actor string, updates []repository.PathUpdate) error
	deleteFn       func(nodeID uint) error
}

func (f *fakeNodeRepo) Create(node *model.OrganizationNode, parentPath string) error {
	if f.createFn != nil {
		return f.createFn(node, parentPath)
	}
	return nil
}
func (f *fakeNodeRepo) FindAll() ([]model.OrganizationNode, error) {
	if f.findAllFn != nil {
		return f.findAllFn()
	}
	return []model.OrganizationNode{}, nil
}
func (f *fakeNodeRepo) FindByID(id uint) (*model.OrganizationNode, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(id)
	}
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeNodeRepo) FindByCode(code string) (*model.OrganizationNode, error) {
	if f.findByCodeFn != nil {
		return f.findByCodeFn(code)
	}
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeNodeRepo) FindByParent(parentID *uint) ([]model.OrganizationNode, error) {
	if f.findByParentFn != nil {
		return f.findByParentFn(parentID)
	}
	return []model.OrganizationNode{}, nil
}
func (f *fakeNodeRepo) CountAll() (int64, error) {
	if f.countAllFn != nil {
		return f.countAllFn()
	}
	return 0, nil
}
func (f *fakeNodeRepo) Update(node *model.OrganizationNode) error {
	if f.updateFn != nil {
		return f.updateFn(node)
	}
	return nil
}
func (f *fakeNodeRepo) Reparent(nodeID uint, newParentID *uint, actor string, updates []repository.PathUpdate) error {
	if f.reparentFn != nil {
		return f.reparentFn(nodeID, newParentID, actor, updates)
	}
	return nil
}
func (f *fakeNodeRepo) Delete(nodeID uint) error {
	if f.deleteFn != nil {
		return f.deleteFn(nodeID)
	}
	return nil
}

// nodeMapRepo 用一张内存 map 模拟节点表，祖先链查询直接按 map 读。
func nodeMapRepo(nodes map[uint]*model.OrganizationNode) *fakeNodeRepo {
	return &fakeNodeRepo{
		findByIDFn: func(id uint) (*model.OrganizationNode, error) {
			n, ok := nodes[id]
			if !ok {
				return nil, gorm.ErrRecordNotFound
			}
			cp := *n
			return &cp, nil
		},
		findAllFn: func() ([]model.OrganizationNode, error) {
			all := make([]model.OrganizationNode, 0, len(nodes))
			for _, n := range nodes {
				all = append(all, *n)
			}
			return all, nil
		},
		countAllFn: func() (int64, error) {
			return int64(len(nodes)), nil
		},
	}
}

func TestHierarchyService_Create_Root(t *testing.T) {
	var gotParentPath string
	repo := &fakeNodeRepo{
		createFn: func(node *model.OrganizationNode, parentPath string) error {
			gotParentPath = parentPath
			node.ID = 1
			node.HierarchyPath = "1"
			return nil
		},
	}
	svc := NewHierarchyService(repo)

	node, err := svc.Create("FIN", "Finance", model.NodeTypeDirectorate, nil, "admin")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if node.Level != 0 {
		t.Fatalf("root level should be 0, got %d", node.Level)
	}
	if gotParentPath != "" {
		t.Fatalf("root parent path should be empty, got %q", gotParentPath)
	}
	if node.HierarchyPath != "1" {
		t.Fatalf("root path should be own id, got %q", node.HierarchyPath)
	}
}

func TestHierarchyService_Create_ChildInheritsLevelAndPath(t *testing.T) {
	parent := &model.OrganizationNode{ID: 3, Code: "FIN", Level: 1, HierarchyPath: "1/3"}
	repo := &fakeNodeRepo{
		findByIDFn: func(id uint) (*model.OrganizationNode, error) {
			if id == 3 {
				return parent, nil
			}
			return nil, gorm.ErrRecordNotFound
		},
		createFn: func(node *model.OrganizationNode, parentPath string) error {
			if parentPath != "1/3" {
				t.Fatalf("expect parent path 1/3, got %q", parentPath)
			}
			node.ID = 9
			node.HierarchyPath = parentPath + "/9"
			return nil
		},
	}
	svc := NewHierarchyService(repo)

	node, err := svc.Create("FIN-ACC", "Accounting", model.NodeTypeUnit, uintPtr(3), "admin")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if node.Level != 2 {
		t.Fatalf("child level should be parent+1, got %d", node.Level)
	}
	if node.HierarchyPath != "1/3/9" {
		t.Fatalf("unexpected path: %q", node.HierarchyPath)
	}
}

// 节点插入与路径写入由仓库在同一事务完成：插入失败时不应再有任何后续写入。
func TestHierarchyService_Create_RepoFailureNoFollowUpWrites(t *testing.T) {
	repo := &fakeNodeRepo{
		createFn: func(node *model.OrganizationNode, parentPath string) error {
			return errors.New("connection lost")
		},
		reparentFn: func(nodeID uint, newParentID *uint, actor string, updates []repository.PathUpdate) error {
			t.Fatalf("Reparent should not be called during Create")
			return nil
		},
		updateFn: func(node *model.OrganizationNode) error {
			t.Fatalf("Update should not be called during Create")
			return nil
		},
	}
	svc := NewHierarchyService(repo)

	node, err := svc.Create("FIN", "Finance", model.NodeTypeDirectorate, nil, "admin")
	if err == nil {
		t.Fatalf("expect create error to surface")
	}
	if node != nil {
		t.Fatalf("no node should be returned on failure, got %+v", node)
	}
}

func TestHierarchyService_Create_DuplicateCode(t *testing.T) {
	repo := &fakeNodeRepo{
		findByCodeFn: func(code string) (*model.OrganizationNode, error) {
			return &model.OrganizationNode{ID: 1, Code: code}, nil
		},
	}
	svc := NewHierarchyService(repo)

	_, err := svc.Create("FIN", "Finance", model.NodeTypeDirectorate, nil, "admin")
	if !errors.Is(err, ErrNodeAlreadyExists) {
		t.Fatalf("expect ErrNodeAlreadyExists, got %v", err)
	}
}

func TestHierarchyService_Create_ParentMissing(t *testing.T) {
	svc := NewHierarchyService(&fakeNodeRepo{})

	_, err := svc.Create("FIN", "Finance", model.NodeTypeDirectorate, uintPtr(42), "admin")
	if !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("expect ErrNodeNotFound, got %v", err)
	}
}

func TestHierarchyService_ValidateNoCycle(t *testing.T) {
	// 1 <- 2 <- 3 的链式结构
	nodes := map[uint]*model.OrganizationNode{
		1: {ID: 1, Level: 0, HierarchyPath: "1"},
		2: {ID: 2, ParentID: uintPtr(1), Level: 1, HierarchyPath: "1/2"},
		3: {ID: 3, ParentID: uintPtr(2), Level: 2, HierarchyPath: "1/2/3"},
	}
	svc := NewHierarchyService(nodeMapRepo(nodes))

	cases := []struct {
		name     string
		nodeID   uint
		parentID *uint
		want     bool
	}{
		{"move under own descendant", 1, uintPtr(3), false},
		{"move under self", 2, uintPtr(2), false},
		{"move under sibling branch", 3, uintPtr(1), true},
		{"move to root", 2, nil, true},
	}
	for _, tc := range cases {
		got, err := svc.ValidateNoCycle(tc.nodeID, tc.parentID)
		if err != nil {
			t.Fatalf("%s: error = %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: want %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestHierarchyService_ValidateNoCycle_BrokenChain(t *testing.T) {
	// 2 的父指针指向不存在的 99：链断裂视为无环
	nodes := map[uint]*model.OrganizationNode{
		2: {ID: 2, ParentID: uintPtr(99), Level: 1},
	}
	svc := NewHierarchyService(nodeMapRepo(nodes))

	ok, err := svc.ValidateNoCycle(5, uintPtr(2))
	if err != nil {
		t.Fatalf("ValidateNoCycle() error = %v", err)
	}
	if !ok {
		t.Fatalf("broken ancestor chain should not be treated as a cycle")
	}
}

func TestHierarchyService_Move_RejectsCycle(t *testing.T) {
	nodes := map[uint]*model.OrganizationNode{
		1: {ID: 1, Level: 0, HierarchyPath: "1"},
		2: {ID: 2, ParentID: uintPtr(1), Level: 1, HierarchyPath: "1/2"},
	}
	svc := NewHierarchyService(nodeMapRepo(nodes))

	_, err := svc.Move(1, uintPtr(2), "admin")
	if !errors.Is(err, ErrCircularReference) {
		t.Fatalf("expect ErrCircularReference, got %v", err)
	}
}

func TestHierarchyService_Move_PropagatesSubtreePaths(t *testing.T) {
	nodes := map[uint]*model.OrganizationNode{
		1: {ID: 1, Level: 0, HierarchyPath: "1"},
		2: {ID: 2, ParentID: uintPtr(1), Level: 1, HierarchyPath: "1/2"},
		3: {ID: 3, ParentID: uintPtr(2), Level: 2, HierarchyPath: "1/2/3"},
	}
	repo := nodeMapRepo(nodes)

	var gotParent *uint
	var gotActor string
	var gotUpdates []repository.PathUpdate
	repo.reparentFn = func(nodeID uint, newParentID *uint, actor string, updates []repository.PathUpdate) error {
		gotParent = newParentID
		gotActor = actor
		gotUpdates = updates
		return nil
	}
	svc := NewHierarchyService(repo)

	node, err := svc.Move(2, nil, "admin")
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if gotParent != nil {
		t.Fatalf("new parent should be nil (root), got %v", gotParent)
	}
	if gotActor != "admin" {
		t.Fatalf("reparent should carry the acting user, got %q", gotActor)
	}
	if node.Level != 0 || node.HierarchyPath != "2" {
		t.Fatalf("moved node not rebased: level=%d path=%q", node.Level, node.HierarchyPath)
	}
	if node.UpdatedBy != "admin" {
		t.Fatalf("moved node should be stamped with the acting user, got %q", node.UpdatedBy)
	}

	want := map[uint]repository.PathUpdate{
		2: {NodeID: 2, Level: 0, HierarchyPath: "2"},
		3: {NodeID: 3, Level: 1, HierarchyPath: "2/3"},
	}
	if len(gotUpdates) != len(want) {
		t.Fatalf("expect %d path updates, got %+v", len(want), gotUpdates)
	}
	for _, u := range gotUpdates {
		w, ok := want[u.NodeID]
		if !ok || u != w {
			t.Fatalf("unexpected path update %+v, want %+v", u, w)
		}
	}
}

func TestHierarchyService_Delete_HasChildrenMapped(t *testing.T) {
	repo := &fakeNodeRepo{
		deleteFn: func(nodeID uint) error {
			return repository.ErrNodeHasChildren
		},
	}
	svc := NewHierarchyService(repo)

	err := svc.Delete(1)
	if !errors.Is(err, ErrNodeHasChildren) {
		t.Fatalf("expect ErrNodeHasChildren, got %v", err)
	}
}

func TestHierarchyService_Delete_NotFoundMapped(t *testing.T) {
	repo := &fakeNodeRepo{
		deleteFn: func(nodeID uint) error {
			return gorm.ErrRecordNotFound
		},
	}
	svc := NewHierarchyService(repo)

	err := svc.Delete(42)
	if !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("expect ErrNodeNotFound, got %v", err)
	}
}

// TestHierarchyService_GetTree_OrphanAsRoot 验证 GetTree 的边界行为：
// 1. 正常父子关系应正确挂载到 children。
// 2. 父节点缺失（孤儿节点）不应丢失，应作为根节点返回。
func TestHierarchyService_GetTree_OrphanAsRoot(t *testing.T) {
	repo := &fakeNodeRepo{
		findAllFn: func() ([]model.OrganizationNode, error) {
			return []model.OrganizationNode{
				{ID: 1, Code: "root", Name: "Root"},
				{ID: 2, Code: "child", Name: "Child", ParentID: uintPtr(1)},
				{ID: 3, Code: "orphan", Name: "Orphan", ParentID: uintPtr(99)},
			}, nil
		},
	}
	svc := NewHierarchyService(repo)

	tree, err := svc.GetTree()
	if err != nil {
		t.Fatalf("GetTree() error = %v", err)
	}
	if len(tree) != 2 {
		t.Fatalf("expect 2 root nodes (root + orphan), got %d", len(tree))
	}

	var rootNode *model.OrganizationNodeTree
	var orphanNode *model.OrganizationNodeTree
	for _, n := range tree {
		switch n.Code {
		case "root":
			rootNode = n
		case "orphan":
			orphanNode = n
		}
	}

	if rootNode == nil {
		t.Fatalf("root node not found in tree: %+v", tree)
	}
	if len(rootNode.Children) != 1 || rootNode.Children[0].Code != "child" {
		t.Fatalf("unexpected root children: %+v", rootNode.Children)
	}
	if orphanNode == nil {
		t.Fatalf("orphan node should be kept as root, tree=%+v", tree)
	}
	if len(orphanNode.Children) != 0 {
		t.Fatalf("orphan node should not have children, got %+v", orphanNode.Children)
	}
}

func TestHierarchyService_GetTree_RepoError(t *testing.T) {
	repo := &fakeNodeRepo{
		findAllFn: func() ([]model.OrganizationNode, error) {
			return nil, errors.New("db down")
		},
	}
	svc := NewHierarchyService(repo)

	_, err := svc.GetTree()
	if err == nil {
		t.Fatalf("expect error, got nil")
	}
}
