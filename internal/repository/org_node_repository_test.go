package repository

import (
	"errors"
	"testing"

	"hospital_backoffice_go/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func newNodeMockRepo(t *testing.T) (OrganizationNodeRepository, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open() error: %v", err)
	}

	return NewOrganizationNodeRepository(gdb), mock
}

func nodeRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "code", "name", "type", "parent_id", "level", "hierarchy_path", "is_active",
	}).AddRow(1, "FIN", "Finance", model.NodeTypeDirectorate, nil, 0, "1", true)
}

func TestOrganizationNodeRepository_Create(t *testing.T) {
	repo, mock := newNodeMockRepo(t)

	node := &model.OrganizationNode{Code: "FIN", Name: "Finance", Type: model.NodeTypeDirectorate}
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `organization_nodes`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE `organization_nodes` SET `hierarchy_path`=\\? WHERE id = \\?").
		WithArgs("1", uint(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.Create(node, ""); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if node.HierarchyPath != "1" {
		t.Fatalf("root path should be own id, got %q", node.HierarchyPath)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrganizationNodeRepository_Create_Child(t *testing.T) {
	repo, mock := newNodeMockRepo(t)

	node := &model.OrganizationNode{Code: "FIN-ACC", Name: "Accounting", Type: model.NodeTypeUnit}
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `organization_nodes`").WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectExec("UPDATE `organization_nodes` SET `hierarchy_path`=\\? WHERE id = \\?").
		WithArgs("1/3/9", uint(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.Create(node, "1/3"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if node.HierarchyPath != "1/3/9" {
		t.Fatalf("unexpected path: %q", node.HierarchyPath)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// 路径补写失败时整个事务回滚，不会留下 hierarchy_path 为空的已提交节点。
func TestOrganizationNodeRepository_Create_PathWriteFailureRollsBack(t *testing.T) {
	repo, mock := newNodeMockRepo(t)

	node := &model.OrganizationNode{Code: "FIN", Name: "Finance", Type: model.NodeTypeDirectorate}
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `organization_nodes`").WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectExec("UPDATE `organization_nodes` SET `hierarchy_path`=\\? WHERE id = \\?").
		WillReturnError(errors.New("connection lost"))
	mock.ExpectRollback()

	if err := repo.Create(node, ""); err == nil {
		t.Fatal("expected error when path write fails, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrganizationNodeRepository_Create_EmptyCode(t *testing.T) {
	repo, _ := newNodeMockRepo(t)

	if err := repo.Create(&model.OrganizationNode{Name: "Finance"}, ""); err == nil {
		t.Fatal("expected error for empty code, got nil")
	}
}

func TestOrganizationNodeRepository_FindByID(t *testing.T) {
	repo, mock := newNodeMockRepo(t)

	mock.ExpectQuery("SELECT .* FROM `organization_nodes` WHERE id = \\? ORDER BY .* LIMIT \\?").
		WithArgs(uint(1), 1).
		WillReturnRows(nodeRows())

	node, err := repo.FindByID(1)
	if err != nil {
		t.Fatalf("FindByID() error: %v", err)
	}
	if node == nil || node.Code != "FIN" {
		t.Fatalf("unexpected node: %+v", node)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrganizationNodeRepository_FindByParent_Root(t *testing.T) {
	repo, mock := newNodeMockRepo(t)

	// parentID 为 nil 时查询根节点（parent_id IS NULL）
	mock.ExpectQuery("SELECT .* FROM `organization_nodes` WHERE parent_id IS NULL ORDER BY id ASC").
		WillReturnRows(nodeRows())

	nodes, err := repo.FindByParent(nil)
	if err != nil {
		t.Fatalf("FindByParent() error: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1 root node, got %d", len(nodes))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrganizationNodeRepository_Update_RowsAffectedZero(t *testing.T) {
	repo, mock := newNodeMockRepo(t)

	node := &model.OrganizationNode{ID: 99, Name: "Renamed", Type: model.NodeTypeDepartment}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `organization_nodes` SET .* WHERE id = \\?").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.Update(node)
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got: %v", err)
	}
}

func TestOrganizationNodeRepository_Reparent(t *testing.T) {
	repo, mock := newNodeMockRepo(t)

	newParent := uint(1)
	updates := []PathUpdate{
		{NodeID: 2, Level: 1, HierarchyPath: "1/2"},
		{NodeID: 3, Level: 2, HierarchyPath: "1/2/3"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `organization_nodes` SET .*parent_id.* WHERE id = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `organization_nodes` SET .* WHERE id = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `organization_nodes` SET .* WHERE id = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.Reparent(2, &newParent, "admin", updates); err != nil {
		t.Fatalf("Reparent() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrganizationNodeRepository_Reparent_NodeMissing(t *testing.T) {
	repo, mock := newNodeMockRepo(t)

	// 父指针更新命中 0 行：整个事务回滚，子树更新不会执行
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `organization_nodes` SET .*parent_id.* WHERE id = \\?").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Reparent(99, nil, "admin", []PathUpdate{{NodeID: 100, Level: 0, HierarchyPath: "100"}})
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrganizationNodeRepository_Delete_HasChildren(t *testing.T) {
	repo, mock := newNodeMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM `organization_nodes` WHERE id = \\? ORDER BY .* LIMIT \\?").
		WithArgs(uint(1), 1).
		WillReturnRows(nodeRows())
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `organization_nodes` WHERE parent_id = \\?").
		WithArgs(uint(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(2))
	mock.ExpectRollback()

	err := repo.Delete(1)
	if !errors.Is(err, ErrNodeHasChildren) {
		t.Fatalf("expected ErrNodeHasChildren, got: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrganizationNodeRepository_Delete_Success(t *testing.T) {
	repo, mock := newNodeMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM `organization_nodes` WHERE id = \\? ORDER BY .* LIMIT \\?").
		WithArgs(uint(1), 1).
		WillReturnRows(nodeRows())
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `organization_nodes` WHERE parent_id = \\?").
		WithArgs(uint(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(0))
	mock.ExpectExec("DELETE FROM `organization_nodes` WHERE id = \\?").
		WithArgs(uint(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.Delete(1); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
