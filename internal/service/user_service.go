package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hospital_backoffice_go/internal/model"
	"hospital_backoffice_go/internal/repository"
	"hospital_backoffice_go/pkg/database"
	"hospital_backoffice_go/pkg/hash"
	"hospital_backoffice_go/pkg/log"
	"hospital_backoffice_go/pkg/token"

	"gorm.io/gorm"
)

// 哨兵错误：对外统一语义，隐藏底层实现细节
var (
	// ErrInvalidCredentials 用户名或密码错误（登录时统一返回，防止用户枚举）
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUserNotFound 用户不存在（仅用于非登录场景，如 GetProfile）
	ErrUserNotFound = errors.New("user not found")
	// ErrUserAlreadyExists 用户已存在（注册时）
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrInternal 内部错误（对外不暴露细节）
	ErrInternal = errors.New("internal server error")
)

// tokenBlacklistPrefix 与 AuthMiddleware 的黑名单检查使用同一前缀。
const tokenBlacklistPrefix = "token_blacklist:"

type UserService interface {
	Register(username, password string) (*model.User, error)
	Login(username, password string) (accessToken, refreshToken string, err error)
	// Logout 把 access token 放进 Redis 黑名单，有效期与 token 剩余寿命一致。
	Logout(tokenString string) error
	GetProfile(username string) (*model.User, error)
	ListUsers(page, size int) ([]model.User, int64, error)
	// AssignCostCenter 把用户挂到某个成本中心（组织节点），传 nil 表示取消归属。
	AssignCostCenter(userID uint, costCenterID *uint) error
}

type userService struct {
	userRepo   repository.UserRepository
	nodeRepo   repository.OrganizationNodeRepository
	JWTManager *token.JWTManager
}

func NewUserService(userRepo repository.UserRepository, nodeRepo repository.OrganizationNodeRepository,
	jwtManager *token.JWTManager) UserService {
	return &userService{
		userRepo:   userRepo,
		nodeRepo:   nodeRepo,
		JWTManager: jwtManager,
	}
}

func (s *userService) Register(username, password string) (*model.User, error) {
	// 1. 检查用户是否存在
	existingUser, err := s.userRepo.FindByUsername(username)
	if err != nil {
		// 查无记录是正常分支，继续注册
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	} else if existingUser != nil {
		return nil, ErrUserAlreadyExists
	}

	// 2. 密码进行哈希
	hashedPassword, err := hash.HashPassword(password)
	if err != nil {
		// 哈希失败是异常分支，直接返回错误
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// 3. 创建新用户
	newUser := &model.User{
		Username: username,
		Password: hashedPassword,
		Role:     "USER",
	}

	// 4. 用户存入数据库生成id
	err = s.userRepo.Create(newUser)
	if err != nil {
		return nil, err
	}

	return newUser, nil
}

func (s *userService) Login(username, password string) (accessToken, refreshToken string, err error) {
	if s.JWTManager == nil {
		return "", "", ErrInternal
	}
	// 1. 检查用户是否存在
	existingUser, err := s.userRepo.FindByUsername(username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 用户不存在，返回统一的凭证错误，防止用户枚举
			return "", "", ErrInvalidCredentials
		}
		// 真正的数据库错误：记日志，对外返回通用错误
		log.Errorf("Login: failed to query user %q: %v", username, err)
		return "", "", ErrInternal
	}
	if existingUser == nil {
		// 用户不存在，返回统一的凭证错误，防止用户枚举
		return "", "", ErrInvalidCredentials
	}

	// 2. 检查密码是否正确
	if !hash.CheckPasswordHash(password, existingUser.Password) {
		// 密码错误，返回与"用户不存在"相同的错误，防止用户枚举
		return "", "", ErrInvalidCredentials
	}

	// 3. 生成JWT令牌（使用数据库中的 Username，避免大小写/规范化不一致）
	accessToken, refreshToken, err = s.JWTManager.GenerateToken(existingUser.ID, existingUser.Username, existingUser.Role)
	if err != nil {
		log.Errorf("Login: failed to generate token for user %q: %v", existingUser.Username, err)
		return "", "", ErrInternal
	}
	return accessToken, refreshToken, nil
}

// Logout 把 token 写进 Redis 黑名单。
// 黑名单 TTL 取 token 的剩余寿命：token 自然过期后黑名单条目也无意义，让它同时消失。
// 无效/已过期的 token 视为登出成功（幂等）。
func (s *userService) Logout(tokenString string) error {
	if s.JWTManager == nil || database.RDB == nil {
		return ErrInternal
	}

	claims, err := s.JWTManager.VerifyToken(tokenString)
	if err != nil || claims == nil || claims.ExpiresAt == nil {
		return nil
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}

	key := tokenBlacklistPrefix + tokenString
	if err := database.RDB.Set(context.Background(), key, "1", ttl).Err(); err != nil {
		log.Errorf("Logout: failed to blacklist token: %v", err)
		return ErrInternal
	}
	return nil
}

func (s *userService) GetProfile(username string) (*model.User, error) {
	user, err := s.userRepo.FindByUsername(username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		// 真正的数据库错误：记日志，对外返回通用错误
		log.Errorf("GetProfile: failed to query user %q: %v", username, err)
		return nil, ErrInternal
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *userService) ListUsers(page, size int) ([]model.User, int64, error) {
	if page <= 0 || size <= 0 {
		return nil, 0, ErrInvalidInput
	}
	return s.userRepo.FindWithPagination((page-1)*size, size)
}

// AssignCostCenter 把用户挂到成本中心。
// costCenterID 非空时必须指向已存在的组织节点。
func (s *userService) AssignCostCenter(userID uint, costCenterID *uint) error {
	if s.nodeRepo == nil {
		return ErrInternal
	}
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if costCenterID != nil {
		if _, err := s.nodeRepo.FindByID(*costCenterID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNodeNotFound
			}
			return err
		}
	}

	user.CostCenterID = costCenterID
	if err := s.userRepo.Update(user); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}
