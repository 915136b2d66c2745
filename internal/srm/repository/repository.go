package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrModified 条件更新未命中：记录在读取之后被其他请求修改
	ErrModified = errors.New("record modified since read")
)

// Repositories 资格评估仓库集合
type Repositories struct {
	db          *gorm.DB
	Supplier    *SupplierRepository
	ActivityLog *ActivityLogRepository
	Evaluation  *EvaluationRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:          db,
		Supplier:    NewSupplierRepository(db),
		ActivityLog: NewActivityLogRepository(db),
		Evaluation:  NewEvaluationRepository(db),
	}
}

// Transaction 在同一事务中执行 fn，fn 内只能使用传入的仓库集合
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

// NewID 32位无连字符ID
func NewID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
