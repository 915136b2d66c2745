package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-qualify/internal/srm/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EvaluationRepository 资格评估仓库
type EvaluationRepository struct {
	db *gorm.DB
}

func NewEvaluationRepository(db *gorm.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

// EvaluationFilter 评估列表筛选条件
type EvaluationFilter struct {
	Status      string
	SupplierID  string
	TenderID    string
	EvaluatorID string
	// OverdueAt 非零时只返回在该时刻已逾期的进行中评估
	OverdueAt time.Time
}

func (r *EvaluationRepository) filtered(ctx context.Context, f EvaluationFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&entity.Evaluation{})

	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.SupplierID != "" {
		query = query.Where("supplier_id = ?", f.SupplierID)
	}
	if f.TenderID != "" {
		query = query.Where("tender_id = ?", f.TenderID)
	}
	if f.EvaluatorID != "" {
		query = query.Where("evaluator_id = ?", f.EvaluatorID)
	}
	if !f.OverdueAt.IsZero() {
		query = query.Where("status IN ? AND evaluation_deadline < ?", entity.ActiveStatuses, f.OverdueAt.UTC())
	}
	return query
}

// FindAll 查询评估列表
func (r *EvaluationRepository) FindAll(ctx context.Context, page, pageSize int, f EvaluationFilter) ([]entity.Evaluation, int64, error) {
	var items []entity.Evaluation
	var total int64

	query := r.filtered(ctx, f)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Supplier").
		Order("evaluation_deadline ASC").
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindEach 按条件分批遍历全部评估（导出用），按主键顺序
func (r *EvaluationRepository) FindEach(ctx context.Context, f EvaluationFilter, batch int, fn func([]entity.Evaluation) error) error {
	var items []entity.Evaluation
	res := r.filtered(ctx, f).
		Preload("Supplier").
		FindInBatches(&items, batch, func(tx *gorm.DB, _ int) error {
			return fn(items)
		})
	return res.Error
}

// FindByID 根据ID查找评估
func (r *EvaluationRepository) FindByID(ctx context.Context, id string) (*entity.Evaluation, error) {
	var eval entity.Evaluation
	err := r.db.WithContext(ctx).
		Preload("Supplier").
		Where("id = ?", id).
		First(&eval).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &eval, nil
}

// FindByIDForUpdate 加行锁读取，必须在事务中调用
func (r *EvaluationRepository) FindByIDForUpdate(ctx context.Context, id string) (*entity.Evaluation, error) {
	var eval entity.Evaluation
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&eval).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &eval, nil
}

// Create 创建评估
func (r *EvaluationRepository) Create(ctx context.Context, eval *entity.Evaluation) error {
	if eval.ID == "" {
		eval.ID = NewID()
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(eval).Error
}

// UpdateIfUnmodified 仅当 last_modified 仍等于 prev 时整行写回。
// overdue_since 由逾期扫描独占写入（不改 last_modified），这里不覆盖；清除走 ClearOverdueSince。
// 未命中时区分记录不存在 (ErrNotFound) 与并发修改 (ErrModified)。
func (r *EvaluationRepository) UpdateIfUnmodified(ctx context.Context, eval *entity.Evaluation, prev time.Time) error {
	res := r.db.WithContext(ctx).
		Model(eval).
		Where("last_modified = ?", prev.UTC()).
		Select("*").
		Omit("id", "created_at", "created_by", "overdue_since", clause.Associations).
		Updates(eval)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&entity.Evaluation{}).Where("id = ?", eval.ID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrModified
}

// FindOverdueCandidates 已过截止时间但尚未标记逾期的进行中评估ID
func (r *EvaluationRepository) FindOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&entity.Evaluation{}).
		Where("status IN ? AND evaluation_deadline < ? AND overdue_since IS NULL", entity.ActiveStatuses, now.UTC()).
		Order("evaluation_deadline ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// SetOverdueSince 只在首次逾期时写入，不修改 last_modified
func (r *EvaluationRepository) SetOverdueSince(ctx context.Context, id string, since time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&entity.Evaluation{}).
		Where("id = ? AND overdue_since IS NULL", id).
		UpdateColumn("overdue_since", since.UTC())
	return res.RowsAffected > 0, res.Error
}

// ClearOverdueSince 结论给出后清除逾期标记
func (r *EvaluationRepository) ClearOverdueSince(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&entity.Evaluation{}).
		Where("id = ?", id).
		UpdateColumn("overdue_since", gorm.Expr("NULL")).Error
}

// FindBySupplier 查询某供应商的评估历史
func (r *EvaluationRepository) FindBySupplier(ctx context.Context, supplierID string) ([]entity.Evaluation, error) {
	var items []entity.Evaluation
	err := r.db.WithContext(ctx).
		Where("supplier_id = ?", supplierID).
		Order("created_at DESC").
		Find(&items).Error
	return items, err
}

// CountByStatus 按状态统计评估数量
func (r *EvaluationRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&entity.Evaluation{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// CountOverdue 统计在 now 时刻已逾期的进行中评估
func (r *EvaluationRepository) CountOverdue(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := r.filtered(ctx, EvaluationFilter{OverdueAt: now}).Count(&count).Error
	return count, err
}
