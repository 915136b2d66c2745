package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bitfantasy/nimo-qualify/internal/srm/entity"
	"github.com/bitfantasy/nimo-qualify/internal/srm/repository"
	"github.com/bitfantasy/nimo-qualify/internal/srm/scoring"
	"github.com/bitfantasy/nimo-qualify/internal/srm/workflow"
)

// DefaultEvaluationWindow 未指定截止时间时的评估周期
const DefaultEvaluationWindow = 14 * 24 * time.Hour

// EvaluationService 资格评估服务
type EvaluationService struct {
	repos     *repository.Repositories
	catalogs  *scoring.Registry
	machine   *workflow.Machine
	publisher *Publisher
	archiver  Archiver
	window    time.Duration
	logger    *zap.Logger
}

func NewEvaluationService(repos *repository.Repositories, catalogs *scoring.Registry, machine *workflow.Machine, publisher *Publisher, logger *zap.Logger) *EvaluationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = NewPublisher(logger)
	}
	return &EvaluationService{
		repos:     repos,
		catalogs:  catalogs,
		machine:   machine,
		publisher: publisher,
		window:    DefaultEvaluationWindow,
		logger:    logger,
	}
}

// SetArchiver 完成的评估归档到对象存储
func (s *EvaluationService) SetArchiver(a Archiver) {
	s.archiver = a
}

// SetEvaluationWindow 默认截止时间 = 分配时间 + window
func (s *EvaluationService) SetEvaluationWindow(d time.Duration) {
	if d > 0 {
		s.window = d
	}
}

// AssignRequest 分配评估请求
type AssignRequest struct {
	TenderID    string     `json:"tender_id" binding:"required"`
	SupplierID  string     `json:"supplier_id" binding:"required"`
	EvaluatorID string     `json:"evaluator_id" binding:"required"`
	CatalogID   string     `json:"catalog_id"`
	Deadline    *time.Time `json:"deadline"`
}

// SaveDraftRequest 保存草稿请求
type SaveDraftRequest struct {
	CategoryInputs scoring.Inputs `json:"category_inputs" binding:"required"`
	LastModified   *time.Time     `json:"last_modified" binding:"required"`
}

// SubmitRequest 提交请求
type SubmitRequest struct {
	Override     bool       `json:"override"`
	LastModified *time.Time `json:"last_modified" binding:"required"`
}

// AIScoreRequest AI评分回写请求
type AIScoreRequest struct {
	AIScore      *float64   `json:"ai_score" binding:"required"`
	Confidence   *float64   `json:"confidence" binding:"required"`
	LastModified *time.Time `json:"last_modified"`
}

// ReviewRequest 管理员操作（开始复核/二次复核）
type ReviewRequest struct {
	Notes        string     `json:"notes"`
	LastModified *time.Time `json:"last_modified"`
}

// ReturnRequest 退回请求
type ReturnRequest struct {
	ReasonCode   string     `json:"reason_code" binding:"required"`
	Notes        string     `json:"notes"`
	LastModified *time.Time `json:"last_modified"`
}

// FinalizeRequest 结论请求
type FinalizeRequest struct {
	Decision     string     `json:"decision" binding:"required"`
	Notes        string     `json:"notes"`
	LastModified *time.Time `json:"last_modified"`
}

// ListFilter 列表筛选
type ListFilter struct {
	Status      string
	SupplierID  string
	TenderID    string
	EvaluatorID string
	Overdue     bool
}

// Stats 监督看板统计
type Stats struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
	Overdue  int64            `json:"overdue"`
}

// Assign 为供应商分配一份草稿评估
func (s *EvaluationService) Assign(ctx context.Context, actorID string, req *AssignRequest) (*EvaluationView, error) {
	cat, err := s.catalogs.Get(req.CatalogID)
	if err != nil {
		return nil, err
	}
	now := s.machine.Now()
	deadline := now.Add(s.window)
	if req.Deadline != nil {
		deadline = req.Deadline.UTC().Truncate(time.Microsecond)
		if !deadline.After(now) {
			return nil, fmt.Errorf("%w: deadline must be in the future", ErrInvalidRequest)
		}
	}

	rec := &entity.Evaluation{
		ID:                 repository.NewID(),
		TenderID:           req.TenderID,
		SupplierID:         req.SupplierID,
		EvaluatorID:        req.EvaluatorID,
		CatalogID:          cat.ID,
		CatalogVersion:     cat.Version,
		CategoryInputs:     scoring.Inputs{},
		Status:             entity.EvalStatusDraft,
		EvaluationDeadline: deadline,
		LastModified:       now,
		CreatedBy:          actorID,
	}

	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		sup, err := tx.Supplier.FindByID(ctx, req.SupplierID)
		if err != nil {
			return fmt.Errorf("supplier %s: %w", req.SupplierID, err)
		}
		if err := tx.Evaluation.Create(ctx, rec); err != nil {
			return err
		}
		rec.Supplier = sup
		return tx.ActivityLog.Create(ctx, &entity.ActivityLog{
			EntityType: entity.ActivityEntityEvaluation,
			EntityID:   rec.ID,
			Action:     entity.ActionAssign,
			ToStatus:   rec.Status,
			Content:    fmt.Sprintf("分配评估人 %s", rec.EvaluatorID),
			Metadata: entity.JSONB{
				"tender_id":           rec.TenderID,
				"catalog_id":          rec.CatalogID,
				"evaluation_deadline": rec.EvaluationDeadline,
			},
			OperatorID: actorID,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("evaluation assigned",
		zap.String("evaluation_id", rec.ID),
		zap.String("supplier_id", rec.SupplierID),
		zap.String("evaluator_id", rec.EvaluatorID),
		zap.Time("deadline", rec.EvaluationDeadline))
	return BuildView(rec, cat, now), nil
}

// Get 获取评估详情
func (s *EvaluationService) Get(ctx context.Context, id string) (*EvaluationView, error) {
	rec, err := s.repos.Evaluation.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(rec)
}

// List 监督列表
func (s *EvaluationService) List(ctx context.Context, page, pageSize int, f ListFilter) ([]*EvaluationView, int64, error) {
	items, total, err := s.repos.Evaluation.FindAll(ctx, page, pageSize, s.repoFilter(f))
	if err != nil {
		return nil, 0, err
	}
	views, err := s.views(items)
	return views, total, err
}

// SupplierHistory 某供应商的全部评估
func (s *EvaluationService) SupplierHistory(ctx context.Context, supplierID string) ([]*EvaluationView, error) {
	if _, err := s.repos.Supplier.FindByID(ctx, supplierID); err != nil {
		return nil, fmt.Errorf("supplier %s: %w", supplierID, err)
	}
	items, err := s.repos.Evaluation.FindBySupplier(ctx, supplierID)
	if err != nil {
		return nil, err
	}
	return s.views(items)
}

// Stats 各状态数量 + 逾期数量
func (s *EvaluationService) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.repos.Evaluation.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	overdue, err := s.repos.Evaluation.CountOverdue(ctx, s.machine.Now())
	if err != nil {
		return nil, err
	}
	st := &Stats{ByStatus: map[string]int64{}, Overdue: overdue}
	for _, status := range append(entity.ActiveStatuses, entity.EvalStatusCompleted) {
		st.ByStatus[status] = counts[status]
		st.Total += counts[status]
	}
	return st, nil
}

// Activities 评估操作日志
func (s *EvaluationService) Activities(ctx context.Context, id string, page, pageSize int) ([]entity.ActivityLog, int64, error) {
	if _, err := s.repos.Evaluation.FindByID(ctx, id); err != nil {
		return nil, 0, err
	}
	return s.repos.ActivityLog.FindByEntity(ctx, entity.ActivityEntityEvaluation, id, page, pageSize)
}

// SaveDraft 评估人保存草稿
func (s *EvaluationService) SaveDraft(ctx context.Context, id, actorID string, req *SaveDraftRequest) (*EvaluationView, error) {
	return s.mutate(ctx, id, mutation{
		action:  entity.ActionSaveDraft,
		actorID: actorID,
		readAt:  req.LastModified,
		apply: func(rec *entity.Evaluation, cat *scoring.Catalog) (workflow.Transition, error) {
			return s.machine.SaveDraft(rec, cat, actorID, req.CategoryInputs)
		},
	})
}

// Submit 评估人提交
func (s *EvaluationService) Submit(ctx context.Context, id, actorID string, req *SubmitRequest) (*EvaluationView, error) {
	return s.mutate(ctx, id, mutation{
		action:  entity.ActionSubmit,
		actorID: actorID,
		readAt:  req.LastModified,
		apply: func(rec *entity.Evaluation, cat *scoring.Catalog) (workflow.Transition, error) {
			return s.machine.Submit(rec, cat, actorID, req.Override)
		},
		resolveAction: func(rec *entity.Evaluation) string {
			if rec.SubmitOverride {
				s.logger.Warn("evaluation submitted below minimum pass score",
					zap.String("evaluation_id", rec.ID),
					zap.String("evaluator_id", rec.EvaluatorID),
					zap.Float64p("human_score", rec.HumanScore))
				return entity.ActionSubmitOverride
			}
			return entity.ActionSubmit
		},
	})
}

// StartReview 管理员开始复核
func (s *EvaluationService) StartReview(ctx context.Context, id, actorID string, req *ReviewRequest) (*EvaluationView, error) {
	return s.mutate(ctx, id, mutation{
		action:  entity.ActionStartReview,
		actorID: actorID,
		readAt:  req.LastModified,
		content: req.Notes,
		apply: func(rec *entity.Evaluation, _ *scoring.Catalog) (workflow.Transition, error) {
			return s.machine.StartReview(rec, actorID)
		},
	})
}

// ReconcileWithAI 记录外部AI评分并做偏差检查
func (s *EvaluationService) ReconcileWithAI(ctx context.Context, id, actorID string, req *AIScoreRequest) (*EvaluationView, error) {
	return s.mutate(ctx, id, mutation{
		action:  entity.ActionAIReconcile,
		actorID: actorID,
		readAt:  req.LastModified,
		content: fmt.Sprintf("AI评分 %.2f (置信度 %.2f)", *req.AIScore, *req.Confidence),
		apply: func(rec *entity.Evaluation, cat *scoring.Catalog) (workflow.Transition, error) {
			return s.machine.ReconcileWithAI(rec, cat, *req.AIScore, *req.Confidence)
		},
	})
}

// CompleteSecondaryReview 二次复核完成，解除偏差闸门
func (s *EvaluationService) CompleteSecondaryReview(ctx context.Context, id, actorID string, req *ReviewRequest) (*EvaluationView, error) {
	return s.mutate(ctx, id, mutation{
		action:  entity.ActionSecondaryReview,
		actorID: actorID,
		readAt:  req.LastModified,
		content: req.Notes,
		apply: func(rec *entity.Evaluation, _ *scoring.Catalog) (workflow.Transition, error) {
			return s.machine.CompleteSecondaryReview(rec, actorID, req.Notes)
		},
	})
}

// Return 退回评估人修改
func (s *EvaluationService) Return(ctx context.Context, id, actorID string, req *ReturnRequest) (*EvaluationView, error) {
	return s.mutate(ctx, id, mutation{
		action:  entity.ActionReturn,
		actorID: actorID,
		readAt:  req.LastModified,
		content: req.ReasonCode + " " + req.Notes,
		apply: func(rec *entity.Evaluation, _ *scoring.Catalog) (workflow.Transition, error) {
			return s.machine.Return(rec, req.ReasonCode, req.Notes)
		},
	})
}

// Finalize 给出最终结论，同步供应商资格并归档
func (s *EvaluationService) Finalize(ctx context.Context, id, actorID string, req *FinalizeRequest) (*EvaluationView, error) {
	view, err := s.mutate(ctx, id, mutation{
		action:  entity.ActionFinalize,
		actorID: actorID,
		readAt:  req.LastModified,
		content: req.Notes,
		apply: func(rec *entity.Evaluation, cat *scoring.Catalog) (workflow.Transition, error) {
			return s.machine.Finalize(rec, cat, req.Decision, req.Notes)
		},
		inTx: func(tx *repository.Repositories, rec *entity.Evaluation, cat *scoring.Catalog) error {
			if err := tx.Evaluation.ClearOverdueSince(ctx, rec.ID); err != nil {
				return err
			}
			status := entity.SupplierStatusRejected
			if rec.Decision == entity.DecisionAccept {
				status = entity.SupplierStatusQualified
			}
			band := ""
			if rec.HumanScore != nil {
				band = string(cat.Policy.Classify(*rec.HumanScore))
			}
			return tx.Supplier.UpdateQualification(ctx, rec.SupplierID, rec.ID, status, band, rec.HumanScore, *rec.CompletedAt)
		},
		afterCommit: s.archive,
	})
	return view, err
}

type mutation struct {
	action  string
	actorID string
	// readAt 客户端读取时的 last_modified；为空时只依赖条件更新防并发
	readAt  *time.Time
	content string
	apply   func(rec *entity.Evaluation, cat *scoring.Catalog) (workflow.Transition, error)

	resolveAction func(rec *entity.Evaluation) string
	inTx          func(tx *repository.Repositories, rec *entity.Evaluation, cat *scoring.Catalog) error
	afterCommit   func(ctx context.Context, view *EvaluationView)
}

// mutate: 读取 -> 状态机 -> 条件写回 + 审计日志（同一事务）-> 发布事件
func (s *EvaluationService) mutate(ctx context.Context, id string, m mutation) (*EvaluationView, error) {
	var (
		rec  *entity.Evaluation
		cat  *scoring.Catalog
		tr   workflow.Transition
		from string
	)
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		rec, err = tx.Evaluation.FindByID(ctx, id)
		if err != nil {
			return err
		}
		cat, err = s.catalogFor(rec)
		if err != nil {
			return err
		}
		from = rec.Status
		prev := rec.LastModified

		var staleErr error
		if m.readAt != nil {
			staleErr = workflow.CheckFresh(rec, m.readAt.UTC().Truncate(time.Microsecond))
		}
		tr, err = m.apply(rec, cat)
		if err == nil && tr.Noop {
			return nil
		}
		if staleErr != nil {
			return staleErr
		}
		if err != nil {
			return err
		}

		if err := tx.Evaluation.UpdateIfUnmodified(ctx, rec, prev); err != nil {
			if errors.Is(err, repository.ErrModified) {
				return fmt.Errorf("%w: concurrent update", workflow.ErrStaleWrite)
			}
			return err
		}

		action := m.action
		if m.resolveAction != nil {
			action = m.resolveAction(rec)
		}
		if err := tx.ActivityLog.Create(ctx, s.activity(rec, action, from, m, tr)); err != nil {
			return err
		}
		for _, ev := range tr.Events {
			if ev.Type != workflow.EventDivergenceFlagged {
				continue
			}
			s.logger.Warn("ai score diverges from human score",
				zap.String("evaluation_id", rec.ID),
				zap.Any("divergence", ev.Payload["divergence"]))
			if err := tx.ActivityLog.Create(ctx, &entity.ActivityLog{
				EntityType: entity.ActivityEntityEvaluation,
				EntityID:   rec.ID,
				Action:     entity.ActionDivergenceFlagged,
				FromStatus: rec.Status,
				ToStatus:   rec.Status,
				Metadata:   entity.JSONB(ev.Payload),
				OperatorID: m.actorID,
			}); err != nil {
				return err
			}
		}
		if m.inTx != nil {
			return m.inTx(tx, rec, cat)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	view := BuildView(rec, cat, s.machine.Now())
	if tr.Noop {
		return view, nil
	}
	s.publisher.Publish(ctx, tr.Events)
	if m.afterCommit != nil {
		m.afterCommit(ctx, view)
	}
	return view, nil
}

func (s *EvaluationService) activity(rec *entity.Evaluation, action, from string, m mutation, tr workflow.Transition) *entity.ActivityLog {
	meta := entity.JSONB{"last_modified": rec.LastModified}
	if rec.HumanScore != nil {
		meta["human_score"] = *rec.HumanScore
	}
	for _, ev := range tr.Events {
		meta["event"] = string(ev.Type)
		meta["event_id"] = ev.ID
	}
	return &entity.ActivityLog{
		EntityType: entity.ActivityEntityEvaluation,
		EntityID:   rec.ID,
		Action:     action,
		FromStatus: from,
		ToStatus:   rec.Status,
		Content:    m.content,
		Metadata:   meta,
		OperatorID: m.actorID,
	}
}

// archive 归档失败不影响结论，只记录日志
func (s *EvaluationService) archive(ctx context.Context, view *EvaluationView) {
	if s.archiver == nil {
		return
	}
	key, err := s.archiver.Archive(ctx, view)
	if err != nil {
		s.logger.Error("archive evaluation failed", zap.String("evaluation_id", view.ID), zap.Error(err))
		return
	}
	if err := s.repos.ActivityLog.Create(ctx, &entity.ActivityLog{
		EntityType: entity.ActivityEntityEvaluation,
		EntityID:   view.ID,
		Action:     entity.ActionArchived,
		FromStatus: view.Status,
		ToStatus:   view.Status,
		Content:    key,
	}); err != nil {
		s.logger.Warn("log archive activity failed", zap.String("evaluation_id", view.ID), zap.Error(err))
	}
}

// catalogFor 已提交的记录使用提交时的目录快照
func (s *EvaluationService) catalogFor(rec *entity.Evaluation) (*scoring.Catalog, error) {
	if rec.CatalogSnapshot != nil {
		return rec.CatalogSnapshot, nil
	}
	return s.catalogs.Get(rec.CatalogID)
}

func (s *EvaluationService) view(rec *entity.Evaluation) (*EvaluationView, error) {
	cat, err := s.catalogFor(rec)
	if err != nil {
		return nil, err
	}
	return BuildView(rec, cat, s.machine.Now()), nil
}

func (s *EvaluationService) views(items []entity.Evaluation) ([]*EvaluationView, error) {
	out := make([]*EvaluationView, 0, len(items))
	for i := range items {
		v, err := s.view(&items[i])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *EvaluationService) repoFilter(f ListFilter) repository.EvaluationFilter {
	rf := repository.EvaluationFilter{
		Status:      f.Status,
		SupplierID:  f.SupplierID,
		TenderID:    f.TenderID,
		EvaluatorID: f.EvaluatorID,
	}
	if f.Overdue {
		rf.OverdueAt = s.machine.Now()
	}
	return rf
}
