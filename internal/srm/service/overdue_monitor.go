package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bitfantasy/nimo-qualify/internal/srm/entity"
	"github.com/bitfantasy/nimo-qualify/internal/srm/repository"
	"github.com/bitfantasy/nimo-qualify/internal/srm/workflow"
)

const (
	DefaultSweepInterval = time.Hour
	DefaultSweepLockTTL  = 5 * time.Minute
	sweepBatchSize       = 200
)

// OverdueMonitor 定期扫描逾期评估。只向前标记 overdue_since，每条记录只发一次 OverdueDetected。
type OverdueMonitor struct {
	repos     *repository.Repositories
	machine   *workflow.Machine
	publisher *Publisher
	lock      SweepLock
	interval  time.Duration
	lockTTL   time.Duration
	logger    *zap.Logger
}

func NewOverdueMonitor(repos *repository.Repositories, machine *workflow.Machine, publisher *Publisher, lock SweepLock, logger *zap.Logger) *OverdueMonitor {
	if lock == nil {
		lock = &LocalSweepLock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = NewPublisher(logger)
	}
	return &OverdueMonitor{
		repos:     repos,
		machine:   machine,
		publisher: publisher,
		lock:      lock,
		interval:  DefaultSweepInterval,
		lockTTL:   DefaultSweepLockTTL,
		logger:    logger,
	}
}

func (m *OverdueMonitor) SetInterval(d time.Duration) {
	if d > 0 {
		m.interval = d
	}
}

func (m *OverdueMonitor) SetLockTTL(d time.Duration) {
	if d > 0 {
		m.lockTTL = d
	}
}

// Run 立即扫描一次，之后按固定间隔扫描直到 ctx 取消
func (m *OverdueMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runOnce(ctx)
		}
	}
}

func (m *OverdueMonitor) runOnce(ctx context.Context) {
	marked, err := m.Sweep(ctx)
	if err != nil {
		m.logger.Error("overdue sweep failed", zap.Error(err))
		return
	}
	if marked > 0 {
		m.logger.Info("overdue sweep finished", zap.Int("marked", marked))
	}
}

// Sweep 标记新逾期的评估并返回数量。重复执行不会重复通知。
func (m *OverdueMonitor) Sweep(ctx context.Context) (int, error) {
	release, ok, err := m.lock.TryAcquire(ctx, m.lockTTL)
	if err != nil {
		return 0, err
	}
	if !ok {
		m.logger.Debug("overdue sweep skipped, lock held elsewhere")
		return 0, nil
	}
	defer release()

	marked := 0
	failed := map[string]bool{}
	for {
		ids, err := m.repos.Evaluation.FindOverdueCandidates(ctx, m.machine.Now(), sweepBatchSize+len(failed))
		if err != nil {
			return marked, fmt.Errorf("find overdue candidates: %w", err)
		}
		progressed := false
		for _, id := range ids {
			if failed[id] {
				continue
			}
			if err := ctx.Err(); err != nil {
				return marked, err
			}
			ok, err := m.markOne(ctx, id)
			if err != nil {
				failed[id] = true
				m.logger.Error("mark overdue failed", zap.String("evaluation_id", id), zap.Error(err))
				continue
			}
			progressed = true
			if ok {
				marked++
			}
		}
		if !progressed || len(ids) < sweepBatchSize+len(failed) {
			return marked, nil
		}
	}
}

func (m *OverdueMonitor) markOne(ctx context.Context, id string) (bool, error) {
	var tr workflow.Transition
	err := m.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		rec, err := tx.Evaluation.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		tr = m.machine.MarkOverdue(rec)
		if tr.Noop {
			return nil
		}
		updated, err := tx.Evaluation.SetOverdueSince(ctx, id, *rec.OverdueSince)
		if err != nil {
			return err
		}
		if !updated {
			tr = workflow.Transition{Noop: true}
			return nil
		}
		meta := entity.JSONB{}
		for _, ev := range tr.Events {
			meta = entity.JSONB(ev.Payload)
		}
		return tx.ActivityLog.Create(ctx, &entity.ActivityLog{
			EntityType: entity.ActivityEntityEvaluation,
			EntityID:   rec.ID,
			Action:     entity.ActionOverdueDetected,
			FromStatus: rec.Status,
			ToStatus:   rec.Status,
			Metadata:   meta,
			OperatorID: "system",
		})
	})
	if err != nil || tr.Noop {
		return false, err
	}
	m.publisher.Publish(ctx, tr.Events)
	return true, nil
}
