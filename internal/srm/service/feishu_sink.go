package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-qualify/internal/shared/feishu"
	"github.com/bitfantasy/nimo-qualify/internal/srm/repository"
	"github.com/bitfantasy/nimo-qualify/internal/srm/workflow"
)

// CardSender 飞书卡片发送
type CardSender interface {
	SendCard(ctx context.Context, chatID string, card feishu.InteractiveCard) (string, error)
}

// FeishuEventSink 把需要人工处理的事件发到飞书群
type FeishuEventSink struct {
	sender    CardSender
	chatID    string
	linkBase  string
	suppliers *repository.SupplierRepository
}

func NewFeishuEventSink(sender CardSender, chatID, linkBase string, suppliers *repository.SupplierRepository) *FeishuEventSink {
	return &FeishuEventSink{
		sender:    sender,
		chatID:    chatID,
		linkBase:  strings.TrimRight(linkBase, "/"),
		suppliers: suppliers,
	}
}

func (s *FeishuEventSink) Name() string { return "feishu" }

func (s *FeishuEventSink) Publish(ctx context.Context, ev workflow.Event) error {
	card, ok := s.card(ctx, ev)
	if !ok {
		return nil
	}
	if _, err := s.sender.SendCard(ctx, s.chatID, card); err != nil {
		return fmt.Errorf("feishu %s: %w", ev.Type, err)
	}
	return nil
}

func (s *FeishuEventSink) card(ctx context.Context, ev workflow.Event) (feishu.InteractiveCard, bool) {
	supplier := s.supplierName(ctx, ev.Payload)
	url := ""
	if s.linkBase != "" {
		url = s.linkBase + "/evaluations/" + ev.EvaluationID
	}

	switch ev.Type {
	case workflow.EventDivergenceFlagged:
		return feishu.NewDivergenceCard(supplier,
			floatOf(ev.Payload["human_score"]), floatOf(ev.Payload["ai_score"]), floatOf(ev.Payload["threshold"]), url), true
	case workflow.EventOverdueDetected:
		deadline := ""
		if t, ok := ev.Payload["evaluation_deadline"].(time.Time); ok {
			deadline = t.Format("2006-01-02")
		}
		days, _ := ev.Payload["days_overdue"].(int)
		return feishu.NewOverdueCard(supplier, fmt.Sprint(ev.Payload["status"]), deadline, days, url), true
	case workflow.EventFinalized:
		return feishu.NewFinalizedCard(supplier, fmt.Sprint(ev.Payload["decision"]),
			fmt.Sprint(ev.Payload["band"]), floatOf(ev.Payload["human_score"]), url), true
	case workflow.EventReturned:
		notes, _ := ev.Payload["notes"].(string)
		return feishu.NewReturnedCard(supplier, fmt.Sprint(ev.Payload["reason_code"]), notes, url), true
	}
	return feishu.InteractiveCard{}, false
}

func (s *FeishuEventSink) supplierName(ctx context.Context, payload map[string]interface{}) string {
	id, _ := payload["supplier_id"].(string)
	if s.suppliers == nil || id == "" {
		return id
	}
	sup, err := s.suppliers.FindByID(ctx, id)
	if err != nil {
		return id
	}
	return sup.Name
}

func floatOf(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}
