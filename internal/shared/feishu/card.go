package feishu

import (
	"context"
	"encoding/json"
	"fmt"
)

// SendCard 向群聊发送消息卡片
func (c *FeishuClient) SendCard(ctx context.Context, chatID string, card InteractiveCard) (string, error) {
	return c.sendCard(ctx, "chat_id", chatID, card)
}

// SendUserCard 向个人发送消息卡片（open_id）
func (c *FeishuClient) SendUserCard(ctx context.Context, openID string, card InteractiveCard) (string, error) {
	return c.sendCard(ctx, "open_id", openID, card)
}

func (c *FeishuClient) sendCard(ctx context.Context, idType, id string, card InteractiveCard) (string, error) {
	cardBytes, err := json.Marshal(card)
	if err != nil {
		return "", fmt.Errorf("序列化卡片内容失败: %w", err)
	}

	reqBody := map[string]interface{}{
		"receive_id": id,
		"msg_type":   "interactive",
		"content":    string(cardBytes),
	}
	path := fmt.Sprintf("/open-apis/im/v1/messages?receive_id_type=%s", idType)

	var resp SendMessageResponse
	if err := c.doRequest(ctx, "POST", path, reqBody, &resp); err != nil {
		return "", fmt.Errorf("发送消息卡片失败: %w", err)
	}
	return resp.Data.MessageID, nil
}

func mdField(label, value string) CardField {
	return CardField{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**%s**\n%s", label, value)}}
}

func note(text string) CardElement {
	return CardElement{Tag: "note", Elements: []CardElement{{Tag: "plain_text", Content: text}}}
}

func newCard(title, template string, elements ...CardElement) InteractiveCard {
	return InteractiveCard{
		Config:   &CardConfig{WideScreenMode: true},
		Header:   &CardHeader{Title: CardText{Tag: "plain_text", Content: title}, Template: template},
		Elements: elements,
	}
}

func withLink(elements []CardElement, url string) []CardElement {
	if url == "" {
		return elements
	}
	return append(elements, CardElement{
		Tag: "action",
		Actions: []CardAction{{
			Tag:  "button",
			Text: CardText{Tag: "plain_text", Content: "查看评估"},
			Type: "primary",
			URL:  url,
		}},
	})
}

// NewDivergenceCard AI评分与人工评分偏差超限，需二次复核
func NewDivergenceCard(supplier string, humanScore, aiScore, threshold float64, url string) InteractiveCard {
	elements := []CardElement{
		{Tag: "div", Fields: []CardField{
			mdField("供应商", supplier),
			mdField("偏差阈值", fmt.Sprintf("%.0f", threshold)),
			mdField("人工评分", fmt.Sprintf("%.1f", humanScore)),
			mdField("AI评分", fmt.Sprintf("%.1f", aiScore)),
		}},
		{Tag: "hr"},
		note("评分偏差超过阈值，结论确认前必须完成二次复核"),
	}
	return newCard("⚠️ 评分偏差待复核", "orange", withLink(elements, url)...)
}

// NewOverdueCard 评估逾期提醒
func NewOverdueCard(supplier, status, deadline string, daysOverdue int, url string) InteractiveCard {
	elements := []CardElement{
		{Tag: "div", Fields: []CardField{
			mdField("供应商", supplier),
			mdField("当前状态", status),
			mdField("截止日期", deadline),
			mdField("逾期天数", fmt.Sprintf("%d", daysOverdue)),
		}},
		{Tag: "hr"},
		note("请尽快完成资格评估"),
	}
	return newCard("⏰ 资格评估逾期", "red", withLink(elements, url)...)
}

// NewFinalizedCard 评估结论通知
func NewFinalizedCard(supplier, decision, band string, score float64, url string) InteractiveCard {
	template, result := "green", "✅ 通过"
	if decision != "accept" {
		template, result = "red", "❌ 不通过"
	}
	elements := []CardElement{
		{Tag: "div", Fields: []CardField{
			mdField("供应商", supplier),
			mdField("结论", result),
			mdField("综合得分", fmt.Sprintf("%.0f%%", score)),
			mdField("等级", band),
		}},
	}
	return newCard("📝 资格评估结论", template, withLink(elements, url)...)
}

// NewReturnedCard 评估被退回给评估人
func NewReturnedCard(supplier, reasonCode, notes, url string) InteractiveCard {
	elements := []CardElement{
		{Tag: "div", Fields: []CardField{
			mdField("供应商", supplier),
			mdField("退回原因", reasonCode),
		}},
	}
	if notes != "" {
		elements = append(elements,
			CardElement{Tag: "hr"},
			CardElement{Tag: "div", Text: &CardText{Tag: "lark_md", Content: fmt.Sprintf("**说明**\n%s", notes)}},
		)
	}
	return newCard("⏪ 资格评估已退回", "red", withLink(elements, url)...)
}
