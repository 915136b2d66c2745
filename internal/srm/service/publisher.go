package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bitfantasy/nimo-qualify/internal/srm/sse"
	"github.com/bitfantasy/nimo-qualify/internal/srm/workflow"
)

// EventSink 接收已提交的工作流事件
type EventSink interface {
	Name() string
	Publish(ctx context.Context, ev workflow.Event) error
}

// Publisher 事件扇出。事件在状态持久化之后发布，单个 sink 失败只记录日志。
type Publisher struct {
	sinks  []EventSink
	logger *zap.Logger
}

func NewPublisher(logger *zap.Logger, sinks ...EventSink) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{sinks: sinks, logger: logger}
}

// Add 追加 sink，必须在开始发布前调用
func (p *Publisher) Add(sink EventSink) {
	p.sinks = append(p.sinks, sink)
}

func (p *Publisher) Publish(ctx context.Context, events []workflow.Event) {
	for _, ev := range events {
		for _, sink := range p.sinks {
			if err := sink.Publish(ctx, ev); err != nil {
				p.logger.Warn("event sink failed",
					zap.String("sink", sink.Name()),
					zap.String("event", string(ev.Type)),
					zap.String("evaluation_id", ev.EvaluationID),
					zap.Error(err))
			}
		}
	}
}

// SSEEventSink 推送到本进程的 SSE 连接
type SSEEventSink struct {
	hub *sse.Hub
}

func NewSSEEventSink(hub *sse.Hub) *SSEEventSink {
	return &SSEEventSink{hub: hub}
}

func (s *SSEEventSink) Name() string { return "sse" }

func (s *SSEEventSink) Publish(_ context.Context, ev workflow.Event) error {
	frame, err := toSSE(ev)
	if err != nil {
		return err
	}
	s.hub.Broadcast(frame)
	return nil
}

func toSSE(ev workflow.Event) (sse.Event, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return sse.Event{}, fmt.Errorf("marshal event: %w", err)
	}
	return sse.Event{EventType: string(ev.Type), Data: string(data)}, nil
}

// RedisEventSink 通过 redis pub/sub 把事件广播给所有副本
type RedisEventSink struct {
	rdb     *redis.Client
	channel string
}

func NewRedisEventSink(rdb *redis.Client, channel string) *RedisEventSink {
	if channel == "" {
		channel = "qualify:events"
	}
	return &RedisEventSink{rdb: rdb, channel: channel}
}

func (s *RedisEventSink) Name() string { return "redis" }

func (s *RedisEventSink) Publish(ctx context.Context, ev workflow.Event) error {
	if s.rdb == nil {
		return fmt.Errorf("redis event sink not initialized")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, s.channel, raw).Err()
}

// StartForwarder 订阅频道并把收到的事件转发到本地 SSE hub
func (s *RedisEventSink) StartForwarder(ctx context.Context, hub *sse.Hub, logger *zap.Logger) error {
	if s.rdb == nil {
		return fmt.Errorf("redis event sink not initialized")
	}
	sub := s.rdb.Subscribe(ctx, s.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var ev workflow.Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					logger.Warn("bad redis event payload", zap.Error(err))
					continue
				}
				frame, err := toSSE(ev)
				if err != nil {
					continue
				}
				hub.Broadcast(frame)
			}
		}
	}()
	return nil
}
