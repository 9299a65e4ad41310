// Package authzsync broadcasts committed authorization invalidations to peer
// instances over Kafka and replays the ones received from peers.
package authzsync

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go-sysadmin/internal/authz"
	"go-sysadmin/internal/metrics"

	kafkaGo "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const headerInstance = "x-authz-instance"

// Event 跨实例失效消息体
type Event struct {
	Instance        string  `json:"instance"`
	Source          string  `json:"source"`
	PermissionUsers []int64 `json:"permission_users,omitempty"`
	ScopeUsers      []int64 `json:"scope_users,omitempty"`
	AllScopes       bool    `json:"all_scopes,omitempty"`
	At              int64   `json:"at"`
}

func (e Event) Invalidation() authz.Invalidation {
	return authz.Invalidation{
		Source:          e.Source,
		PermissionUsers: e.PermissionUsers,
		ScopeUsers:      e.ScopeUsers,
		AllScopes:       e.AllScopes,
	}
}

// Sender is the subset of the Kafka producer used for publishing.
type Sender interface {
	Send(ctx context.Context, key, value []byte, headers map[string]string) error
}

// Publisher forwards local invalidations to the sync topic. Invalidations
// replayed from peers are not republished.
type Publisher struct {
	sender   Sender
	instance string
	timeout  time.Duration
	log      *zap.Logger
}

func NewPublisher(sender Sender, instance string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{sender: sender, instance: instance, timeout: 3 * time.Second, log: log}
}

func (p *Publisher) Invalidate(ctx context.Context, inv authz.Invalidation) {
	if inv.Remote || p.sender == nil {
		return
	}
	ev := Event{
		Instance:        p.instance,
		Source:          inv.Source,
		PermissionUsers: inv.PermissionUsers,
		ScopeUsers:      inv.ScopeUsers,
		AllScopes:       inv.AllScopes,
		At:              time.Now().UnixMilli(),
	}
	body, err := json.Marshal(ev)
	if err != nil {
		metrics.AuthzSyncTotal.WithLabelValues("out", "encode_error").Inc()
		p.log.Error("authz_sync_encode_failed", zap.Error(err))
		return
	}
	// 请求取消不应丢弃已提交变更的广播
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.sender.Send(sendCtx, []byte(inv.Source), body, map[string]string{headerInstance: p.instance}); err != nil {
		metrics.AuthzSyncTotal.WithLabelValues("out", "error").Inc()
		// 对端只能等待缓存 TTL 过期
		p.log.Error("authz_sync_publish_failed", zap.String("source", inv.Source), zap.Error(err))
		return
	}
	metrics.AuthzSyncTotal.WithLabelValues("out", "ok").Inc()
}

// Applier reloads state and replays a peer invalidation; *authz.Core
// satisfies it.
type Applier interface {
	ApplyRemote(ctx context.Context, inv authz.Invalidation) error
}

// Handler consumes the sync topic.
type Handler struct {
	applier  Applier
	instance string
	log      *zap.Logger
}

func NewHandler(applier Applier, instance string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{applier: applier, instance: instance, log: log}
}

// Handle matches mq/kafka.MessageHandler.
func (h *Handler) Handle(ctx context.Context, msg kafkaGo.Message) error {
	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		metrics.AuthzSyncTotal.WithLabelValues("in", "decode_error").Inc()
		return fmt.Errorf("decode authz event at offset %s: %w", strconv.FormatInt(msg.Offset, 10), err)
	}
	if ev.Instance == h.instance {
		metrics.AuthzSyncTotal.WithLabelValues("in", "self").Inc()
		return nil
	}
	if err := h.applier.ApplyRemote(ctx, ev.Invalidation()); err != nil {
		metrics.AuthzSyncTotal.WithLabelValues("in", "error").Inc()
		return fmt.Errorf("apply authz event from %s: %w", ev.Instance, err)
	}
	metrics.AuthzSyncTotal.WithLabelValues("in", "ok").Inc()
	h.log.Debug("authz_sync_applied", zap.String("from", ev.Instance), zap.String("source", ev.Source))
	return nil
}
