package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/mall-next/internal/config"
)

func TestTaskPayloadRoundTrip(t *testing.T) {
	task, err := NewOrderRefundInitiateTask(OrderRefundInitiatePayload{OrderID: 42})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if task.Type() != TaskOrderRefundInitiate {
		t.Fatalf("unexpected task type: %s", task.Type())
	}
	payload, err := ParseOrderRefundInitiatePayload(task)
	if err != nil || payload.OrderID != 42 {
		t.Fatalf("parse payload failed: %+v %v", payload, err)
	}
}

func TestDisabledClientRefusesEnqueue(t *testing.T) {
	client, err := NewClient(&config.QueueConfig{Enabled: false})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if client.Enabled() {
		t.Fatalf("client should be disabled")
	}
	if err := client.EnqueueOrderTimeoutCancel(OrderTimeoutCancelPayload{OrderID: 1}, time.Minute); !errors.Is(err, ErrDisabled) {
		t.Fatalf("want ErrDisabled got %v", err)
	}
	var nilClient *Client
	if err := nilClient.EnqueueOrderRefundInitiate(OrderRefundInitiatePayload{OrderID: 1}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("nil client want ErrDisabled got %v", err)
	}
}

func TestBuildServerConfigDefaults(t *testing.T) {
	opt, cfg := BuildServerConfig(nil)
	if opt.Addr != "127.0.0.1:6379" {
		t.Fatalf("unexpected addr: %s", opt.Addr)
	}
	if cfg.Concurrency != 10 || cfg.Queues[CriticalQueue] != 2 {
		t.Fatalf("unexpected server config: %+v", cfg)
	}
	if cfg.Logger == nil || cfg.ErrorHandler == nil {
		t.Fatalf("server config should route logs and failures through zap")
	}
}
