package hooks

import (
	"context"
	"testing"
	"time"
)

func TestEvent(t *testing.T) {
	event := NewEvent(EventSeamTransition).
		WithChannelID("ch-1").
		WithBlockID("block-7").
		WithSegmentID("block-7/2").
		WithData("kind", "segment")

	if event.Type != EventSeamTransition {
		t.Errorf("expected event type %s, got %s", EventSeamTransition, event.Type)
	}
	if event.ChannelID != "ch-1" {
		t.Errorf("expected channel id 'ch-1', got %s", event.ChannelID)
	}
	if event.SegmentID != "block-7/2" {
		t.Errorf("expected segment id 'block-7/2', got %s", event.SegmentID)
	}
	if event.Data["kind"] != "segment" {
		t.Errorf("expected kind 'segment', got %v", event.Data["kind"])
	}

	want := "seam_transition:block-7/2"
	if got := event.String(); got != want {
		t.Errorf("expected string %q, got %q", want, got)
	}
}

func TestShellHook(t *testing.T) {
	hook := NewShellHook("test-hook", "/bin/echo", 10*time.Second)
	if hook.Type() != "shell" {
		t.Errorf("expected hook type 'shell', got %s", hook.Type())
	}
	if hook.ID() != "test-hook" {
		t.Errorf("expected hook id 'test-hook', got %s", hook.ID())
	}

	custom := NewShellHookWithCommand("custom", "/bin/true", []string{}, 5*time.Second)
	if custom.command != "/bin/true" {
		t.Errorf("expected command '/bin/true', got %s", custom.command)
	}
}

func TestHookManager(t *testing.T) {
	manager := NewManager(DefaultConfig(), nil)

	hook := NewShellHook("test", "/bin/true", 10*time.Second)
	if err := manager.RegisterHook(EventBlockCompleted, hook); err != nil {
		t.Fatalf("register hook: %v", err)
	}

	stats := manager.Stats()
	if stats["total_hooks"] != 1 {
		t.Errorf("expected 1 total hook, got %v", stats["total_hooks"])
	}

	if !manager.UnregisterHook(EventBlockCompleted, "test") {
		t.Error("expected unregister to succeed")
	}

	event := NewEvent(EventBlockCompleted)
	manager.TriggerEvent(context.Background(), *event)

	if err := manager.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestStdioHook(t *testing.T) {
	hook := NewStdioHook("stdio-test", "json")
	if hook.Type() != "stdio" {
		t.Errorf("expected hook type 'stdio', got %s", hook.Type())
	}
	if hook.format != "json" {
		t.Errorf("expected format 'json', got %s", hook.format)
	}
}

func TestWebhookHook(t *testing.T) {
	hook := NewWebhookHook("webhook-test", "https://example.com/webhook", 30*time.Second)
	if hook.Type() != "webhook" {
		t.Errorf("expected hook type 'webhook', got %s", hook.Type())
	}

	hook.AddHeader("Authorization", "Bearer token")
	if hook.headers["Authorization"] != "Bearer token" {
		t.Errorf("expected Authorization header, got %s", hook.headers["Authorization"])
	}
}
