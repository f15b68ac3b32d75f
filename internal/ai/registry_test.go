package ai

import (
	"context"
	"testing"
)

type nullProvider struct{}

func (nullProvider) Chat(_ context.Context, _ []Message) (string, error) { return "", nil }

func TestRegistry_UnknownProvider(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get(context.Background(), "nope", ""); err == nil {
		t.Fatalf("expected error for unregistered provider")
	}
}

func TestRegistry_DefaultModelFallback(t *testing.T) {
	r := NewRegistry()

	var gotModel string
	r.Register("fake", "default-model", func(_ context.Context, model string) (Provider, error) {
		gotModel = model
		return nullProvider{}, nil
	})

	if _, err := r.Get(context.Background(), "fake", ""); err != nil {
		t.Fatalf("get: %v", err)
	}
	if gotModel != "default-model" {
		t.Fatalf("blank model must fall back to the registered default, got %q", gotModel)
	}

	if _, err := r.Get(context.Background(), "fake", "custom"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if gotModel != "custom" {
		t.Fatalf("explicit model must win, got %q", gotModel)
	}
}

func TestRegistry_NormalizesName(t *testing.T) {
	r := NewRegistry()
	r.Register(" Fake ", "m", func(_ context.Context, _ string) (Provider, error) {
		return nullProvider{}, nil
	})

	if _, err := r.Get(context.Background(), "fake", ""); err != nil {
		t.Fatalf("lookup must be case- and space-insensitive: %v", err)
	}
}
