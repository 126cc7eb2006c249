package llm

import (
	"testing"

	"ibkr-sma-scanner/internal/llm/noop"
	"ibkr-sma-scanner/internal/store"
)

func TestNewProviders(t *testing.T) {
	cfg, err := store.ParseConfig([]byte("{}"))
	if err != nil {
		t.Fatal(err)
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := a.(*noop.NoopAnswerer); !ok {
		t.Errorf("Expected noop answerer for NONE, got %T", a)
	}

	t.Setenv("OPENAI_API_KEY", "")
	cfg.LLM.Provider = "OPENAI"
	if _, err := New(cfg); err == nil {
		t.Error("Expected error without OPENAI_API_KEY")
	}

	t.Setenv("OPENAI_API_KEY", "sk")
	if a, err := New(cfg); err != nil || a == nil {
		t.Errorf("Expected wrapped openai answerer, got %v (%v)", a, err)
	}
}
