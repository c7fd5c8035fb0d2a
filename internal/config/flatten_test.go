package config

import (
	"testing"
)

func TestFlatten_Nested(t *testing.T) {
	m := map[string]any{
		"server": map[string]any{
			"base_url": "http://127.0.0.1:8000",
			"token":    "tok-123",
		},
		"log_level": "info",
	}
	got := Flatten(m)
	if got["server.base_url"] != "http://127.0.0.1:8000" {
		t.Errorf("expected server.base_url, got %v", got["server.base_url"])
	}
	if got["server.token"] != "tok-123" {
		t.Errorf("expected server.token=tok-123, got %v", got["server.token"])
	}
	if got["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", got["log_level"])
	}
	if len(got) != 3 {
		t.Errorf("expected 3 keys, got %d", len(got))
	}
}

func TestFlatten_DeeplyNested(t *testing.T) {
	got := Flatten(map[string]any{
		"a": map[string]any{
			"b": map[string]any{"c": "deep"},
		},
	})
	if got["a.b.c"] != "deep" {
		t.Errorf("expected a.b.c=deep, got %v", got["a.b.c"])
	}
	if len(got) != 1 {
		t.Errorf("expected 1 key, got %d", len(got))
	}
}

func TestFlatten_EmptyNestedMap(t *testing.T) {
	got := Flatten(map[string]any{"a": map[string]any{}})
	if len(got) != 0 {
		t.Errorf("expected 0 keys (empty nested map produces nothing), got %d", len(got))
	}
}

func TestUnflatten_Nested(t *testing.T) {
	got := Unflatten(map[string]any{
		"stream.read_buffer": 4096.0,
		"stream.trace":       true,
		"log_level":          "info",
	})
	stream, ok := got["stream"].(map[string]any)
	if !ok {
		t.Fatalf("expected stream to be map, got %T", got["stream"])
	}
	if stream["read_buffer"] != 4096.0 {
		t.Errorf("expected stream.read_buffer=4096, got %v", stream["read_buffer"])
	}
	if stream["trace"] != true {
		t.Errorf("expected stream.trace=true, got %v", stream["trace"])
	}
	if got["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", got["log_level"])
	}
}

func TestRoundTrip_FlattenUnflatten(t *testing.T) {
	original := map[string]any{
		"data_dir": "/home/test/.chatbridge",
		"agent": map[string]any{
			"id":      "crypto_advisor",
			"user_id": "u1",
		},
		"llm": map[string]any{
			"api_key": "sk-test123456",
		},
	}

	restored := Unflatten(Flatten(original))

	if restored["data_dir"] != original["data_dir"] {
		t.Errorf("data_dir mismatch: %v != %v", restored["data_dir"], original["data_dir"])
	}
	agent := restored["agent"].(map[string]any)
	if agent["id"] != "crypto_advisor" || agent["user_id"] != "u1" {
		t.Errorf("agent mismatch: %v", agent)
	}
	llm := restored["llm"].(map[string]any)
	if llm["api_key"] != "sk-test123456" {
		t.Errorf("llm.api_key mismatch: %v", llm["api_key"])
	}
}

func TestMaskSecrets(t *testing.T) {
	got := MaskSecrets(map[string]any{
		"server.base_url": "http://127.0.0.1:8000",
		"server.token":    "tok-abcdef",
		"llm.api_key":     "sk-test123456",
		"log_level":       "info",
	})

	if got["server.base_url"] != "http://127.0.0.1:8000" {
		t.Errorf("expected server.base_url unchanged, got %v", got["server.base_url"])
	}
	if got["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", got["log_level"])
	}
	if got["server.token"] != "***cdef" {
		t.Errorf("expected server.token=***cdef, got %v", got["server.token"])
	}
	if got["llm.api_key"] != "***3456" {
		t.Errorf("expected llm.api_key=***3456, got %v", got["llm.api_key"])
	}
}

func TestMaskSecrets_EdgeValues(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"", ""},
		{"ab", "***"},
		{"abcd", "***"},
		{"abcde", "***bcde"},
	}
	for _, tt := range tests {
		got := MaskSecrets(map[string]any{"llm.api_key": tt.value})
		if got["llm.api_key"] != tt.want {
			t.Errorf("MaskSecrets(%q): expected %q, got %v", tt.value, tt.want, got["llm.api_key"])
		}
	}
}

func TestIsSecretKey(t *testing.T) {
	if !IsSecretKey("server.token") || !IsSecretKey("llm.api_key") {
		t.Error("expected server.token and llm.api_key to be secret")
	}
	if IsSecretKey("server.base_url") {
		t.Error("expected server.base_url not to be secret")
	}
}
