package problem

import (
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	c, err := ParseConfig(nil)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if c.TimeLimit != defaultTimeLimit || c.MemoryLimit != defaultMemoryLimit || c.FullScore != defaultFullScore {
		t.Errorf("unexpected defaults: %+v", c)
	}
}

func TestParseConfigYAML(t *testing.T) {
	raw := []byte("type: default\ntimeLimit: 2000\nmemoryLimit: 524288\nfullScore: 300\n")
	c, err := ParseConfig(raw)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if c.TimeLimit != 2000 {
		t.Errorf("timeLimit = %d, want 2000", c.TimeLimit)
	}
	if c.MemoryLimit != 524288 {
		t.Errorf("memoryLimit = %d, want 524288", c.MemoryLimit)
	}
	if c.FullScore != 300 {
		t.Errorf("fullScore = %d, want 300", c.FullScore)
	}
}

func TestParseConfigInvalid(t *testing.T) {
	if _, err := ParseConfig([]byte("timeLimit: [")); err == nil {
		t.Error("expected error for malformed config")
	}
}
