package logger

import "testing"

func TestNewZapLogger(t *testing.T) {
	log, err := NewZapLogger("debug")
	if err != nil {
		t.Fatal(err)
	}
	log.Info("hello", String("k", "v"), Int("n", 1))
}

func TestNewZapLoggerUnknownLevelFallsBack(t *testing.T) {
	log, err := NewZapLogger("not-a-level")
	if err != nil {
		t.Fatalf("unknown level should fall back to info, got %v", err)
	}
	log.Warn("still works")
}

func TestNopLoggerDiscards(t *testing.T) {
	log := NewNop()
	log.Info("discarded")
	log.Error("discarded", Err(nil))
}
