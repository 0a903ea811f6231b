package obslog

import "testing"

func TestNopIfNilReturnsUsableLogger(t *testing.T) {
	logger := NopIfNil(nil)
	if logger == nil {
		t.Fatal("NopIfNil(nil) returned nil")
	}
	logger.Info("should not panic")
}

func TestNopIfNilPassesThroughNonNil(t *testing.T) {
	logger := New(ModeDevelopment)
	if got := NopIfNil(logger); got != logger {
		t.Fatal("NopIfNil mutated a non-nil logger")
	}
}

func TestNewProduction(t *testing.T) {
	logger := New(ModeProduction)
	if logger == nil {
		t.Fatal("New(ModeProduction) returned nil")
	}
}
