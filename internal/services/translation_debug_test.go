package services

import (
	"sync"
	"testing"
)

func TestSetDebugLogging_Concurrent(t *testing.T) {
	defer SetDebugLogging(DebugLoggingEnabled())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(on bool) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				SetDebugLogging(on)
			}
		}(i%2 == 0)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				debugLog("toggle check %d", j)
				_ = DebugLoggingEnabled()
			}
		}()
	}
	wg.Wait()

	SetDebugLogging(true)
	if !DebugLoggingEnabled() {
		t.Error("Expected debug logging enabled")
	}
	SetDebugLogging(false)
	if DebugLoggingEnabled() {
		t.Error("Expected debug logging disabled")
	}
}

func TestIsTruthy(t *testing.T) {
	tests := []struct {
		value    string
		expected bool
	}{
		{"1", true},
		{"true", true},
		{" YES ", true},
		{"0", false},
		{"off", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isTruthy(tt.value); got != tt.expected {
			t.Errorf("isTruthy(%q) = %v, want %v", tt.value, got, tt.expected)
		}
	}
}
