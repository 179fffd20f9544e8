// ABOUTME: Tests for discovery helpers that need no network
// ABOUTME: Covers entry name cleanup and the address formatter
package discovery

import "testing"

func TestDisplayName(t *testing.T) {
	tests := []struct {
		entry    string
		expected string
	}{
		{"Stage Engine._previz._tcp.local.", "Stage Engine"},
		{"Stage\\ Engine._previz._tcp.local.", "Stage Engine"},
		{"bare", "bare"},
		{"dotted.name._previz._tcp.local.", "dotted.name"},
	}

	for _, tt := range tests {
		if got := displayName(tt.entry); got != tt.expected {
			t.Errorf("displayName(%q) = %q, expected %q", tt.entry, got, tt.expected)
		}
	}
}

func TestEngineInfoAddr(t *testing.T) {
	e := &EngineInfo{Name: "Stage", Host: "192.168.1.20", Port: 8931}
	if e.Addr() != "192.168.1.20:8931" {
		t.Errorf("got %q", e.Addr())
	}
}

func TestNewManagerStop(t *testing.T) {
	m := NewManager(Config{Name: "Test Engine", Port: 8931})

	select {
	case <-m.ctx.Done():
		t.Fatal("context should start live")
	default:
	}

	m.Stop()

	select {
	case <-m.ctx.Done():
	default:
		t.Error("Stop should cancel the context")
	}
}
