// ABOUTME: Tests for client-side clock synchronization
// ABOUTME: Covers RTT calculation, drift tracking, and sample rejection
package bridge

import (
	"math"
	"testing"
	"time"
)

func TestRTTCalculation(t *testing.T) {
	// Simulate a sync exchange with 4.5ms RTT
	t1 := int64(1000000) // Local send (Unix µs)
	t2 := int64(2000)    // Engine receive (engine clock µs)
	t3 := int64(2500)    // Engine send, +0.5ms processing
	t4 := int64(1005000) // Local receive, +5ms total

	cs := NewClockSync()
	cs.ProcessSyncResponse(t1, t2, t3, t4)

	// RTT = (t4-t1) - (t3-t2) = 5000 - 500 = 4500µs
	_, rtt, _ := cs.GetStats()
	if rtt != 4500 {
		t.Errorf("expected RTT 4500µs, got %dµs", rtt)
	}
}

func TestInitialSync(t *testing.T) {
	cs := NewClockSync()

	if _, _, quality := cs.GetStats(); quality != QualityLost {
		t.Errorf("expected QualityLost before any sync, got %v", quality)
	}

	// Zero-RTT exchange: local clock at 1s, engine clock at 1.5s
	cs.ProcessSyncResponse(1000000, 1500000, 1500000, 1000000)

	offset, _, quality := cs.GetStats()
	if offset != 500000 {
		t.Errorf("expected offset 500000µs, got %dµs", offset)
	}
	if quality != QualityGood {
		t.Errorf("expected QualityGood after first sync, got %v", quality)
	}
}

// syncAt feeds a symmetric zero-RTT exchange: local clock reads localUs,
// engine clock reads engineUs
func syncAt(cs *ClockSync, localUs, engineUs int64) {
	cs.ProcessSyncResponse(localUs, engineUs, engineUs, localUs)
}

func TestDriftEstimation(t *testing.T) {
	cs := NewClockSync()

	// Engine clock gains 1000µs per local second
	syncAt(cs, 1000000, 1500000)
	syncAt(cs, 2000000, 2501000)

	if math.Abs(cs.drift-0.001) > 1e-9 {
		t.Errorf("expected drift 0.001, got %.9f", cs.drift)
	}

	// A third sample right on the predicted line leaves drift alone
	syncAt(cs, 3000000, 3502000)
	if math.Abs(cs.drift-0.001) > 1e-9 {
		t.Errorf("expected drift to stay 0.001, got %.9f", cs.drift)
	}
	if offset := cs.GetOffset(); offset != 502000 {
		t.Errorf("expected offset 502000µs, got %dµs", offset)
	}
	if cs.sampleCount != 3 {
		t.Errorf("expected 3 samples, got %d", cs.sampleCount)
	}
}

func TestHighRTTRejection(t *testing.T) {
	cs := NewClockSync()
	syncAt(cs, 1000000, 1500000)

	// 249.9ms RTT sample must be discarded
	cs.ProcessSyncResponse(2000000, 2000, 2100, 2250000)

	if offset := cs.GetOffset(); offset != 500000 {
		t.Errorf("expected offset unchanged at 500000µs, got %dµs", offset)
	}
	if cs.sampleCount != 1 {
		t.Errorf("expected sample count to stay 1, got %d", cs.sampleCount)
	}
}

func TestResidualOutlierRejection(t *testing.T) {
	cs := NewClockSync()

	// Two samples establish offset 500ms with zero drift
	syncAt(cs, 1000000, 1500000)
	syncAt(cs, 2000000, 2500000)

	// A 60ms jump exceeds the residual window and is discarded
	syncAt(cs, 3000000, 3560000)

	if offset := cs.GetOffset(); offset != 500000 {
		t.Errorf("expected offset unchanged at 500000µs, got %dµs", offset)
	}
	if cs.sampleCount != 2 {
		t.Errorf("expected sample count to stay 2, got %d", cs.sampleCount)
	}
}

func TestQualityDegradesOnSlowNetwork(t *testing.T) {
	cs := NewClockSync()
	syncAt(cs, 1000000, 1500000)
	syncAt(cs, 2000000, 2500000)

	// 80ms RTT with an on-prediction offset: accepted but degraded
	cs.ProcessSyncResponse(3000000, 3540000, 3540000, 3080000)

	_, rtt, quality := cs.GetStats()
	if rtt != 80000 {
		t.Errorf("expected RTT 80000µs, got %dµs", rtt)
	}
	if quality != QualityDegraded {
		t.Errorf("expected QualityDegraded, got %v", quality)
	}
}

func TestQualityLostAfterSilence(t *testing.T) {
	cs := NewClockSync()
	syncAt(cs, 1000000, 1500000)

	if quality := cs.CheckQuality(); quality != QualityGood {
		t.Errorf("expected QualityGood right after sync, got %v", quality)
	}

	cs.mu.Lock()
	cs.lastSync = time.Now().Add(-6 * time.Second)
	cs.mu.Unlock()

	if quality := cs.CheckQuality(); quality != QualityLost {
		t.Errorf("expected QualityLost after 6s of silence, got %v", quality)
	}
}

func TestEngineToLocalTime(t *testing.T) {
	cs := NewClockSync()

	// Before sync, engine time is taken at face value
	got := cs.EngineToLocalTime(1000000)
	if !got.Equal(time.Unix(0, 1000000*1000)) {
		t.Errorf("expected identity conversion before sync, got %v", got)
	}

	syncAt(cs, 1000000, 1500000)
	syncAt(cs, 2000000, 2500000)

	// Zero drift: local time is engine time minus the 500ms offset
	got = cs.EngineToLocalTime(2500000)
	want := time.Unix(0, 2000000*1000)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestEngineMicrosBeforeSync(t *testing.T) {
	cs := NewClockSync()

	before := LocalMicros()
	engineNow := cs.EngineMicros()
	after := LocalMicros()

	if engineNow < before || engineNow > after {
		t.Errorf("expected raw local time before sync, got %d outside [%d, %d]",
			engineNow, before, after)
	}
}

func TestQualityString(t *testing.T) {
	tests := []struct {
		quality Quality
		want    string
	}{
		{QualityGood, "good"},
		{QualityDegraded, "degraded"},
		{QualityLost, "lost"},
	}
	for _, tt := range tests {
		if got := tt.quality.String(); got != tt.want {
			t.Errorf("Quality(%d).String() = %q, want %q", tt.quality, got, tt.want)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	cs := NewClockSync()
	syncAt(cs, 1000000, 1500000)

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(n int) {
			for j := 0; j < 100; j++ {
				cs.GetStats()
				cs.CheckQuality()
				cs.EngineMicros()
				cs.EngineToLocalTime(int64(j * 1000))
				syncAt(cs, int64(2000000+n*1000+j), int64(2500000+n*1000+j))
			}
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	if _, _, quality := cs.GetStats(); quality == QualityLost {
		t.Error("unexpected QualityLost after concurrent access")
	}
}
