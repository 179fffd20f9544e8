// ABOUTME: Client-side clock synchronization against the engine clock
// ABOUTME: Tracks both offset AND drift to handle clock frequency differences
package bridge

import (
	"log"
	"sync"
	"time"
)

// ClockSync estimates the engine clock from local time. Each remote
// connection owns one; samples come from server/time exchanges.
type ClockSync struct {
	mu             sync.RWMutex
	offset         int64   // Current offset in microseconds (engine - local)
	drift          float64 // Clock drift rate (dimensionless: μs/μs)
	rawOffset      int64   // Latest raw offset measurement
	rtt            int64   // Latest round-trip time
	quality        Quality
	lastSync       time.Time
	lastSyncMicros int64 // Local time (μs) when offset/drift were last updated
	sampleCount    int
	smoothingRate  float64
}

// Quality represents sync quality
type Quality int

const (
	QualityGood Quality = iota
	QualityDegraded
	QualityLost
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityDegraded:
		return "degraded"
	default:
		return "lost"
	}
}

// NewClockSync creates a new clock synchronizer
func NewClockSync() *ClockSync {
	return &ClockSync{
		smoothingRate: 0.1, // 10% weight to new samples
		quality:       QualityLost,
		drift:         0.0,
	}
}

// ProcessSyncResponse folds one sync exchange into the estimate.
// t1 is local transmit time, t2/t3 are the engine's receive and transmit
// times, t4 is local receive time.
func (cs *ClockSync) ProcessSyncResponse(t1, t2, t3, t4 int64) {
	rtt, measuredOffset := calculateOffset(t1, t2, t3, t4)

	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.rtt = rtt
	cs.rawOffset = measuredOffset
	cs.lastSync = time.Now()

	// Discard samples with high RTT (network congestion)
	if rtt > 100000 { // 100ms
		log.Printf("Discarding sync sample: high RTT %dμs", rtt)
		return
	}

	// First sync: initialize offset, no drift yet
	if cs.sampleCount == 0 {
		cs.offset = measuredOffset
		cs.lastSyncMicros = t4
		cs.sampleCount++
		cs.quality = QualityGood
		log.Printf("Initial sync: offset=%dμs, rtt=%dμs", cs.offset, rtt)
		return
	}

	// Second sync: calculate initial drift
	if cs.sampleCount == 1 {
		dt := float64(t4 - cs.lastSyncMicros)
		if dt > 0 {
			cs.drift = float64(measuredOffset-cs.offset) / dt
		}
		cs.offset = measuredOffset
		cs.lastSyncMicros = t4
		cs.sampleCount++
		cs.quality = QualityGood
		return
	}

	// Subsequent syncs: predict offset using drift, then update both
	dt := float64(t4 - cs.lastSyncMicros)
	if dt <= 0 {
		log.Printf("Discarding sync sample: non-monotonic time")
		return
	}

	predictedOffset := cs.offset + int64(cs.drift*dt)
	residual := measuredOffset - predictedOffset

	// Reject outliers (residual > 50ms suggests network issue or clock jump)
	if residual > 50000 || residual < -50000 {
		log.Printf("Discarding sync sample: large residual %dμs (possible clock jump)", residual)
		return
	}

	// Fixed-gain Kalman update on both offset and drift
	cs.offset = predictedOffset + int64(cs.smoothingRate*float64(residual))
	cs.drift = cs.drift + cs.smoothingRate*float64(residual)/dt

	cs.lastSyncMicros = t4
	cs.sampleCount++

	if rtt < 50000 { // <50ms
		cs.quality = QualityGood
	} else {
		cs.quality = QualityDegraded
	}
}

// calculateOffset computes RTT and clock offset from one exchange
func calculateOffset(t1, t2, t3, t4 int64) (rtt, offset int64) {
	rtt = (t4 - t1) - (t3 - t2)

	// Positive offset means the engine clock is ahead of local time
	offset = ((t2 - t1) + (t3 - t4)) / 2

	return
}

// GetOffset returns the current offset estimate
func (cs *ClockSync) GetOffset() int64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.offset
}

// GetStats returns sync statistics
func (cs *ClockSync) GetStats() (offset, rtt int64, quality Quality) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.offset, cs.rtt, cs.quality
}

// CheckQuality updates quality based on time since last sync
func (cs *ClockSync) CheckQuality() Quality {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if time.Since(cs.lastSync) > 5*time.Second {
		cs.quality = QualityLost
	}

	return cs.quality
}

// EngineMicros returns the current time in the engine's reference frame.
// Before the first sync it falls back to raw local time.
func (cs *ClockSync) EngineMicros() int64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	localNow := LocalMicros()
	if cs.sampleCount == 0 {
		return localNow
	}

	// engine_time = local_time + offset + drift * (local_time - last_sync)
	dt := localNow - cs.lastSyncMicros
	return localNow + cs.offset + int64(cs.drift*float64(dt))
}

// EngineToLocalTime converts an engine timestamp to local wall clock time
func (cs *ClockSync) EngineToLocalTime(engineTime int64) time.Time {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	if cs.sampleCount == 0 {
		return time.Unix(0, engineTime*1000)
	}

	// Inverse of the forward transform:
	// engine_time = local_time + offset + drift * (local_time - last_sync)
	// Solving: local_time = (engine_time - offset + drift * last_sync) / (1 + drift)
	numerator := float64(engineTime) - float64(cs.offset) + cs.drift*float64(cs.lastSyncMicros)
	localMicros := int64(numerator / (1.0 + cs.drift))

	return time.Unix(0, localMicros*1000)
}

// LocalMicros returns raw local Unix epoch time in microseconds. Use
// EngineMicros for timestamps shared with the engine.
func LocalMicros() int64 {
	return time.Now().UnixMicro()
}
