// ABOUTME: Diagnostic client for a running preview engine
// ABOUTME: Syncs clocks, drives the transport, and measures frame cadence
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Previz-Studio/previz-go/internal/bridge"
	"github.com/Previz-Studio/previz-go/internal/discovery"
	"github.com/Previz-Studio/previz-go/internal/protocol"
)

var (
	serverAddr = flag.String("server", "", "Engine address (default: discover via mDNS)")
	name       = flag.String("name", "test-timeline", "Client name")
	observeSec = flag.Int("observe", 10, "Seconds of playback to observe")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)

	fmt.Println("=== Previz Timeline Test ===")
	fmt.Println("This test will:")
	fmt.Println("1. Connect to a preview engine")
	fmt.Println("2. Sync the engine clock over echo samples")
	fmt.Println("3. Play the timeline and measure frame cadence")
	fmt.Println()

	addr := *serverAddr
	if addr == "" {
		fmt.Println("Browsing for engines...")
		disc := discovery.NewManager(discovery.Config{Name: *name})
		disc.Browse()
		select {
		case engine := <-disc.Engines():
			addr = engine.Addr()
			fmt.Printf("Discovered %s at %s\n", engine.Name, addr)
		case <-time.After(10 * time.Second):
			log.Fatalf("No engine found after 10 seconds")
		}
		disc.Stop()
	}

	remote := bridge.NewRemote(bridge.RemoteConfig{
		ServerAddr: addr,
		ClientID:   uuid.New().String(),
		Name:       *name,
		Roles:      []string{"editor", "monitor"},
	})
	if err := remote.Connect(); err != nil {
		log.Fatalf("Connection failed: %v", err)
	}
	defer remote.Close()

	info := remote.ServerInfo()
	fmt.Printf("Engine: %s (software %s, protocol %d)\n", info.Name, info.Software, info.Version)
	fmt.Printf("Sequence: %q, canvas %gx%g\n", info.Sequence, info.CanvasW, info.CanvasH)
	fmt.Println()

	cs := syncClock(remote)
	offset, rtt, quality := cs.GetStats()
	fmt.Printf("Clock sync: offset=%dμs rtt=%dμs quality=%s\n\n", offset, rtt, quality)

	measureFrames(remote, time.Duration(*observeSec)*time.Second)
}

// syncClock runs a burst of echo samples through the offset estimator
func syncClock(remote *bridge.Remote) *bridge.ClockSync {
	cs := bridge.NewClockSync()

	fmt.Println("Syncing clock (10 samples)...")
	for i := 0; i < 10; i++ {
		t1 := bridge.LocalMicros()
		if err := remote.SendTimeSync(t1); err != nil {
			log.Printf("Time sync send failed: %v", err)
			continue
		}

		select {
		case resp := <-remote.TimeSyncResp:
			t4 := bridge.LocalMicros()
			cs.ProcessSyncResponse(resp.ClientTransmitted, resp.ServerReceived, resp.ServerTransmitted, t4)
		case <-time.After(2 * time.Second):
			log.Printf("Time sync timeout")
		}

		time.Sleep(200 * time.Millisecond)
	}
	return cs
}

// measureFrames plays the timeline and reports the frame stream cadence
func measureFrames(remote *bridge.Remote, observe time.Duration) {
	fmt.Printf("Playing for %s...\n", observe)
	if err := remote.SendTransport(protocol.TransportCommand{Action: "play"}); err != nil {
		log.Fatalf("Play failed: %v", err)
	}

	deadline := time.After(observe)
	var (
		frames   int
		lastAt   time.Time
		minGap   time.Duration
		maxGap   time.Duration
		totalGap time.Duration
	)

	for done := false; !done; {
		select {
		case frame := <-remote.Frames:
			now := time.Now()
			if frames > 0 {
				gap := now.Sub(lastAt)
				totalGap += gap
				if minGap == 0 || gap < minGap {
					minGap = gap
				}
				if gap > maxGap {
					maxGap = gap
				}
			}
			lastAt = now
			frames++
			if frames%60 == 0 {
				fmt.Printf("  %d frames, position %.2fs, %d layers\n", frames, frame.Time, len(frame.Layers))
			}

		case state := <-remote.States:
			fmt.Printf("  transport: playing=%v rate=%.2fx duration=%.1fs\n",
				state.Playing, state.Rate, state.Duration)

		case <-deadline:
			done = true
		}
	}

	remote.SendTransport(protocol.TransportCommand{Action: "pause"})

	fmt.Println()
	fmt.Printf("Frames received: %d over %s\n", frames, observe)
	if frames > 1 && totalGap > 0 {
		avg := totalGap / time.Duration(frames-1)
		fmt.Printf("Frame gap: avg=%s min=%s max=%s (%.1f fps)\n",
			avg.Round(time.Millisecond), minGap.Round(time.Millisecond),
			maxGap.Round(time.Millisecond), float64(time.Second)/float64(avg))
	}
}
