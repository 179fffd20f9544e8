// ABOUTME: High-level client API for preview engines
// ABOUTME: Connects editors and monitors to an engine over the bridge protocol
// Package previz provides a high-level client API for preview engines.
//
// A Client connects to a running engine over its WebSocket bridge,
// keeps a drift-corrected estimate of the engine clock, and reports
// frames, transport state, and errors through callbacks:
//
//	client, err := previz.NewClient(previz.Config{
//	    ServerAddr: "localhost:8931",
//	    Name:       "Edit Bay 2",
//	    OnFrame: func(f previz.Frame) {
//	        fmt.Printf("t=%.2fs layers=%d\n", f.Time, len(f.Layers))
//	    },
//	})
//	err = client.Connect()
//	client.Play()
//
// Leave ServerAddr empty to connect to the first engine discovered on
// the local network, or call Discover to list them all:
//
//	engines, err := previz.Discover(5 * time.Second)
//	for _, e := range engines {
//	    fmt.Printf("Found: %s at %s\n", e.Name, e.Addr())
//	}
package previz
