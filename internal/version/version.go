// ABOUTME: Version and product identity constants
// ABOUTME: Reported in bridge handshakes and mDNS TXT records
package version

const (
	// Version is the engine version string.
	Version = "0.3.0"

	// Product is the product name reported to connected editors.
	Product = "Previz Engine"

	// Manufacturer identifies the project in device info payloads.
	Manufacturer = "Previz Studio"
)
