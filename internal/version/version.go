// ABOUTME: Version and product identification constants
// ABOUTME: Reported in hellos, the status endpoint and the version command
package version

const (
	// Version is the software version
	Version = "0.3.0"

	// Product is the product name sent to lighting endpoints
	Product = "FruityPi Visualizer"

	// Manufacturer identifies who builds the software
	Manufacturer = "FruityPi"
)
