// Package intent maps free task text to a ranked set of worker capabilities
// with normalized confidence. Scoring is a pure function of the pattern table
// and the input text.
package intent

// Capability identifies a class of specialized worker.
type Capability string

const (
	CapabilityResearch      Capability = "research"
	CapabilityNavigation    Capability = "navigation"
	CapabilityShopping      Capability = "shopping"
	CapabilityCommunication Capability = "communication"
	CapabilityAutomation    Capability = "automation"
	CapabilityAnalysis      Capability = "analysis"
	CapabilityMonitoring    Capability = "monitoring"
	CapabilitySecurity      Capability = "security"
)

// AllCapabilities returns every known capability in stable order.
func AllCapabilities() []Capability {
	return []Capability{
		CapabilityResearch,
		CapabilityNavigation,
		CapabilityShopping,
		CapabilityCommunication,
		CapabilityAutomation,
		CapabilityAnalysis,
		CapabilityMonitoring,
		CapabilitySecurity,
	}
}

// Valid reports whether the capability is one of the known set.
func (c Capability) Valid() bool {
	for _, known := range AllCapabilities() {
		if c == known {
			return true
		}
	}
	return false
}
