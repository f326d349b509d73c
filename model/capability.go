// Package model provides capability-based model selection for compiler stages.
// Instead of hardcoding model names, each stage asks for a capability
// (reasoning, pseudocode, coding) and the registry resolves it to available
// endpoints with fallback chains.
package model

// Capability represents a semantic capability for model selection.
type Capability string

const (
	// CapabilityReasoning is for decomposing an instruction into a logic plan.
	CapabilityReasoning Capability = "reasoning"

	// CapabilityPseudocode is for rendering a logic plan as pseudocode.
	CapabilityPseudocode Capability = "pseudocode"

	// CapabilityCoding is for code generation and repair.
	CapabilityCoding Capability = "coding"

	// CapabilityFast is for quick responses, simple tasks.
	CapabilityFast Capability = "fast"
)

// Compiler stage names. They label completion calls in audit records and
// metrics.
const (
	StageReasoning  = "reasoning"
	StagePseudocode = "pseudocode"
	StageCode       = "code"
	StageRepair     = "repair"
)

// StageCapabilities maps compiler stages to their default capability.
var StageCapabilities = map[string]Capability{
	StageReasoning:  CapabilityReasoning,
	StagePseudocode: CapabilityPseudocode,
	StageCode:       CapabilityCoding,
	StageRepair:     CapabilityCoding,
}

// CapabilityForStage returns the default capability for a compiler stage.
// Returns CapabilityFast for unknown stages.
func CapabilityForStage(stage string) Capability {
	if c, ok := StageCapabilities[stage]; ok {
		return c
	}
	return CapabilityFast
}

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityReasoning, CapabilityPseudocode, CapabilityCoding, CapabilityFast:
		return true
	}
	return false
}

// String returns the string representation of the capability.
func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts a string to a Capability, returning empty for invalid values.
func ParseCapability(s string) Capability {
	c := Capability(s)
	if c.IsValid() {
		return c
	}
	return ""
}
