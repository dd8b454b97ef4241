// ABOUTME: Closed set of capabilities the gateway exposes as MCP tools.
// ABOUTME: Unknown names resolve to a typed error, never to a default capability.

package mcp

import (
	"encoding/json"
	"errors"
)

// Capability identifies a registered tool.
type Capability int

const (
	// CapabilityDeepResearch runs the plan-then-research pipeline.
	CapabilityDeepResearch Capability = iota + 1
)

// ToolDeepResearch is the wire name of CapabilityDeepResearch.
const ToolDeepResearch = "deep_research"

var capabilityNames = map[Capability]string{
	CapabilityDeepResearch: ToolDeepResearch,
}

// String returns the wire name of the capability.
func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return "unknown"
}

// ErrUnknownCapability matches every *UnknownCapabilityError.
var ErrUnknownCapability = errors.New("unknown capability")

// ErrInvalidArguments is returned when tool arguments have the wrong shape.
var ErrInvalidArguments = errors.New("invalid arguments")

// UnknownCapabilityError reports a call naming a capability that is not registered.
type UnknownCapabilityError struct {
	Name string
}

func (e *UnknownCapabilityError) Error() string {
	return "unknown capability: " + e.Name
}

// Is reports whether target is ErrUnknownCapability.
func (e *UnknownCapabilityError) Is(target error) bool {
	return target == ErrUnknownCapability
}

// ParseCapability resolves a wire name to a Capability.
func ParseCapability(name string) (Capability, error) {
	for c, n := range capabilityNames {
		if n == name {
			return c, nil
		}
	}
	return 0, &UnknownCapabilityError{Name: name}
}

const deepResearchSchema = `{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`

// Capabilities returns the descriptors advertised by tools/list.
func Capabilities() []MCPToolInfo {
	return []MCPToolInfo{
		{
			Name:        ToolDeepResearch,
			Description: "Run deep research with web search",
			InputSchema: json.RawMessage(deepResearchSchema),
		},
	}
}

// CapabilityNames returns the wire names of all registered capabilities.
func CapabilityNames() []string {
	infos := Capabilities()
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}
