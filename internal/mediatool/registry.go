package mediatool

import (
	"context"
	"fmt"
	"os/exec"
)

// ToolMeta holds static metadata for an external media binary the
// subprocess-backed MediaPrimitive implementation is allowed to invoke.
type ToolMeta struct {
	BinaryPath string // resolved executable path
	VersionArg string // flag used to probe availability, e.g. "-version"
}

// Registry is a whitelist of external tools the MediaPrimitive may shell out
// to. Nothing outside this whitelist is ever exec'd.
type Registry struct {
	tools map[string]ToolMeta
}

// NewRegistry creates a registry from a map of tool metadata.
func NewRegistry(tools map[string]ToolMeta) *Registry {
	return &Registry{tools: tools}
}

// Lookup returns metadata for a tool, or false if not whitelisted.
func (r *Registry) Lookup(name string) (ToolMeta, bool) {
	m, ok := r.tools[name]
	return m, ok
}

// Names returns all registered tool names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for k := range r.tools {
		names = append(names, k)
	}
	return names
}

// Probe verifies a whitelisted tool is runnable, invoking it with its
// version arg and discarding output.
func (r *Registry) Probe(ctx context.Context, name string) error {
	meta, ok := r.tools[name]
	if !ok {
		return fmt.Errorf("tool %q not whitelisted", name)
	}
	cmd := exec.CommandContext(ctx, meta.BinaryPath, meta.VersionArg)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("probe %s: %w", name, err)
	}
	return nil
}
