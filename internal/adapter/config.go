package adapter

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ToolCommand configures one external tool invocation for a stage.
type ToolCommand struct {
	Command        []string `yaml:"command"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
}

// ToolConfig maps stage names onto tool invocations. Stages without an
// entry are reported as skipped by adapters that rely on external
// runners.
type ToolConfig struct {
	Tools map[string]ToolCommand `yaml:"tools"`
}

func ParseToolConfig(input []byte) (ToolConfig, error) {
	var cfg ToolConfig
	if err := yaml.Unmarshal(input, &cfg); err != nil {
		return ToolConfig{}, fmt.Errorf("decode tool config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return ToolConfig{}, err
	}
	return cfg, nil
}

func LoadToolConfig(path string) (ToolConfig, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return ToolConfig{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return ToolConfig{}, fmt.Errorf("read tool config: %w", err)
	}
	return ParseToolConfig(raw)
}

func (c ToolConfig) Validate() error {
	for stage, tool := range c.Tools {
		if !KnownStage(stage) {
			return fmt.Errorf("tools.%s: unknown stage", stage)
		}
		if len(tool.Command) == 0 {
			return fmt.Errorf("tools.%s.command must be non-empty", stage)
		}
		if strings.TrimSpace(tool.Command[0]) == "" {
			return fmt.Errorf("tools.%s.command[0] must be non-empty", stage)
		}
		if tool.TimeoutSeconds < 0 {
			return fmt.Errorf("tools.%s.timeout_seconds must be >= 0", stage)
		}
	}
	return nil
}

// Tool returns the configured command for a stage, if any.
func (c ToolConfig) Tool(stage string) (ToolCommand, bool) {
	tool, ok := c.Tools[strings.ToLower(strings.TrimSpace(stage))]
	return tool, ok
}
