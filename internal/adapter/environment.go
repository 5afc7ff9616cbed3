package adapter

import (
	"fmt"
	"slices"
	"strings"
)

// Environment is the runtime context the hosting process reports. It is
// injected, never detected here.
type Environment string

const (
	EnvServer  Environment = "server"
	EnvBrowser Environment = "browser"
)

// EnvironmentRequirements declares where an adapter can run.
type EnvironmentRequirements struct {
	SupportedEnvironments []Environment `yaml:"supported_environments" json:"supportedEnvironments"`
	// Limitations is informational only.
	Limitations []string `yaml:"limitations,omitempty" json:"limitations,omitempty"`
}

// Matches reports whether an adapter declaring declared can run in detected.
// A nil declaration means universal support.
func Matches(declared *EnvironmentRequirements, detected Environment) bool {
	if declared == nil {
		return true
	}
	return slices.Contains(declared.SupportedEnvironments, detected)
}

// ParseEnvironment converts a host supplied tag into an Environment.
func ParseEnvironment(s string) (Environment, error) {
	switch env := Environment(strings.ToLower(strings.TrimSpace(s))); env {
	case EnvServer, EnvBrowser:
		return env, nil
	case "":
		return "", fmt.Errorf("environment is empty")
	default:
		return "", fmt.Errorf("unknown environment %q", s)
	}
}

// ServerOnly is the declaration for adapters that need filesystem, shell or
// long lived socket access.
func ServerOnly(limitations ...string) *EnvironmentRequirements {
	return &EnvironmentRequirements{
		SupportedEnvironments: []Environment{EnvServer},
		Limitations:           limitations,
	}
}
