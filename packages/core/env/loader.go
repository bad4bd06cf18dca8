package env

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// VariablePrefix marks process environment variables that become template
// variables: APICONTRACT_VAR_token=abc defines {{token}}.
const VariablePrefix = "APICONTRACT_VAR_"

type Environment struct {
	Name      string
	Variables map[string]any
}

// LoadEnvironment selects one named environment from the configured ones.
// An empty name yields an empty environment; an unknown name is an error.
func LoadEnvironment(envName string, configEnvs map[string]map[string]any) (*Environment, error) {
	env := &Environment{
		Name:      envName,
		Variables: make(map[string]any),
	}
	if envName == "" {
		return env, nil
	}

	vars, ok := configEnvs[envName]
	if !ok {
		names := make([]string, 0, len(configEnvs))
		for name := range configEnvs {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown environment %q (available: %s)", envName, strings.Join(names, ", "))
	}
	for k, v := range vars {
		env.Variables[k] = v
	}
	return env, nil
}

// MergeVariables merges maps left to right; later sources win.
func MergeVariables(sources ...map[string]any) map[string]any {
	result := make(map[string]any)
	for _, src := range sources {
		for k, v := range src {
			result[k] = v
		}
	}
	return result
}

// StringVariables converts dotenv output to variables.
func StringVariables(vars map[string]string) map[string]any {
	result := make(map[string]any, len(vars))
	for k, v := range vars {
		result[k] = v
	}
	return result
}

// LoadSystemEnv returns environment variables whose name starts with
// prefix, with the prefix removed.
func LoadSystemEnv(prefix string) map[string]any {
	result := make(map[string]any)
	for _, e := range os.Environ() {
		key, value, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		if prefix == "" {
			result[key] = value
		} else if len(key) > len(prefix) && strings.HasPrefix(key, prefix) {
			result[key[len(prefix):]] = value
		}
	}
	return result
}
