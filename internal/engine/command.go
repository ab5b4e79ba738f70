package engine

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/wagiedev/unity-bridge-go/internal/config"
	"github.com/wagiedev/unity-bridge-go/internal/message"
)

// PrefixEnv announces the structured message prefix to the engine process.
const PrefixEnv = "UNITY_BRIDGE_PREFIX"

// BuildArgs returns the engine command line arguments.
func BuildArgs(options *config.Options) []string {
	return slices.Clone(options.EngineArgs)
}

// BuildEnvironment constructs the environment for the engine process: the
// current environment, the prefix announcement, then options.Env in key
// order. Later entries win.
func BuildEnvironment(options *config.Options) []string {
	env := os.Environ()

	prefix := options.Prefix
	if prefix == "" {
		prefix = message.Prefix
	}

	env = append(env, fmt.Sprintf("%s=%s", PrefixEnv, prefix))

	for _, key := range slices.Sorted(maps.Keys(options.Env)) {
		env = append(env, fmt.Sprintf("%s=%s", key, options.Env[key]))
	}

	return env
}
