package commands

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/matchctl/internal/app"
)

const (
	// envPrefix marks matchctl settings in the environment. Nesting uses a double
	// underscore: MATCHCTL_STORAGE__TYPE sets storage.type.
	envPrefix = "MATCHCTL_"

	// envConfigPath names a config file when --config is not given.
	envConfigPath = envPrefix + "CONFIG"
)

// loadConfig layers the config file, MATCHCTL_* variables and explicitly set flags, in that
// order, then fills defaults and validates the result.
func loadConfig(configPath string, cmd *cli.Command, environ func() []string) (*app.Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		configPath = lookupEnv(environ, envConfigPath)
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        envPrefix,
		TransformFunc: envKey,
		EnvironFunc:   environ,
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	if cmd != nil {
		if err := k.Load(confmap.Provider(flagValues(cmd), "."), nil); err != nil {
			return nil, fmt.Errorf("loading CLI flags: %w", err)
		}
	}

	cfg := &app.Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envKey maps MATCHCTL_API__BASE_URL to api.base_url. MATCHCTL_CONFIG selects the file
// and is not a setting itself.
func envKey(key, value string) (string, any) {
	if key == envConfigPath {
		return "", nil
	}
	path := strings.TrimPrefix(key, envPrefix)
	return strings.ToLower(strings.ReplaceAll(path, "__", ".")), value
}

func lookupEnv(environ func() []string, key string) string {
	for _, kv := range environ() {
		if name, value, ok := strings.Cut(kv, "="); ok && name == key {
			return value
		}
	}
	return ""
}

// flagValues returns the flags set on cmd or its parents keyed by config path:
// --storage--dir becomes storage.dir and --log-level becomes log_level. The config flag
// itself and unset flags are skipped so they do not mask file or environment values.
func flagValues(cmd *cli.Command) map[string]any {
	values := make(map[string]any)
	for _, name := range cmd.FlagNames() {
		if name == "config" || !cmd.IsSet(name) {
			continue
		}
		value := cmd.Value(name)
		if value == nil {
			continue
		}
		key := strings.ReplaceAll(name, "--", ".")
		values[strings.ReplaceAll(key, "-", "_")] = value
	}
	return values
}
