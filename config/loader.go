package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Load reads path as a HuJSON document (JSON with comments and trailing
// commas) and unmarshals it into a Config, standardizing it to plain JSON
// first via github.com/tailscale/hujson, the same library and two-step
// standardize-then-unmarshal shape calvinalkan-agent-task uses for its own
// config file. Config-file discovery (search paths, environment overrides
// beyond the tokens ResolveDiskCachePath understands) is out of scope: the
// caller names the path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %q: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid HuJSON in %q: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: invalid JSON in %q: %w", path, err)
	}

	return cfg, nil
}
