package config

import (
	"io/fs"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	EnvPrefix = "KNOTX"

	chainEnvPrefix = EnvPrefix + "_CHAINS_"
)

// list-valued chain settings accept comma separated environment values
var listSettings = map[string]bool{
	"rpc_urls": true,
	"api_keys": true,
}

// settings copied verbatim from the environment, never parsed as yaml scalars
var stringSettings = map[string]bool{
	"private_key":        true,
	"relayer_key":        true,
	"relayer_public_key": true,
	"relayer_address":    true,
}

// Load reads the yaml config at path, applying KNOTX_* environment overrides.
// Variables in a .env file of the working directory are loaded first.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "failed to load .env")
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultConfig(path)
	setDefaults(v, def)

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}

	c := def
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrapf(err, "failed to decode config %s", path)
	}
	c.ConfigPath = path
	if err := applyChainEnv(c.Chains, os.Environ()); err != nil {
		return nil, err
	}
	return &c, nil
}

// setDefaults registers the scalar keys so that AutomaticEnv can override them.
func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("database.driver", c.Database.Driver)
	v.SetDefault("database.url", c.Database.URL)
	v.SetDefault("retry.max_attempts", c.Retry.MaxAttempts)
	v.SetDefault("retry.delay", c.Retry.Delay)
	v.SetDefault("retry.backoff_multiplier", c.Retry.BackoffMultiplier)
	v.SetDefault("reconciler.mode", string(c.Reconciler.Mode))
	v.SetDefault("reconciler.stale_after", c.Reconciler.StaleAfter)
	v.SetDefault("reconciler.batch_size", c.Reconciler.BatchSize)
	v.SetDefault("reconciler.schedule", c.Reconciler.Schedule)
	v.SetDefault("kafka.brokers", c.Kafka.Brokers)
	v.SetDefault("kafka.topic", c.Kafka.Topic)
	v.SetDefault("kafka.write_timeout", c.Kafka.WriteTimeout)
	v.SetDefault("server.addr", c.Server.Addr)
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.format", c.Log.Format)
	v.SetDefault("log.output", c.Log.Output)
	v.SetDefault("workers", c.Workers)
	v.SetDefault("grace_period", c.GracePeriod)
	v.SetDefault("outcome_cache_size", c.OutcomeCacheSize)
}

// ChainEnvName returns the environment prefix of a chain's settings,
// e.g. KNOTX_CHAINS_CASPER_TESTNET_ for "casper-testnet".
func ChainEnvName(chain string) string {
	r := strings.NewReplacer("-", "_", ".", "_", " ", "_")
	return chainEnvPrefix + strings.ToUpper(r.Replace(chain)) + "_"
}

// applyChainEnv overlays KNOTX_CHAINS_<NAME>_<KEY> variables on the chain settings.
func applyChainEnv(chains []ChainEntry, environ []string) error {
	for i := range chains {
		prefix := ChainEnvName(chains[i].Name)
		for _, kv := range environ {
			k, val, ok := strings.Cut(kv, "=")
			if !ok || !strings.HasPrefix(k, prefix) || len(k) == len(prefix) {
				continue
			}
			key := strings.ToLower(strings.TrimPrefix(k, prefix))
			if chains[i].Settings == nil {
				chains[i].Settings = make(map[string]any)
			}
			switch {
			case listSettings[key]:
				chains[i].Settings[key] = splitList(val)
			case stringSettings[key]:
				chains[i].Settings[key] = val
			default:
				var scalar any
				if err := yaml.Unmarshal([]byte(val), &scalar); err != nil {
					return errors.Wrapf(err, "invalid value of %s", k)
				}
				chains[i].Settings[key] = scalar
			}
		}
	}
	return nil
}

func splitList(s string) []any {
	var out []any
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DecodeSettings decodes a chain's free-form settings into out, keeping the
// values out already holds for keys the settings do not name.
func DecodeSettings(settings map[string]any, out any) error {
	if len(settings) == 0 {
		return nil
	}
	bz, err := yaml.Marshal(settings)
	if err != nil {
		return errors.Wrap(err, "failed to encode chain settings")
	}
	if err := yaml.UnmarshalStrict(bz, out); err != nil {
		return errors.Wrap(err, "failed to decode chain settings")
	}
	return nil
}

// MarshalYAML renders the config as it is written by config init.
func MarshalYAML(c Config) ([]byte, error) {
	return yaml.Marshal(c)
}
