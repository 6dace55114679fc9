package configstore

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Settings is the typed view of the well known snapshot keys. Anything the
// schema does not name is kept in Extensions.
type Settings struct {
	AppName        string          `mapstructure:"app_name"`
	Environment    string          `mapstructure:"environment"`
	Debug          bool            `mapstructure:"debug"`
	Retries        int             `mapstructure:"retries"`
	TimeoutSeconds int             `mapstructure:"timeout_seconds"`
	Database       DatabaseSection `mapstructure:"database"`
	Cache          CacheSection    `mapstructure:"cache"`
	FeatureFlags   map[string]bool `mapstructure:"feature_flags"`

	Extensions map[string]any `mapstructure:",remain"`
}

// DatabaseSection holds durable store settings.
type DatabaseSection struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	PoolSize int    `mapstructure:"pool_size"`
}

// CacheSection holds cache server settings.
type CacheSection struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	DB   int    `mapstructure:"db"`
}

// Settings decodes the snapshot into the typed schema. Environment overrides
// arrive as strings, so scalar fields are decoded with weak typing.
func (s *Snapshot) Settings() (Settings, error) {
	var out Settings

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return Settings{}, fmt.Errorf("configstore: settings decoder: %w", err)
	}

	if err := decoder.Decode(s.ListAll()); err != nil {
		return Settings{}, fmt.Errorf("configstore: decode settings: %w", err)
	}
	return out, nil
}
