package options

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader fills an options struct from flags, an optional config file and
// environment variables named <PREFIX>_<SECTION>_<KEY>, e.g.
// VCONSOLE_CONSOLE_BACKEND_URL. Explicit flags win over the environment,
// which wins over the config file.
type Loader struct {
	v *viper.Viper
}

// NewLoader binds fs and reads configFile when it is set.
func NewLoader(envPrefix, configFile string, fs *pflag.FlagSet) (*Loader, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	return &Loader{v: v}, nil
}

// Unmarshal decodes the merged settings into target using its mapstructure
// tags.
func (l *Loader) Unmarshal(target any) error {
	return l.v.Unmarshal(target)
}

// ConfigFile returns the config file in use, if any.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// GetString returns the current value of key.
func (l *Loader) GetString(key string) string {
	return l.v.GetString(key)
}

// Watch calls onChange after every write to the config file. It does nothing
// when no config file was loaded.
func (l *Loader) Watch(onChange func(fsnotify.Event)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(onChange)
	l.v.WatchConfig()
}
