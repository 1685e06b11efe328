// Package config contains colivrt Config and the code to load it.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strings"

	"github.com/colivhub/colivrt/internal/configtypes"

	"github.com/go-viper/mapstructure/v2"
	"github.com/hashicorp/go-envparse"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix is a prefix of environment variables understood by colivrt.
const EnvPrefix = "COLIVRT"

type Config struct {
	// Log is a configuration for logging.
	Log configtypes.Log `mapstructure:"log" json:"log" toml:"log" yaml:"log"`
	// Realtime describes the connection to the realtime server.
	Realtime configtypes.Realtime `mapstructure:"realtime" json:"realtime" toml:"realtime" yaml:"realtime"`
	// Chat contains room membership and chat intent options.
	Chat configtypes.Chat `mapstructure:"chat" json:"chat" toml:"chat" yaml:"chat"`
	// Bridge configures the global notification bridge.
	Bridge configtypes.Bridge `mapstructure:"bridge" json:"bridge" toml:"bridge" yaml:"bridge"`
	// API is the REST backend used for catch-up reads and fallbacks.
	API configtypes.API `mapstructure:"api" json:"api" toml:"api" yaml:"api"`
	// Auth configures credential storage.
	Auth configtypes.Auth `mapstructure:"auth" json:"auth" toml:"auth" yaml:"auth"`
	// Prometheus metrics endpoint configuration.
	Prometheus configtypes.Prometheus `mapstructure:"prometheus" json:"prometheus" toml:"prometheus" yaml:"prometheus"`
	// DevServer configures the development realtime server.
	DevServer configtypes.DevServer `mapstructure:"devserver" json:"devserver" toml:"devserver" yaml:"devserver"`
}

type Meta struct {
	FileNotFound bool
	UnknownKeys  []string
	UnknownEnvs  []string
}

var defaults = map[string]any{
	"log.level": "info",
	"log.file":  "",

	"realtime.url":                    "http://localhost:5000",
	"realtime.path":                   "/realtime",
	"realtime.transports":             []string{"websocket", "polling"},
	"realtime.connect_timeout":        "10s",
	"realtime.reconnection":           true,
	"realtime.reconnection_attempts":  5,
	"realtime.reconnection_delay":     "1s",
	"realtime.reconnection_delay_max": "5s",
	"realtime.ping_interval":          "25s",
	"realtime.write_timeout":          "1s",
	"realtime.poll_timeout":           "60s",

	"chat.leave_previous_room": true,
	"chat.rejoin_on_reconnect": true,
	"chat.typing_rate_limit":   2.0,

	"bridge.reconnect_on_login":      false,
	"bridge.toast_duration":          "5s",
	"bridge.toast_template":          "{{title}}: {{message}}",
	"bridge.refetch_on_notification": true,
	"bridge.refetch_timeout":         "10s",

	"api.url":     "",
	"api.timeout": "10s",

	"auth.token_file": "",
	"auth.watch":      true,

	"prometheus.enabled": false,
	"prometheus.address": ":9464",

	"devserver.address":         ":5000",
	"devserver.hmac_secret":     "",
	"devserver.allowed_origins": []string{},
	"devserver.poll_timeout":    "25s",
}

func DefineFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().StringP("log.level", "", "info", "set the log level: trace, debug, info, warn, error, fatal or none")
	rootCmd.PersistentFlags().StringP("log.file", "", "", "optional log file - if not specified logs go to STDOUT")
	rootCmd.PersistentFlags().StringP("realtime.url", "", "http://localhost:5000", "base URL of the realtime server")
	rootCmd.PersistentFlags().StringP("api.url", "", "", "base URL of the REST API, defaults to realtime URL")
	rootCmd.PersistentFlags().StringP("auth.token_file", "", "", "path to the stored credential file")
	rootCmd.PersistentFlags().BoolP("prometheus.enabled", "", false, "enable Prometheus metrics endpoint")
	rootCmd.PersistentFlags().StringP("prometheus.address", "", ":9464", "address for Prometheus metrics endpoint")
	rootCmd.PersistentFlags().StringP("devserver.address", "", ":5000", "address for development realtime server")
	rootCmd.PersistentFlags().StringP("devserver.hmac_secret", "", "", "HMAC secret to verify and issue connection tokens")
}

var bindPFlags = []string{
	"log.level", "log.file", "realtime.url", "api.url", "auth.token_file",
	"prometheus.enabled", "prometheus.address", "devserver.address", "devserver.hmac_secret",
}

func GetConfig(cmd *cobra.Command, configFile string) (Config, Meta, error) {
	v := viper.NewWithOptions(viper.WithDecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(" "),
		configtypes.StringToDurationHookFunc(),
	)))

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if cmd != nil {
		for _, flag := range bindPFlags {
			if f := cmd.Flags().Lookup(flag); f != nil {
				_ = v.BindPFlag(flag, f)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	meta := Meta{}

	if configFile != "" {
		v.SetConfigFile(configFile)
		err := v.ReadInConfig()
		if err != nil {
			var configFileNotFoundError *os.PathError
			if errors.As(err, &configFileNotFoundError) {
				meta.FileNotFound = true
			} else {
				return Config{}, Meta{}, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	conf := &Config{}
	err := v.Unmarshal(conf)
	if err != nil {
		return Config{}, Meta{}, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if conf.API.URL == "" {
		conf.API.URL = conf.Realtime.URL
	}

	meta.UnknownKeys = findUnknownKeys(v.AllSettings(), conf, "")
	meta.UnknownEnvs = checkEnvironmentVars(knownEnvVars())

	return *conf, meta, nil
}

// EnvVar is an environment variable understood by colivrt.
type EnvVar struct {
	Name    string
	Key     string
	Default any
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// EnvVars returns all known environment variables sorted by name.
func EnvVars() []EnvVar {
	vars := make([]EnvVar, 0, len(defaults))
	for key, value := range defaults {
		vars = append(vars, EnvVar{Name: envName(key), Key: key, Default: value})
	}
	slices.SortFunc(vars, func(a, b EnvVar) int {
		return strings.Compare(a.Name, b.Name)
	})
	return vars
}

func knownEnvVars() map[string]struct{} {
	known := make(map[string]struct{}, len(defaults))
	for key := range defaults {
		known[envName(key)] = struct{}{}
	}
	return known
}

// findValidKeys recursively finds valid keys in a struct, including embedded structs
func findValidKeys(typ reflect.Type, validKeys map[string]reflect.StructField) {
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag != "" && tag != ",squash" {
			validKeys[tag] = field
		} else if field.Anonymous && strings.Contains(tag, "squash") {
			embeddedType := field.Type
			if embeddedType.Kind() == reflect.Ptr {
				embeddedType = embeddedType.Elem()
			}
			if embeddedType.Kind() == reflect.Struct {
				findValidKeys(embeddedType, validKeys)
			}
		}
	}
}

func findUnknownKeys(data map[string]interface{}, configStruct interface{}, parentKey string) []string {
	var unknownKeys []string
	val := reflect.ValueOf(configStruct)
	if val.Kind() == reflect.Ptr && val.IsNil() {
		val = reflect.New(val.Type().Elem())
	}
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	validKeys := make(map[string]reflect.StructField)
	findValidKeys(val.Type(), validKeys)

	for key, value := range data {
		field, exists := validKeys[key]
		if !exists {
			unknownKeys = append(unknownKeys, appendKeyPath(parentKey, key))
			continue
		}
		fieldValue := val.FieldByName(field.Name)
		if fieldValue.Kind() != reflect.Struct || field.Anonymous {
			continue
		}
		if nestedMap, ok := value.(map[string]interface{}); ok {
			unknownKeys = append(unknownKeys, findUnknownKeys(nestedMap, fieldValue.Interface(), appendKeyPath(parentKey, key))...)
		}
	}
	return unknownKeys
}

func appendKeyPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func checkEnvironmentVars(knownEnvVars map[string]struct{}) []string {
	var unknownEnvs []string
	envPrefix := EnvPrefix + "_"
	for _, envVar := range os.Environ() {
		kv, err := envparse.Parse(strings.NewReader(envVar))
		if err != nil {
			continue
		}
		for envKey := range kv {
			if !strings.HasPrefix(envKey, envPrefix) {
				continue
			}
			if _, ok := knownEnvVars[envKey]; !ok {
				unknownEnvs = append(unknownEnvs, envKey)
			}
		}
	}
	return unknownEnvs
}

// DefaultConfig is a helper to be used in tests.
func DefaultConfig() Config {
	conf, _, err := GetConfig(nil, "")
	if err != nil {
		panic("error during getting default config: " + err.Error())
	}
	return conf
}
