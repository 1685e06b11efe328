package configtypes

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Duration is a time.Duration written as "5s" in config files.
type Duration time.Duration

func (d Duration) String() string {
	return d.ToDuration().String()
}

func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// MarshalText is used by go-toml.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

var durationType = reflect.TypeOf(Duration(0))

// StringToDurationHookFunc decodes "1s" strings into Duration. Plain
// numbers keep mapstructure semantics and are read as nanoseconds.
func StringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != durationType || f.Kind() != reflect.String {
			return data, nil
		}
		v, err := time.ParseDuration(data.(string))
		if err != nil {
			return nil, err
		}
		return Duration(v), nil
	}
}
