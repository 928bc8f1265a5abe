// Package config loads the gimbal configuration from defaults, an optional
// YAML file and GIMBAL_ environment variables, in that order of precedence.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/w1xm/galil_gimbal/gimbal"
)

const (
	// DefaultFile is read when no other file is named.
	DefaultFile = "gimbal.yml"
	// EnvPrefix selects the environment variables that override the file.
	// Nested keys are separated by a double underscore, for example
	// GIMBAL_WAIT__TIMEOUT=500ms.
	EnvPrefix = "GIMBAL_"
)

type Listen struct {
	HTTP    string `koanf:"http"`
	Rotctld string `koanf:"rotctld"`
}

type Influx struct {
	Server string `koanf:"server"`
	Token  string `koanf:"token"`
	Org    string `koanf:"org"`
	Bucket string `koanf:"bucket"`
}

type Log struct {
	Level string `koanf:"level"`
}

// Config is the complete process configuration.
type Config struct {
	Connection string `koanf:"connection"`
	// Simulate attaches to an in-process simulated controller.
	Simulate  bool   `koanf:"simulate"`
	StateFile string `koanf:"state_file"`

	Streaming       bool              `koanf:"streaming"`
	AssumeZero      bool              `koanf:"assume_zero"`
	Limits          gimbal.AxisLimits `koanf:"limits"`
	CountsPerDegree gimbal.Scale      `koanf:"counts_per_degree"`
	Motion          gimbal.Motion     `koanf:"motion"`
	Deadband        gimbal.Deadband   `koanf:"deadband"`
	Wait            gimbal.Wait       `koanf:"wait"`
	Connect         gimbal.Connect    `koanf:"connect"`

	Listen Listen `koanf:"listen"`
	Influx Influx `koanf:"influx"`
	Log    Log    `koanf:"log"`
}

func Default() Config {
	g := gimbal.DefaultConfig()
	return Config{
		StateFile:       "gimbal_state/position.txt",
		Streaming:       g.Streaming,
		AssumeZero:      g.AssumeZero,
		Limits:          g.Limits,
		CountsPerDegree: g.CountsPerDegree,
		Motion:          g.Motion,
		Deadband:        g.Deadband,
		Wait:            g.Wait,
		Connect:         g.Connect,
		Listen: Listen{
			HTTP:    "127.0.0.1:8502",
			Rotctld: ":4533",
		},
		Influx: Influx{
			Server: "http://localhost:9999",
			Org:    "w1xm",
			Bucket: "gimbal.raw",
		},
		Log: Log{Level: "info"},
	}
}

// Gimbal returns the part of the configuration that describes the gimbal.
func (c Config) Gimbal() gimbal.Config {
	return gimbal.Config{
		Connection:      c.Connection,
		Limits:          c.Limits,
		CountsPerDegree: c.CountsPerDegree,
		Streaming:       c.Streaming,
		AssumeZero:      c.AssumeZero,
		Motion:          c.Motion,
		Deadband:        c.Deadband,
		Wait:            c.Wait,
		Connect:         c.Connect,
	}
}

func (c Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	return c.Gimbal().Validate()
}

// SetupLogging applies the configured log level.
func (c Config) SetupLogging() error {
	lvl, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return errors.Wrap(err, "log.level")
	}
	logrus.SetLevel(lvl)
	return nil
}

// Loader holds the merged configuration sources.
type Loader struct {
	k *koanf.Koanf
}

// NewLoader merges the defaults, the YAML file at path and the environment.
// A missing file is not an error.
func NewLoader(path string) (*Loader, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, errors.Wrap(err, "loading defaults")
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, errors.Wrapf(err, "loading %s", path)
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "loading %s", path)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, "loading environment")
	}
	return &Loader{k: k}, nil
}

func envKey(s string) string {
	return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
}

// Config decodes and validates the merged configuration.
func (l *Loader) Config() (Config, error) {
	var c Config
	if err := l.k.Unmarshal("", &c); err != nil {
		return Config{}, errors.Wrap(err, "decoding configuration")
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// YAML renders the merged configuration.
func (l *Loader) YAML() ([]byte, error) {
	return yamlv3.Marshal(readable(l.k.Raw()))
}

// readable replaces durations with their string form.
func readable(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, e := range v {
			out[k] = readable(e)
		}
		return out
	case time.Duration:
		return v.String()
	}
	return v
}

// Load is NewLoader followed by Config.
func Load(path string) (Config, error) {
	l, err := NewLoader(path)
	if err != nil {
		return Config{}, err
	}
	return l.Config()
}
