package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// DefaultFileName is the config file looked up in the working directory when
// no explicit path is given.
const DefaultFileName = "bridge.toml"

// EnvPrefix prefixes environment overrides, e.g. BRIDGE_ENGINE_PATH.
const EnvPrefix = "BRIDGE"

// File is the on-disk configuration read by the bridgectl command.
type File struct {
	Transport string          `mapstructure:"transport"`
	Engine    EngineConfig    `mapstructure:"engine"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Request   RequestConfig   `mapstructure:"request"`
	Protocol  ProtocolConfig  `mapstructure:"protocol"`
	Log       LogConfig       `mapstructure:"log"`
}

// EngineConfig configures the engine subprocess.
type EngineConfig struct {
	Path string            `mapstructure:"path"`
	Args []string          `mapstructure:"args"`
	Env  map[string]string `mapstructure:"env"`
	Cwd  string            `mapstructure:"cwd"`
}

// WebSocketConfig configures the websocket transport.
type WebSocketConfig struct {
	URL       string `mapstructure:"url"`
	ReadLimit int64  `mapstructure:"read_limit"`
}

// RequestConfig configures outgoing requests.
type RequestConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// ProtocolConfig configures the wire format.
type ProtocolConfig struct {
	Prefix string `mapstructure:"prefix"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Transport names accepted by File.Transport.
const (
	TransportStdio     = "stdio"
	TransportWebSocket = "websocket"
)

var defaultFile = File{
	Transport: TransportStdio,
	WebSocket: WebSocketConfig{ReadLimit: 1 << 20},
	Request:   RequestConfig{Timeout: 30 * time.Second},
	Log:       LogConfig{Level: "info"},
}

// Load merges defaults, the config file and BRIDGE_* environment variables in
// that order. An empty path reads DefaultFileName if it exists.
func Load(path string) (*File, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}

	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || (!errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var f File

	decodeHook := mapstructure.ComposeDecodeHookFunc(
		expandEnvStringHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)

	if err := v.Unmarshal(&f, func(c *mapstructure.DecoderConfig) {
		c.DecodeHook = decodeHook
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}

	return &f, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("transport", defaultFile.Transport)
	v.SetDefault("engine.path", "")
	v.SetDefault("engine.args", []string{})
	v.SetDefault("engine.cwd", "")
	v.SetDefault("websocket.url", "")
	v.SetDefault("websocket.read_limit", defaultFile.WebSocket.ReadLimit)
	v.SetDefault("request.timeout", defaultFile.Request.Timeout)
	v.SetDefault("protocol.prefix", "")
	v.SetDefault("log.level", defaultFile.Log.Level)
}

// Validate checks the transport selection and numeric bounds.
func (f *File) Validate() error {
	switch f.Transport {
	case TransportStdio:
	case TransportWebSocket:
		if f.WebSocket.URL == "" {
			return errors.New("websocket.url is required for the websocket transport")
		}
	default:
		return fmt.Errorf("unknown transport %q (want %q or %q)", f.Transport, TransportStdio, TransportWebSocket)
	}

	if f.WebSocket.ReadLimit < 0 {
		return fmt.Errorf("websocket.read_limit must not be negative, got %d", f.WebSocket.ReadLimit)
	}

	if f.Request.Timeout < 0 {
		return fmt.Errorf("request.timeout must not be negative, got %s", f.Request.Timeout)
	}

	return nil
}

// Apply copies the file settings onto o. Settings already present in o are
// left untouched.
func (f *File) Apply(o *Options) {
	if o.EnginePath == "" {
		o.EnginePath = f.Engine.Path
	}

	if len(o.EngineArgs) == 0 {
		o.EngineArgs = f.Engine.Args
	}

	if o.Cwd == "" {
		o.Cwd = f.Engine.Cwd
	}

	if len(f.Engine.Env) > 0 {
		env := make(map[string]string, len(f.Engine.Env)+len(o.Env))
		for k, val := range f.Engine.Env {
			env[k] = val
		}

		for k, val := range o.Env {
			env[k] = val
		}

		o.Env = env
	}

	if o.WebSocketURL == "" && f.Transport == TransportWebSocket {
		o.WebSocketURL = f.WebSocket.URL
	}

	if o.ReadLimit == 0 {
		o.ReadLimit = f.WebSocket.ReadLimit
	}

	if o.Prefix == "" {
		o.Prefix = f.Protocol.Prefix
	}

	if o.RequestTimeout == 0 {
		o.RequestTimeout = f.Request.Timeout
	}
}

func expandEnvStringHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.String {
			return data, nil
		}

		value, ok := data.(string)
		if !ok {
			return data, nil
		}

		return os.ExpandEnv(value), nil
	}
}
