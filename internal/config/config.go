package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultModelName  = "fastino/gliner2-multi-v1"
	DefaultPort       = 8000
	DefaultConfigFile = "config/app_config.json"

	defaultModelsDir = "~/.nerapi/models"
	defaultTimeout   = 60 * time.Second
)

// ErrInvalidConfig is returned for unusable configuration values or files.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	BackendPython = "python"
	BackendRemote = "remote"
)

// ONNX export checks run by the python backend before loading a model
// directory. Auto checks when the binary has native support; native
// requires it.
const (
	ONNXAuto   = "auto"
	ONNXNative = "native"
)

type Engine struct {
	Backend   string
	Python    string
	RemoteURL string
	APIKey    string
	Timeout   time.Duration

	ONNXBackend string
	// ORTLibrary is the onnxruntime shared library path for native checks.
	ORTLibrary string
}

type Config struct {
	ModelName  string
	Port       int
	ConfigFile string

	LogLevel string
	LogJSON  bool
	LogFile  string

	Engine    Engine
	CacheSize int
	AuditLog  string
	ModelsDir string
}

// Load resolves configuration from the environment, then the JSON file at
// path, then defaults. An empty path means APP_CONFIG_FILE or
// DefaultConfigFile. A missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("NERAPI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("log_file", "")
	v.SetDefault("engine.backend", BackendPython)
	v.SetDefault("engine.python", "python3")
	v.SetDefault("engine.remote_url", "")
	v.SetDefault("engine.api_key", "")
	v.SetDefault("engine.timeout", defaultTimeout.String())
	v.SetDefault("engine.onnx_backend", ONNXAuto)
	v.SetDefault("engine.ort_library", "")
	v.SetDefault("cache_size", 0)
	v.SetDefault("audit_log", "")
	v.SetDefault("models_dir", defaultModelsDir)

	// Unprefixed names kept for deployments that already set them.
	_ = v.BindEnv("model_name", "APP_MODEL_NAME", "MODEL_NAME")
	_ = v.BindEnv("port", "APP_PORT", "PORT")
	_ = v.BindEnv("engine.onnx_backend", "NERAPI_ENGINE_ONNX_BACKEND", "NERAPI_ONNX_BACKEND")
	_ = v.BindEnv("engine.ort_library", "NERAPI_ENGINE_ORT_LIBRARY", "NERAPI_ORT_LIBRARY")

	if path == "" {
		path = os.Getenv("APP_CONFIG_FILE")
	}
	if path == "" {
		path = DefaultConfigFile
	}
	if err := readFile(v, path); err != nil {
		return Config{}, err
	}

	port, err := parsePort(v.Get("port"))
	if err != nil {
		return Config{}, err
	}
	timeout, err := parseTimeout(v.GetString("engine.timeout"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ModelName:  strings.TrimSpace(v.GetString("model_name")),
		Port:       port,
		ConfigFile: path,
		LogLevel:   v.GetString("log_level"),
		LogJSON:    v.GetBool("log_json"),
		LogFile:    expandHome(v.GetString("log_file")),
		Engine: Engine{
			Backend:   strings.ToLower(strings.TrimSpace(v.GetString("engine.backend"))),
			Python:    v.GetString("engine.python"),
			RemoteURL: v.GetString("engine.remote_url"),
			APIKey:    v.GetString("engine.api_key"),
			Timeout:   timeout,

			ONNXBackend: strings.ToLower(strings.TrimSpace(v.GetString("engine.onnx_backend"))),
			ORTLibrary:  expandHome(v.GetString("engine.ort_library")),
		},
		CacheSize: v.GetInt("cache_size"),
		AuditLog:  expandHome(v.GetString("audit_log")),
		ModelsDir: expandHome(v.GetString("models_dir")),
	}
	if cfg.ModelName == "" {
		cfg.ModelName = DefaultModelName
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Engine.Backend {
	case BackendPython:
	case BackendRemote:
		if c.Engine.RemoteURL == "" {
			return fmt.Errorf("%w: engine.remote_url is required for the remote backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown engine backend %q", ErrInvalidConfig, c.Engine.Backend)
	}
	switch c.Engine.ONNXBackend {
	case ONNXAuto, ONNXNative:
	default:
		return fmt.Errorf("%w: unknown engine.onnx_backend %q", ErrInvalidConfig, c.Engine.ONNXBackend)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("%w: cache_size must not be negative", ErrInvalidConfig)
	}
	return nil
}

// LoadDotEnv loads variables from a .env file without overriding the real
// environment. A missing file is ignored.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func readFile(v *viper.Viper, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInvalidConfig, path)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

func parsePort(raw any) (int, error) {
	var port int
	switch p := raw.(type) {
	case int:
		port = p
	case int64:
		port = int(p)
	case float64:
		if p != math.Trunc(p) {
			return 0, fmt.Errorf("%w: port %v is not an integer", ErrInvalidConfig, p)
		}
		port = int(p)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0, fmt.Errorf("%w: port %q is not an integer", ErrInvalidConfig, p)
		}
		port = n
	default:
		return 0, fmt.Errorf("%w: port %v is not an integer", ErrInvalidConfig, raw)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, port)
	}
	return port, nil
}

func parseTimeout(s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: engine.timeout %q is not a positive duration", ErrInvalidConfig, s)
	}
	return d, nil
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
