package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Model  ModelConfig  `mapstructure:"model"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Mode           string `mapstructure:"mode"`
	UploadDir      string `mapstructure:"upload_dir"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

// ModelConfig locates the classifier artifacts
type ModelConfig struct {
	LabelsPath     string `mapstructure:"labels_path"`
	WeightsPath    string `mapstructure:"weights_path"`
	ONNXLibrary    string `mapstructure:"onnx_library"`
	InputName      string `mapstructure:"input_name"`
	OutputName     string `mapstructure:"output_name"`
	NumClasses     int    `mapstructure:"num_classes"`
	IntraOpThreads int    `mapstructure:"intra_op_threads"`
	ResizeSize     int    `mapstructure:"resize_size"`
	CropSize       int    `mapstructure:"crop_size"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// Output is "stderr", "stdout" or a file path.
	Output string `mapstructure:"output"`
}

// Load reads configuration from config.yaml (optional) and DOGBREED_* env vars
func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom is Load on a caller-supplied viper instance, so flags bound to it win.
func LoadFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("DOGBREED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.upload_dir", "")
	v.SetDefault("server.max_upload_bytes", 10<<20)

	// Model
	v.SetDefault("model.labels_path", "models/dogs")
	v.SetDefault("model.weights_path", "models/mobilenet_model.onnx")
	v.SetDefault("model.onnx_library", "")
	v.SetDefault("model.input_name", "input")
	v.SetDefault("model.output_name", "output")
	v.SetDefault("model.num_classes", 133)
	v.SetDefault("model.intra_op_threads", 1)
	v.SetDefault("model.resize_size", 256)
	v.SetDefault("model.crop_size", 227)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stderr")
}
