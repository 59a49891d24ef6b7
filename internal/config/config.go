// Package config loads process configuration from the environment and
// holds the gesture tuning values.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config is the configuration of the host binary.
type Config struct {
	Addr            string
	DataDir         string
	CameraID        int
	CanvasWidth     int
	CanvasHeight    int
	Mirror          bool
	RelayURL        string // empty: discover over mDNS
	Room            string
	DisplayName     string
	Tray            bool
	MotionThreshold float64
	Discovery       bool
	LogLevel        string
}

// RelayConfig is the configuration of the relay binary.
type RelayConfig struct {
	Port           string
	Environment    string
	AllowedOrigins []string
	Redis          RedisConfig
	MDNS           bool
	LogLevel       string
}

// RedisConfig locates the presence store.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

// Load reads the host configuration.
func Load() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		Addr:            getEnv("KALAM_ADDR", ":8080"),
		DataDir:         getEnv("KALAM_DATA_DIR", filepath.Join(home, ".kalam")),
		CameraID:        getEnvInt("KALAM_CAMERA", 0),
		CanvasWidth:     getEnvInt("KALAM_CANVAS_WIDTH", 1280),
		CanvasHeight:    getEnvInt("KALAM_CANVAS_HEIGHT", 720),
		Mirror:          getEnvBool("KALAM_MIRROR", false),
		RelayURL:        getEnv("KALAM_RELAY_URL", ""),
		Room:            getEnv("KALAM_ROOM", "lobby"),
		DisplayName:     getEnv("KALAM_DISPLAY_NAME", defaultName()),
		Tray:            getEnvBool("KALAM_TRAY", false),
		MotionThreshold: getEnvFloat("KALAM_MOTION_THRESHOLD", 1.0),
		Discovery:       getEnvBool("KALAM_DISCOVERY", true),
		LogLevel:        getEnv("KALAM_LOG_LEVEL", "info"),
	}
}

// LoadRelay reads the relay configuration.
func LoadRelay() *RelayConfig {
	originsStr := getEnv("ALLOWED_ORIGINS", "http://localhost:8080,http://localhost:5173")
	var origins []string
	for _, o := range strings.Split(originsStr, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return &RelayConfig{
		Port:           getEnv("PORT", "8090"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		AllowedOrigins: origins,
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		MDNS:     getEnvBool("MDNS_ENABLED", true),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func defaultName() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "kalam"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
