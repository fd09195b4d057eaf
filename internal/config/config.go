package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eventchat/internal/logger"
)

// loadEnv читает .env только вне production (в контейнере/prod конфиг только из env).
func loadEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		path := dir + "/.env"
		f, err := os.Open(path)
		if err == nil {
			loadEnvFrom(f)
			f.Close()
			return
		}
		parent := strings.TrimSuffix(dir, "/")
		if idx := strings.LastIndex(parent, "/"); idx <= 0 {
			return
		} else {
			dir = parent[:idx]
			if dir == "" {
				dir = "/"
			}
		}
	}
}

func loadEnvFrom(f *os.File) {
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		if len(val) >= 2 && (val[0] == '"' && val[len(val)-1] == '"' || val[0] == '\'' && val[len(val)-1] == '\'') {
			val = val[1 : len(val)-1]
		}
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// RedisConfig: Redis для relay событий. Пустой URL: relay отключён, события никуда не уходят.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

// Config содержит настройки сервиса чатов.
// Приоритет: переменные окружения > YAML-файл > значения по умолчанию.
type Config struct {
	// Сервер
	ServerAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// WebSocket
	MaxWSConnections int
	WSSendBufferSize int

	// CORS
	CORSAllowedOrigins string

	// Логирование
	LogLevel string

	// Typing: TTL 0: индикатор живёт, пока клиент сам его не снимет.
	TypingTTL           time.Duration
	TypingSweepInterval time.Duration

	// Relay событий в Redis pub/sub
	Redis            RedisConfig
	RelayBuffer      int
	RelayConnectWait time.Duration

	// Лимит запросов к API на пользователя в минуту; 0: без лимита.
	RateLimitPerMinute int
}

// RelayEnabled: задан ли Redis для relay.
func (c *Config) RelayEnabled() bool { return c.Redis.URL != "" }

// yamlConfig: промежуточная структура для парсинга YAML (длительности в секундах).
type yamlConfig struct {
	ServerAddr          string      `yaml:"server_addr"`
	ReadTimeout         int         `yaml:"read_timeout"`
	WriteTimeout        int         `yaml:"write_timeout"`
	IdleTimeout         int         `yaml:"idle_timeout"`
	MaxWSConnections    int         `yaml:"max_ws_connections"`
	WSSendBufferSize    int         `yaml:"ws_send_buffer_size"`
	CORSAllowedOrigins  string      `yaml:"cors_allowed_origins"`
	LogLevel            string      `yaml:"log_level"`
	TypingTTL           int         `yaml:"typing_ttl"`
	TypingSweepInterval int         `yaml:"typing_sweep_interval"`
	Redis               RedisConfig `yaml:"redis"`
	RelayBuffer         int         `yaml:"relay_buffer"`
	RelayConnectWait    int         `yaml:"relay_connect_wait"`
	RateLimitPerMinute  int         `yaml:"rate_limit_per_minute"`
}

func defaults() yamlConfig {
	return yamlConfig{
		ServerAddr:          ":8080",
		ReadTimeout:         15,
		WriteTimeout:        15,
		IdleTimeout:         60,
		MaxWSConnections:    10000,
		WSSendBufferSize:    256,
		CORSAllowedOrigins:  "*",
		LogLevel:            "info",
		TypingTTL:           0,
		TypingSweepInterval: 1,
		Redis:               RedisConfig{Channel: "eventchat:events"},
		RelayBuffer:         1024,
		RelayConnectWait:    30,
		RateLimitPerMinute:  600,
	}
}

// readYAML накладывает первый найденный файл из paths на yc. Ошибка парсинга не фатальна.
func readYAML(yc *yamlConfig, paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, yc); err != nil {
			logger.Errorf("config: ошибка парсинга %s: %v (используются значения по умолчанию)", path, err)
		} else {
			logger.Infof("config: загружен %s", path)
		}
		return
	}
}

func seconds(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Second
}

// Load загружает конфигурацию.
// Сначала подгружаются переменные из .env (если есть), затем YAML и env (env имеет приоритет).
func Load() *Config {
	loadEnv()
	yc := defaults()
	readYAML(&yc, os.Getenv("CONFIG_PATH"), "config/chat.yaml")

	cfg := &Config{
		ServerAddr:          envStr("SERVER_ADDR", yc.ServerAddr),
		ReadTimeout:         seconds("READ_TIMEOUT", yc.ReadTimeout),
		WriteTimeout:        seconds("WRITE_TIMEOUT", yc.WriteTimeout),
		IdleTimeout:         seconds("IDLE_TIMEOUT", yc.IdleTimeout),
		MaxWSConnections:    envInt("MAX_WS_CONNECTIONS", yc.MaxWSConnections),
		WSSendBufferSize:    envInt("WS_SEND_BUFFER_SIZE", yc.WSSendBufferSize),
		CORSAllowedOrigins:  envStr("CORS_ALLOWED_ORIGINS", yc.CORSAllowedOrigins),
		LogLevel:            envStr("LOG_LEVEL", yc.LogLevel),
		TypingTTL:           seconds("TYPING_TTL_SECONDS", yc.TypingTTL),
		TypingSweepInterval: seconds("TYPING_SWEEP_SECONDS", yc.TypingSweepInterval),
		Redis: RedisConfig{
			URL:     envStr("REDIS_URL", yc.Redis.URL),
			Channel: envStr("RELAY_CHANNEL", yc.Redis.Channel),
		},
		RelayBuffer:        envInt("RELAY_BUFFER", yc.RelayBuffer),
		RelayConnectWait:   seconds("RELAY_CONNECT_WAIT", yc.RelayConnectWait),
		RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", yc.RateLimitPerMinute),
	}
	if cfg.TypingSweepInterval <= 0 {
		cfg.TypingSweepInterval = time.Second
	}
	if cfg.WSSendBufferSize <= 0 {
		cfg.WSSendBufferSize = 256
	}

	if os.Getenv("APP_ENV") == "production" {
		if cfg.CORSAllowedOrigins == "" || cfg.CORSAllowedOrigins == "*" {
			logger.Errorf("config: в production задайте CORS_ALLOWED_ORIGINS (явный список origins, не *)")
		}
	}

	return cfg
}

// envStr возвращает значение переменной окружения или fallback.
func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt возвращает числовое значение переменной окружения или fallback.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
