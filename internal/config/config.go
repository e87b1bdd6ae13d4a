package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/chatcore/internal/logger"
	"github.com/chatcore/internal/storage"
)

// DefaultConfigPath: YAML по умолчанию, если не задан --config и CONFIG_PATH.
const DefaultConfigPath = "config/chat.yaml"

// loadEnv читает .env только вне production (в контейнере/prod конфиг только из env).
// Ищет файл в текущем каталоге и до четырёх уровней вверх; уже заданные переменные не перезаписываются.
func loadEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				logger.Errorf("config: .env %s: %v", path, err)
			}
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// IceServer: настройки STUN/TURN для WebRTC (формат совместим с RTCIceServer).
type IceServer struct {
	URLs           []string `yaml:"urls" json:"urls"`
	Username       string   `yaml:"username,omitempty" json:"username,omitempty"`
	Credential     string   `yaml:"credential,omitempty" json:"credential,omitempty"`
	CredentialType string   `yaml:"credential_type,omitempty" json:"credential_type,omitempty"`
}

// IceServers в env задаётся JSON-массивом: CALL_ICE_SERVERS='[{"urls":["stun:..."]}]'.
type IceServers []IceServer

// Decode реализует envconfig.Decoder.
func (s *IceServers) Decode(value string) error {
	var parsed []IceServer
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		return fmt.Errorf("invalid CALL_ICE_SERVERS json: %w", err)
	}
	*s = parsed
	return nil
}

// Config содержит настройки сервиса чата.
// Приоритет: переменные окружения > YAML-файл > значения по умолчанию.
type Config struct {
	AppEnv string `yaml:"app_env" envconfig:"APP_ENV"`

	// Сервер
	ServerAddr      string        `yaml:"server_addr" envconfig:"SERVER_ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`

	// Файлы вложений (удаляются вместе с сообщением)
	UploadDir string `yaml:"upload_dir" envconfig:"UPLOAD_DIR"`

	// WebSocket
	MaxWSConnections int           `yaml:"max_ws_connections" envconfig:"MAX_WS_CONNECTIONS"`
	WSSendBufferSize int           `yaml:"ws_send_buffer_size" envconfig:"WS_SEND_BUFFER_SIZE"`
	WSWriteTimeout   time.Duration `yaml:"ws_write_timeout" envconfig:"WS_WRITE_TIMEOUT"`
	WSPongTimeout    time.Duration `yaml:"ws_pong_timeout" envconfig:"WS_PONG_TIMEOUT"`
	WSMaxMessageSize int64         `yaml:"ws_max_message_size" envconfig:"WS_MAX_MESSAGE_SIZE"`

	// Лимит событий на участника; 0, без лимита
	EventRateMax    int           `yaml:"event_rate_max" envconfig:"EVENT_RATE_MAX"`
	EventRateWindow time.Duration `yaml:"event_rate_window" envconfig:"EVENT_RATE_WINDOW"`

	// Лимит HTTP-запросов к /api по IP; 0, без лимита
	APIRateMax    int           `yaml:"api_rate_max" envconfig:"API_RATE_MAX"`
	APIRateWindow time.Duration `yaml:"api_rate_window" envconfig:"API_RATE_WINDOW"`

	// Redis для общего лимита событий. Пустой, лимит в памяти процесса.
	RedisURL string `yaml:"redis_url" envconfig:"REDIS_URL"`

	// Звонки (WebRTC)
	CallICEServers IceServers `yaml:"call_ice_servers" envconfig:"CALL_ICE_SERVERS"`

	// CORS
	CORSAllowedOrigins string `yaml:"cors_allowed_origins" envconfig:"CORS_ALLOWED_ORIGINS"`

	// Логирование
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`
}

// Defaults возвращает значения по умолчанию.
func Defaults() Config {
	return Config{
		AppEnv:             "development",
		ServerAddr:         ":8080",
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
		ShutdownTimeout:    10 * time.Second,
		UploadDir:          "./uploads",
		MaxWSConnections:   10000,
		WSSendBufferSize:   256,
		WSWriteTimeout:     10 * time.Second,
		WSPongTimeout:      60 * time.Second,
		WSMaxMessageSize:   64 << 10,
		EventRateMax:       60,
		EventRateWindow:    10 * time.Second,
		APIRateMax:         200,
		APIRateWindow:      time.Minute,
		CORSAllowedOrigins: "*",
		LogLevel:           "info",
	}
}

// Load загружает конфигурацию. path, явный YAML (флаг --config); пустой, CONFIG_PATH или config/chat.yaml.
// Сначала подгружаются переменные из .env (если есть), затем YAML и env (env имеет приоритет).
func Load(path string) (*Config, error) {
	loadEnv()
	cfg := Defaults()

	explicit := path != ""
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		explicit = path != ""
	}
	if path == "" {
		path = DefaultConfigPath
	}
	if err := loadYAML(path, &cfg); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	} else {
		logger.Infof("config: загружен %s", path)
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}
	if len(cfg.CallICEServers) == 0 {
		cfg.CallICEServers = IceServers{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Production() && (cfg.CORSAllowedOrigins == "" || cfg.CORSAllowedOrigins == "*") {
		logger.Errorf("config: в production задайте CORS_ALLOWED_ORIGINS (явный список origins, не *)")
	}
	return &cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: ошибка парсинга %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	var errs []error
	if c.ServerAddr == "" {
		errs = append(errs, errors.New("server_addr is empty"))
	}
	if c.WSSendBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("ws_send_buffer_size must be positive, got %d", c.WSSendBufferSize))
	}
	if c.WSMaxMessageSize <= 0 {
		errs = append(errs, fmt.Errorf("ws_max_message_size must be positive, got %d", c.WSMaxMessageSize))
	}
	if c.WSPongTimeout <= 0 || c.WSWriteTimeout <= 0 {
		errs = append(errs, errors.New("ws timeouts must be positive"))
	}
	if c.EventRateMax < 0 {
		errs = append(errs, fmt.Errorf("event_rate_max must not be negative, got %d", c.EventRateMax))
	}
	if c.APIRateMax < 0 {
		errs = append(errs, fmt.Errorf("api_rate_max must not be negative, got %d", c.APIRateMax))
	}
	for i, s := range c.CallICEServers {
		if len(s.URLs) == 0 {
			errs = append(errs, fmt.Errorf("call_ice_servers[%d]: urls is empty", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Production: APP_ENV=production.
func (c *Config) Production() bool { return strings.EqualFold(c.AppEnv, "production") }

// EventLimit возвращает лимит событий для storage.EventLimiter.
func (c *Config) EventLimit() storage.Limit {
	return storage.Limit{Max: c.EventRateMax, Window: c.EventRateWindow}
}

// APILimit: лимит HTTP-запросов по IP.
func (c *Config) APILimit() storage.Limit {
	return storage.Limit{Max: c.APIRateMax, Window: c.APIRateWindow}
}

// CORSOrigins разбирает CORS_ALLOWED_ORIGINS (через запятую).
func (c *Config) CORSOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
