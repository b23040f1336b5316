package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Session  SessionConfig
	Room     RoomConfig
	Log      LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	database, err := loadDatabaseConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	room, err := loadRoomConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Database: database,
		Session:  session,
		Room:     room,
		Log:      logCfg,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr        string
	StaticDir   string
	TLSCertFile string
	TLSKeyFile  string
}

// TLSEnabled 表示证书与私钥是否都已配置。
func (c ServerConfig) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// loadServerConfig 解析服务器监听地址与静态资源目录。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8000"
	}

	var addr string
	switch {
	case strings.Contains(port, " "):
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	case strings.Contains(port, ":"):
		// 允许用户直接传入 ":8000" 或 "127.0.0.1:8000"。
		addr = port
	default:
		addr = ":" + port
	}

	return ServerConfig{
		Addr:        addr,
		StaticDir:   getEnvOrDefault("STATIC_DIR", "static"),
		TLSCertFile: strings.TrimSpace(os.Getenv("TLS_CERT_FILE")),
		TLSKeyFile:  strings.TrimSpace(os.Getenv("TLS_KEY_FILE")),
	}, nil
}

// DatabaseConfig 描述 PostgreSQL 连接配置。
type DatabaseConfig struct {
	URL            string
	MaxConns       int32
	ConnectTimeout time.Duration
}

func loadDatabaseConfig() (DatabaseConfig, error) {
	maxConns := 5
	if override, err := parseOptionalIntEnv("DB_MAX_CONNS"); err != nil {
		return DatabaseConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return DatabaseConfig{}, fmt.Errorf("invalid DB_MAX_CONNS value %d: must be positive", *override)
		}
		maxConns = *override
	}

	timeout, err := parseDurationEnv("DB_CONNECT_TIMEOUT", 3*time.Second)
	if err != nil {
		return DatabaseConfig{}, err
	}

	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		dsn = buildDSN()
	}

	return DatabaseConfig{
		URL:            dsn,
		MaxConns:       int32(maxConns),
		ConnectTimeout: timeout,
	}, nil
}

// buildDSN 由分散的 DB_* 变量拼出连接串。
func buildDSN() string {
	u := url.URL{
		Scheme: "postgres",
		User: url.UserPassword(
			getEnvOrDefault("DB_USER", "postgres"),
			os.Getenv("DB_PASSWORD"),
		),
		Host: getEnvOrDefault("DB_HOST", "localhost:5432"),
		Path: "/" + getEnvOrDefault("DB_NAME", "chat"),
	}
	q := u.Query()
	q.Set("sslmode", getEnvOrDefault("DB_SSLMODE", "disable"))
	u.RawQuery = q.Encode()
	return u.String()
}

// SessionConfig 描述登录会话配置。
type SessionConfig struct {
	Window       time.Duration
	CookieName   string
	CookieSecure bool
}

func loadSessionConfig() (SessionConfig, error) {
	window, err := parseDurationEnv("SESSION_WINDOW", 30*time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}

	secure, err := parseBoolEnv("SESSION_COOKIE_SECURE", true)
	if err != nil {
		return SessionConfig{}, err
	}

	return SessionConfig{
		Window:       window,
		CookieName:   getEnvOrDefault("SESSION_COOKIE", "session_id"),
		CookieSecure: secure,
	}, nil
}

// RoomConfig 描述聊天室运行参数。
type RoomConfig struct {
	IdleTimeout      time.Duration
	CommandBuffer    int
	BroadcastBuffer  int
	MessageQueueSize int
}

func loadRoomConfig() (RoomConfig, error) {
	idle, err := parseDurationEnv("ROOM_IDLE_TIMEOUT", 30*time.Minute)
	if err != nil {
		return RoomConfig{}, err
	}

	commandBuffer, err := parsePositiveIntEnv("ROOM_COMMAND_BUFFER", 128)
	if err != nil {
		return RoomConfig{}, err
	}

	broadcastBuffer, err := parsePositiveIntEnv("ROOM_BROADCAST_BUFFER", 128)
	if err != nil {
		return RoomConfig{}, err
	}

	queueSize, err := parsePositiveIntEnv("MESSAGE_QUEUE_SIZE", 128)
	if err != nil {
		return RoomConfig{}, err
	}

	return RoomConfig{
		IdleTimeout:      idle,
		CommandBuffer:    commandBuffer,
		BroadcastBuffer:  broadcastBuffer,
		MessageQueueSize: queueSize,
	}, nil
}

// LogConfig 描述日志级别与输出格式。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() (LogConfig, error) {
	format := strings.ToLower(getEnvOrDefault("LOG_FORMAT", "text"))
	if format != "text" && format != "json" {
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT value %q: want text or json", format)
	}

	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: format,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parsePositiveIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	if *val < 1 {
		return 0, fmt.Errorf("invalid %s value %d: must be positive", key, *val)
	}
	return *val, nil
}
