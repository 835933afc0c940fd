package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App       AppConfig       `json:"app"`
	Crawler   CrawlerConfig   `json:"crawler"`
	MySQL     MySQLConfig     `json:"mysql"`
	Redis     RedisConfig     `json:"redis"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Publish   PublishConfig   `json:"publish"`
	Security  SecurityConfig  `json:"security"`
	Email     EmailConfig     `json:"email"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env         string `json:"env"`          // 运行环境: local / prod
	LogLevel    string `json:"log_level"`    // 日志级别: debug / info / warn / error
	HTTPAddr    string `json:"http_addr"`    // 发布 API 监听地址
	MetricsAddr string `json:"metrics_addr"` // 爬虫 / 发布进程的 metrics 地址（为空则不启动）
}

// CrawlerConfig 爬虫配置。
type CrawlerConfig struct {
	Name            string        `json:"name"`             // 爬虫实例名（进度记录的主键）
	Seed            int64         `json:"seed"`             // 洗牌种子（0 表示沿用进度或重新生成）
	Limit           int           `json:"limit"`            // 单次运行处理角色上限
	MinLevel        int           `json:"min_level"`        // 角色等级下限
	BaseURL         string        `json:"base_url"`         // 上游站点根地址
	UserAgent       string        `json:"user_agent"`       // 请求 UA
	RequestInterval time.Duration `json:"request_interval"` // 两次请求的最小间隔（如 "1s"）
	RequestTimeout  time.Duration `json:"request_timeout"`  // 单次请求超时
	RetryAttempts   int           `json:"retry_attempts"`   // 总尝试次数（含首次）
	RetryDelay      time.Duration `json:"retry_delay"`      // 重试固定等待（如 "60s"）
	MaxPages        int           `json:"max_pages"`        // 单个检索键的最大翻页数

	Worlds         []string `json:"worlds"`
	Jobs           []int    `json:"jobs"`
	Tribes         []string `json:"tribes"`
	GrandCompanies []int    `json:"grand_companies"`
}

// MySQLConfig 数据库配置。原始数据与发布数据分库存放。
type MySQLConfig struct {
	RawDSN     string `json:"raw_dsn"`     // 原始角色数据库
	PublishDSN string `json:"publish_dsn"` // 发布数据库
}

// RedisConfig Redis 配置。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)，为空表示不使用
	Password string `json:"password"` // Redis 密码
}

// RateLimitConfig 多个爬虫进程共享的令牌桶。
type RateLimitConfig struct {
	Rate  float64 `json:"rate"`  // token/s，0 表示关闭
	Burst float64 `json:"burst"` // 桶容量
	Key   string  `json:"key"`   // Redis key
}

// PublishConfig 发布客户端配置。
type PublishConfig struct {
	BaseURL             string        `json:"base_url"`
	Token               string        `json:"token"`
	GatewayClientID     string        `json:"gateway_client_id"`
	GatewayClientSecret string        `json:"gateway_client_secret"`
	ItemsChunkSize      int           `json:"items_chunk_size"`
	UsageChunkSize      int           `json:"usage_chunk_size"`
	PairsChunkSize      int           `json:"pairs_chunk_size"`
	MaxAttempts         int           `json:"max_attempts"`
	BaseBackoff         time.Duration `json:"base_backoff"`
	Timeout             time.Duration `json:"timeout"`
	KeepVersions        int           `json:"keep_versions"` // 保留的已提交版本数
	CleanupRaw          bool          `json:"cleanup_raw"`   // 提交成功后清理原始数据
	LockTTL             time.Duration `json:"lock_ttl"`      // 发布互斥锁 TTL
	LockKey             string        `json:"lock_key"`
	ExcludedItems       []string      `json:"excluded_items"` // 统计时排除的默认外观道具 ID
}

// SecurityConfig 发布 API 鉴权配置。
type SecurityConfig struct {
	JWTSecret           string `json:"jwt_secret"`            // JWT 签名密钥
	GatewayClientID     string `json:"gateway_client_id"`     // 为空表示不校验网关头
	GatewayClientSecret string `json:"gateway_client_secret"` // 网关密钥
}

// EmailConfig 发布报告邮件配置。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
	NotifyTo  string `json:"notify_to"`
}

// Load 从 JSON 文件加载配置。
//
// 它会尝试读取 configs/config.json 文件，如果不存在则使用默认值。
//
// 参数:
//
//	configPath: 配置文件路径（如果为空则使用默认路径 "configs/config.json")
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败返回错误
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	// 如果配置文件不存在，使用默认配置
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)

	// 环境变量优先覆盖配置
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadOrDefault 加载配置，如果失败则返回默认配置（不报错）。
func LoadOrDefault(configPath ...string) *Config {
	cfg, err := Load(configPath...)
	if err != nil {
		fallback := getDefaultConfig()
		applyEnvOverrides(fallback)
		return fallback
	}
	return cfg
}

// Save 保存配置到 JSON 文件。
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// DefaultWorlds 日本数据中心的全部服务器。
var DefaultWorlds = []string{
	// Elemental
	"Aegis", "Atomos", "Carbuncle", "Garuda", "Gungnir", "Kujata", "Tonberry", "Typhon",
	// Gaia
	"Alexander", "Bahamut", "Durandal", "Fenrir", "Ifrit", "Ridill", "Tiamat", "Ultima",
	// Mana
	"Anima", "Asura", "Chocobo", "Hades", "Ixion", "Masamune", "Pandaemonium", "Titan",
	// Meteor
	"Belias", "Mandragora", "Ramuh", "Shinryu", "Unicorn", "Valefor", "Yojimbo", "Zeromus",
}

// DefaultJobs 可达到 100 级的战斗职业 ID（不含基础职业与青魔法师）。
var DefaultJobs = []int{19, 20, 21, 22, 23, 24, 25, 27, 28, 30, 31, 32, 33, 34, 35, 37, 38, 39, 40, 41, 42}

// DefaultTribes 全部部族。
var DefaultTribes = []string{
	"tribe_1", "tribe_2", "tribe_3", "tribe_4", "tribe_5", "tribe_6", "tribe_7", "tribe_8",
	"tribe_9", "tribe_10", "tribe_11", "tribe_12", "tribe_13", "tribe_14", "tribe_15", "tribe_16",
}

// DefaultGrandCompanies 三大国防联军。
var DefaultGrandCompanies = []int{1, 2, 3}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:         "local",
			LogLevel:    "info",
			HTTPAddr:    ":8081",
			MetricsAddr: "",
		},
		Crawler: CrawlerConfig{
			Name:            "default",
			Seed:            0,
			Limit:           5000,
			MinLevel:        100,
			BaseURL:         "https://jp.finalfantasyxiv.com",
			UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			RequestInterval: 1 * time.Second,
			RequestTimeout:  30 * time.Second,
			RetryAttempts:   3,
			RetryDelay:      60 * time.Second,
			MaxPages:        50,
			Worlds:          append([]string(nil), DefaultWorlds...),
			Jobs:            append([]int(nil), DefaultJobs...),
			Tribes:          append([]string(nil), DefaultTribes...),
			GrandCompanies:  append([]int(nil), DefaultGrandCompanies...),
		},
		MySQL: MySQLConfig{
			RawDSN:     "root:password@tcp(localhost:3306)/mirapuri_raw?parseTime=true&loc=Local",
			PublishDSN: "root:password@tcp(localhost:3306)/mirapuri?parseTime=true&loc=Local",
		},
		Redis: RedisConfig{
			Addr:     "",
			Password: "",
		},
		RateLimit: RateLimitConfig{
			Rate:  0,
			Burst: 1,
			Key:   "mirapuri:ratelimit:upstream",
		},
		Publish: PublishConfig{
			BaseURL:        "http://localhost:8081",
			ItemsChunkSize: 1000,
			UsageChunkSize: 1000,
			PairsChunkSize: 500,
			MaxAttempts:    4,
			BaseBackoff:    1 * time.Second,
			Timeout:        30 * time.Second,
			KeepVersions:   3,
			CleanupRaw:     false,
			LockTTL:        30 * time.Minute,
			LockKey:        "mirapuri:lock:publish",
		},
		Security: SecurityConfig{
			JWTSecret: "dev_secret_change_me",
		},
		Email: EmailConfig{
			SMTPHost: "smtp.gmail.com",
			SMTPPort: 587,
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}

	if cfg.Crawler.Name == "" {
		cfg.Crawler.Name = defaults.Crawler.Name
	}
	if cfg.Crawler.Limit == 0 {
		cfg.Crawler.Limit = defaults.Crawler.Limit
	}
	if cfg.Crawler.MinLevel == 0 {
		cfg.Crawler.MinLevel = defaults.Crawler.MinLevel
	}
	if cfg.Crawler.BaseURL == "" {
		cfg.Crawler.BaseURL = defaults.Crawler.BaseURL
	}
	if cfg.Crawler.UserAgent == "" {
		cfg.Crawler.UserAgent = defaults.Crawler.UserAgent
	}
	if cfg.Crawler.RequestInterval == 0 {
		cfg.Crawler.RequestInterval = defaults.Crawler.RequestInterval
	}
	if cfg.Crawler.RequestTimeout == 0 {
		cfg.Crawler.RequestTimeout = defaults.Crawler.RequestTimeout
	}
	if cfg.Crawler.RetryAttempts == 0 {
		cfg.Crawler.RetryAttempts = defaults.Crawler.RetryAttempts
	}
	if cfg.Crawler.RetryDelay == 0 {
		cfg.Crawler.RetryDelay = defaults.Crawler.RetryDelay
	}
	if cfg.Crawler.MaxPages == 0 {
		cfg.Crawler.MaxPages = defaults.Crawler.MaxPages
	}
	if len(cfg.Crawler.Worlds) == 0 {
		cfg.Crawler.Worlds = defaults.Crawler.Worlds
	}
	if len(cfg.Crawler.Jobs) == 0 {
		cfg.Crawler.Jobs = defaults.Crawler.Jobs
	}
	if len(cfg.Crawler.Tribes) == 0 {
		cfg.Crawler.Tribes = defaults.Crawler.Tribes
	}
	if len(cfg.Crawler.GrandCompanies) == 0 {
		cfg.Crawler.GrandCompanies = defaults.Crawler.GrandCompanies
	}

	if cfg.MySQL.RawDSN == "" {
		cfg.MySQL.RawDSN = defaults.MySQL.RawDSN
	}
	if cfg.MySQL.PublishDSN == "" {
		cfg.MySQL.PublishDSN = defaults.MySQL.PublishDSN
	}

	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = defaults.RateLimit.Burst
	}
	if cfg.RateLimit.Key == "" {
		cfg.RateLimit.Key = defaults.RateLimit.Key
	}

	if cfg.Publish.BaseURL == "" {
		cfg.Publish.BaseURL = defaults.Publish.BaseURL
	}
	if cfg.Publish.ItemsChunkSize == 0 {
		cfg.Publish.ItemsChunkSize = defaults.Publish.ItemsChunkSize
	}
	if cfg.Publish.UsageChunkSize == 0 {
		cfg.Publish.UsageChunkSize = defaults.Publish.UsageChunkSize
	}
	if cfg.Publish.PairsChunkSize == 0 {
		cfg.Publish.PairsChunkSize = defaults.Publish.PairsChunkSize
	}
	if cfg.Publish.MaxAttempts == 0 {
		cfg.Publish.MaxAttempts = defaults.Publish.MaxAttempts
	}
	if cfg.Publish.BaseBackoff == 0 {
		cfg.Publish.BaseBackoff = defaults.Publish.BaseBackoff
	}
	if cfg.Publish.Timeout == 0 {
		cfg.Publish.Timeout = defaults.Publish.Timeout
	}
	if cfg.Publish.KeepVersions == 0 {
		cfg.Publish.KeepVersions = defaults.Publish.KeepVersions
	}
	if cfg.Publish.LockTTL == 0 {
		cfg.Publish.LockTTL = defaults.Publish.LockTTL
	}
	if cfg.Publish.LockKey == "" {
		cfg.Publish.LockKey = defaults.Publish.LockKey
	}

	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_host", "DB_HOST")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("publish_token", "PUBLISH_TOKEN")
	_ = viper.BindEnv("gateway_client_secret", "GATEWAY_CLIENT_SECRET")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_METRICS_ADDR"); v != "" {
		cfg.App.MetricsAddr = v
	}

	if v := os.Getenv("CRAWLER_NAME"); v != "" {
		cfg.Crawler.Name = v
	}
	if v := os.Getenv("CRAWLER_SEED"); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Crawler.Seed = i
		}
	}
	if v := os.Getenv("CRAWLER_LIMIT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Crawler.Limit = i
		}
	}
	if v := os.Getenv("CRAWLER_MIN_LEVEL"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Crawler.MinLevel = i
		}
	}
	if v := os.Getenv("CRAWLER_BASE_URL"); v != "" {
		cfg.Crawler.BaseURL = v
	}
	if v := os.Getenv("CRAWLER_REQUEST_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Crawler.RequestInterval = d
		}
	}
	if v := os.Getenv("CRAWLER_RETRY_ATTEMPTS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Crawler.RetryAttempts = i
		}
	}
	if v := os.Getenv("CRAWLER_RETRY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Crawler.RetryDelay = d
		}
	}
	if v := os.Getenv("CRAWLER_WORLDS"); v != "" {
		cfg.Crawler.Worlds = splitList(v)
	}

	if v := os.Getenv("RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimit.Rate = f
		}
	}
	if v := os.Getenv("RATE_BURST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimit.Burst = f
		}
	}

	if v := os.Getenv("PUBLISH_BASE_URL"); v != "" {
		cfg.Publish.BaseURL = v
	}
	if v := viper.GetString("publish_token"); v != "" {
		cfg.Publish.Token = v
	}
	if v := os.Getenv("GATEWAY_CLIENT_ID"); v != "" {
		cfg.Publish.GatewayClientID = v
		cfg.Security.GatewayClientID = v
	}
	if v := viper.GetString("gateway_client_secret"); v != "" {
		cfg.Publish.GatewayClientSecret = v
		cfg.Security.GatewayClientSecret = v
	}
	if v := os.Getenv("PUBLISH_CLEANUP_RAW"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Publish.CleanupRaw = b
		}
	}
	if v := os.Getenv("PUBLISH_EXCLUDED_ITEMS"); v != "" {
		cfg.Publish.ExcludedItems = splitList(v)
	}
	if v := os.Getenv("PUBLISH_KEEP_VERSIONS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Publish.KeepVersions = i
		}
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}

	if v := os.Getenv("RAW_DB_DSN"); v != "" {
		cfg.MySQL.RawDSN = v
	} else if hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_RAW_NAME") || viper.GetString("db_host") != "" {
		cfg.MySQL.RawDSN = overrideMySQLDSN(cfg.MySQL.RawDSN, os.Getenv("DB_RAW_NAME"))
	}
	if v := os.Getenv("PUBLISH_DB_DSN"); v != "" {
		cfg.MySQL.PublishDSN = v
	} else if hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") || viper.GetString("db_host") != "" {
		cfg.MySQL.PublishDSN = overrideMySQLDSN(cfg.MySQL.PublishDSN, os.Getenv("DB_NAME"))
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}
	if v := os.Getenv("NOTIFY_TO"); v != "" {
		cfg.Email.NotifyTo = v
	}
}

// overrideMySQLDSN 用 DB_* 环境变量改写 DSN 的各个部分。
func overrideMySQLDSN(dsn string, dbName string) string {
	parsed := parseMySQLDSN(dsn)
	if v := viper.GetString("db_host"); v != "" {
		port := getenvDefault("DB_PORT", parsed.Addr, "3306")
		parsed.Addr = v + ":" + port
	} else if v := os.Getenv("DB_PORT"); v != "" {
		host := parsed.Addr
		if strings.Contains(host, ":") {
			host = strings.Split(host, ":")[0]
		}
		parsed.Addr = host + ":" + v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		parsed.User = v
	}
	if v := viper.GetString("db_password"); v != "" {
		parsed.Passwd = v
	}
	if dbName != "" {
		parsed.DBName = dbName
	}
	return parsed.FormatDSN()
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func getenvDefault(envKey, fallbackAddr, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if fallbackAddr == "" {
		return defaultValue
	}
	if strings.Contains(fallbackAddr, ":") {
		parts := strings.Split(fallbackAddr, ":")
		if len(parts) == 2 && parts[1] != "" {
			return parts[1]
		}
	}
	return defaultValue
}

func parseMySQLDSN(dsn string) *mysql.Config {
	fallback := &mysql.Config{
		User:   "root",
		Net:    "tcp",
		Addr:   "localhost:3306",
		DBName: "mirapuri",
		Params: map[string]string{
			"parseTime": "true",
			"loc":       "Local",
		},
	}
	if dsn == "" {
		return fallback
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fallback
	}
	return parsed
}

// UnmarshalJSON 自定义 JSON 解析，支持时间Duration字符串。
func (c *CrawlerConfig) UnmarshalJSON(data []byte) error {
	type Alias CrawlerConfig
	aux := &struct {
		RequestInterval string `json:"request_interval"`
		RequestTimeout  string `json:"request_timeout"`
		RetryDelay      string `json:"retry_delay"`
		*Alias
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if c.RequestInterval, err = parseDurationField("request_interval", aux.RequestInterval, c.RequestInterval); err != nil {
		return err
	}
	if c.RequestTimeout, err = parseDurationField("request_timeout", aux.RequestTimeout, c.RequestTimeout); err != nil {
		return err
	}
	if c.RetryDelay, err = parseDurationField("retry_delay", aux.RetryDelay, c.RetryDelay); err != nil {
		return err
	}
	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (c CrawlerConfig) MarshalJSON() ([]byte, error) {
	type Alias CrawlerConfig
	return json.Marshal(&struct {
		RequestInterval string `json:"request_interval"`
		RequestTimeout  string `json:"request_timeout"`
		RetryDelay      string `json:"retry_delay"`
		*Alias
	}{
		RequestInterval: c.RequestInterval.String(),
		RequestTimeout:  c.RequestTimeout.String(),
		RetryDelay:      c.RetryDelay.String(),
		Alias:           (*Alias)(&c),
	})
}

// UnmarshalJSON 自定义 JSON 解析，支持时间Duration字符串。
func (p *PublishConfig) UnmarshalJSON(data []byte) error {
	type Alias PublishConfig
	aux := &struct {
		BaseBackoff string `json:"base_backoff"`
		Timeout     string `json:"timeout"`
		LockTTL     string `json:"lock_ttl"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if p.BaseBackoff, err = parseDurationField("base_backoff", aux.BaseBackoff, p.BaseBackoff); err != nil {
		return err
	}
	if p.Timeout, err = parseDurationField("timeout", aux.Timeout, p.Timeout); err != nil {
		return err
	}
	if p.LockTTL, err = parseDurationField("lock_ttl", aux.LockTTL, p.LockTTL); err != nil {
		return err
	}
	return nil
}

// MarshalJSON 自定义 JSON 序列化，将 Duration 转为字符串。
func (p PublishConfig) MarshalJSON() ([]byte, error) {
	type Alias PublishConfig
	return json.Marshal(&struct {
		BaseBackoff string `json:"base_backoff"`
		Timeout     string `json:"timeout"`
		LockTTL     string `json:"lock_ttl"`
		*Alias
	}{
		BaseBackoff: p.BaseBackoff.String(),
		Timeout:     p.Timeout.String(),
		LockTTL:     p.LockTTL.String(),
		Alias:       (*Alias)(&p),
	})
}

func parseDurationField(name, raw string, current time.Duration) (time.Duration, error) {
	if raw == "" {
		return current, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s format: %w", name, err)
	}
	return d, nil
}
