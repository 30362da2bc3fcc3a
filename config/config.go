package config

import (
	"log"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"disparo"`

	// PostgreSQL 配置
	PostgreSQLHost     string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string `env:"POSTGRESQL_DATABASE" envDefault:"disparo"`
	PostgreSQLSchema   string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"30"`
	PostgreSQLMaxOpen  int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"200"`

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"dsp"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// JWT 配置
	JWTSecret        string `env:"JWT_SECRET"` // 必填，用于签名 JWT
	JWTExpireMinutes int    `env:"JWT_EXPIRE_MINUTES" envDefault:"30"`
	JWTRefreshDays   int    `env:"JWT_REFRESH_DAYS" envDefault:"7"`
	// 换取租户 token 的共享密钥，由上游管理面持有
	AuthAPIKey string `env:"AUTH_API_KEY"`

	// WhatsApp 网关配置
	// 走 Evolution 风格的 HTTP 网关，instance 在任务里携带
	WhatsAppProvider string `env:"WHATSAPP_PROVIDER" envDefault:"evolution"` // evolution, mock
	WhatsAppBaseURL  string `env:"WHATSAPP_BASE_URL" envDefault:"http://localhost:8080"`
	WhatsAppAPIKey   string `env:"WHATSAPP_API_KEY"`
	WhatsAppTimeout  int    `env:"WHATSAPP_TIMEOUT_SECONDS" envDefault:"30"`

	// 群发节奏配置
	// 非首条消息之间的随机间隔，模拟人工发送节奏，防止封号
	PacingMinSeconds int `env:"PACING_MIN_SECONDS" envDefault:"30"`
	PacingMaxSeconds int `env:"PACING_MAX_SECONDS" envDefault:"300"`
	// campaign 处于 paused 时任务的重投延迟
	PauseBackoffMinutes int `env:"PAUSE_BACKOFF_MINUTES" envDefault:"5"`
	// 当日额度耗尽时任务的重投延迟
	QuotaBackoffHours int `env:"QUOTA_BACKOFF_HOURS" envDefault:"24"`

	// 每日发送额度配置
	// 每个 instance 每天的群发上限，保守值，模拟人工发送量
	CampaignDailyQuota int    `env:"CAMPAIGN_DAILY_QUOTA" envDefault:"40"`
	QuotaTimezone      string `env:"QUOTA_TIMEZONE" envDefault:"America/Sao_Paulo"`

	// CRM 漏斗配置
	// 处于冷阶段的联系人才允许自动触达，其余视为有人工会话在进行
	ColdStages string `env:"COLD_STAGES" envDefault:"NOVO,LEAD"`
	// 模板中 {{name}} 无名字可替换时的兜底称呼
	DefaultLeadName string `env:"DEFAULT_LEAD_NAME" envDefault:"Contato"`
	// 建 campaign 时 lead 批量插入的分片大小
	LeadInsertBatchSize int `env:"LEAD_INSERT_BATCH_SIZE" envDefault:"500"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// 链路追踪配置
	TracingEnabled  bool   `env:"TRACING_ENABLED" envDefault:"false"`
	TracingEndpoint string `env:"TRACING_ENDPOINT" envDefault:"localhost:4317"`

	// 速率限制配置, 配置在中间件内
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRPS     int  `env:"RATE_LIMIT_RPS" envDefault:"100"` // 每秒请求数
}

func init() {

	if err := godotenv.Load(); err != nil {

		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	Cfg = Config{}
	if err := env.Parse(&Cfg); err != nil {
		log.Fatalf("Failed to parse environment variables: %v", err)
	}

	validateConfig()
}

func validateConfig() {
	if Cfg.JWTSecret == "" {
		if Cfg.IsProduction() {
			log.Fatal("JWT_SECRET is required in production")
		}
		log.Printf("WARN: JWT_SECRET is not set, using an insecure development secret")
		Cfg.JWTSecret = "disparo-dev-secret"
	}

	if Cfg.WhatsAppAPIKey == "" && Cfg.WhatsAppProvider != "mock" {
		log.Printf("WARN: WHATSAPP_API_KEY is not set, sends against the gateway will be rejected")
	}

	if Cfg.PacingMinSeconds > Cfg.PacingMaxSeconds {
		log.Fatal("PACING_MIN_SECONDS must not exceed PACING_MAX_SECONDS")
	}

	if Cfg.CampaignDailyQuota <= 0 {
		log.Fatal("CAMPAIGN_DAILY_QUOTA must be positive")
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword +
		"@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) GetDSN() string {
	return "host=" + c.PostgreSQLHost +
		" port=" + c.PostgreSQLPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

// ColdStageSet 返回大写化的冷阶段集合
func (c *Config) ColdStageSet() map[string]bool {
	set := make(map[string]bool)
	for _, stage := range strings.Split(c.ColdStages, ",") {
		stage = strings.ToUpper(strings.TrimSpace(stage))
		if stage != "" {
			set[stage] = true
		}
	}
	return set
}
