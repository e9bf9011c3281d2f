package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr     string
	SSEHeartbeat time.Duration
	APIBase      string
	WSBase       string
	Token        string

	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
	PollInterval         time.Duration
	PageSize             int
	RequestTimeout       time.Duration

	StorageDSN string

	ToastTTL       time.Duration
	DesktopCommand string
	AudioCommand   string
	SoundFile      string
	SoundVolume    float64

	RabbitMQURL         string
	RabbitExchange      string
	RabbitQueue         string
	RabbitRoutingKey    string
	RabbitConsumerTag   string
	RabbitPublishPrefix string

	OTELServiceName string
	OTLPEndpoint    string
	OTLPInsecure    bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", "127.0.0.1:7410")
	v.SetDefault("sse_heartbeat", "15s")
	v.SetDefault("api_base", "http://localhost:8080/api")
	v.SetDefault("ws_base", "ws://localhost:8080/ws")

	v.SetDefault("reconnect_interval", "1s")
	v.SetDefault("max_reconnect_interval", "30s")
	v.SetDefault("max_reconnect_attempts", 5)
	v.SetDefault("heartbeat_interval", "30s")
	v.SetDefault("poll_interval", "60s")
	v.SetDefault("page_size", 20)
	v.SetDefault("request_timeout", "10s")

	v.SetDefault("storage_dsn", "memory")

	v.SetDefault("toast_ttl", "4500ms")
	v.SetDefault("desktop_command", "notify-send")
	v.SetDefault("audio_command", "paplay")
	v.SetDefault("sound_file", "sounds/notification.wav")
	v.SetDefault("sound_volume", 0.5)

	v.SetDefault("rabbitmq_exchange", "notifications")
	v.SetDefault("rabbitmq_queue", "notifyd.inbound")
	v.SetDefault("rabbitmq_routing_key", "notification.*")
	v.SetDefault("rabbitmq_consumer_tag", "notifyd-consumer")
	v.SetDefault("rabbitmq_publish_prefix", "notification")

	v.SetDefault("otel_service_name", "notifyd")
	v.SetDefault("otel_exporter_otlp_insecure", true)
}

// New reads .env, an optional YAML file named by NOTIFYD_CONFIG and the
// environment, in increasing order of precedence.
func New() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("NOTIFYD_CONFIG"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	cfg := &Config{
		HTTPAddr:     v.GetString("http_addr"),
		SSEHeartbeat: v.GetDuration("sse_heartbeat"),
		APIBase:      strings.TrimRight(v.GetString("api_base"), "/"),
		WSBase:       strings.TrimRight(v.GetString("ws_base"), "/"),
		Token:        v.GetString("notifyd_token"),

		ReconnectInterval:    v.GetDuration("reconnect_interval"),
		MaxReconnectInterval: v.GetDuration("max_reconnect_interval"),
		MaxReconnectAttempts: v.GetInt("max_reconnect_attempts"),
		HeartbeatInterval:    v.GetDuration("heartbeat_interval"),
		PollInterval:         v.GetDuration("poll_interval"),
		PageSize:             v.GetInt("page_size"),
		RequestTimeout:       v.GetDuration("request_timeout"),

		StorageDSN: v.GetString("storage_dsn"),

		ToastTTL:       v.GetDuration("toast_ttl"),
		DesktopCommand: v.GetString("desktop_command"),
		AudioCommand:   v.GetString("audio_command"),
		SoundFile:      v.GetString("sound_file"),
		SoundVolume:    v.GetFloat64("sound_volume"),

		RabbitMQURL:         v.GetString("rabbitmq_url"),
		RabbitExchange:      v.GetString("rabbitmq_exchange"),
		RabbitQueue:         v.GetString("rabbitmq_queue"),
		RabbitRoutingKey:    v.GetString("rabbitmq_routing_key"),
		RabbitConsumerTag:   v.GetString("rabbitmq_consumer_tag"),
		RabbitPublishPrefix: v.GetString("rabbitmq_publish_prefix"),

		OTELServiceName: v.GetString("otel_service_name"),
		OTLPEndpoint:    v.GetString("otel_exporter_otlp_endpoint"),
		OTLPInsecure:    v.GetBool("otel_exporter_otlp_insecure"),
	}

	if port := os.Getenv("PORT"); port != "" && os.Getenv("HTTP_ADDR") == "" {
		cfg.HTTPAddr = "127.0.0.1:" + port
	}
	if cfg.SSEHeartbeat <= 0 {
		cfg.SSEHeartbeat = 15 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.SoundVolume < 0 || cfg.SoundVolume > 1 {
		cfg.SoundVolume = 0.5
	}
	return cfg, nil
}
