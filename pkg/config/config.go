package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	Server     struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Temporal struct {
		Addr      string `mapstructure:"ADDR"`
		Namespace string `mapstructure:"NAMESPACE"`
	} `mapstructure:"TEMPORAL"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"`
	} `mapstructure:"OTEL"`
	Minio struct {
		Endpoint   string `mapstructure:"ENDPOINT"`
		AccessKey  string `mapstructure:"ACCESS_KEY"`
		SecretKey  string `mapstructure:"SECRET_KEY"`
		Secure     bool   `mapstructure:"SECURE"`
		BucketName string `mapstructure:"BUCKET_NAME"`
	} `mapstructure:"MINIO"`
	Charge struct {
		BaseURL     string        `mapstructure:"BASE_URL"`
		APIKey      string        `mapstructure:"API_KEY"`
		ShortCode   string        `mapstructure:"SHORT_CODE"`
		CallbackURL string        `mapstructure:"CALLBACK_URL"`
		ConfirmWait time.Duration `mapstructure:"CONFIRM_WAIT"`
	} `mapstructure:"CHARGE_PROVIDER"`
	Studio struct {
		BaseURL string `mapstructure:"BASE_URL"`
		APIKey  string `mapstructure:"API_KEY"`
	} `mapstructure:"CREATIVE_STUDIO"`
	Fanout struct {
		BaseURL string `mapstructure:"BASE_URL"`
		APIKey  string `mapstructure:"API_KEY"`
	} `mapstructure:"FANOUT"`
	Notifier struct {
		BaseURL string `mapstructure:"BASE_URL"`
		Topic   string `mapstructure:"TOPIC"`
	} `mapstructure:"NOTIFIER"`
	Billing struct {
		ImageGenerationCost int64 `mapstructure:"IMAGE_GENERATION_COST"`
		VideoGenerationCost int64 `mapstructure:"VIDEO_GENERATION_COST"`
	} `mapstructure:"BILLING"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() *Config {

	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		os.Exit(1)
	}

	if cfg.Billing.ImageGenerationCost == 0 {
		cfg.Billing.ImageGenerationCost = 1
	}
	if cfg.Billing.VideoGenerationCost == 0 {
		cfg.Billing.VideoGenerationCost = 5
	}
	if cfg.Charge.ConfirmWait == 0 {
		cfg.Charge.ConfirmWait = 5 * time.Minute
	}

	return &cfg
}
