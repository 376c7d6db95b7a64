package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	vault "github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	_ "github.com/spf13/viper/remote"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Enable   bool   `mapstructure:"ENABLE"`
		Exporter string `mapstructure:"EXPORTER"` // grpc | http
		Addr     string `mapstructure:"ADDR"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Metrics struct {
		Enable bool   `mapstructure:"ENABLE"`
		Port   uint32 `mapstructure:"PORT"`
	} `mapstructure:"METRICS"`
	Server struct {
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
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
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
	Snowflake struct {
		Node int64 `mapstructure:"NODE"`
	} `mapstructure:"SNOWFLAKE"`
	AccessControl struct {
		Model  string `mapstructure:"MODEL"`
		Policy string `mapstructure:"POLICY"`
	} `mapstructure:"ACCESS_CONTROL"`
	Kafka struct {
		Addrs      string `mapstructure:"ADDR"`
		AuditTopic string `mapstructure:"AUDIT_TOPIC"`
	} `mapstructure:"KAFKA"`
	Consul struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"CONSUL"`
	Vault struct {
		Enable    bool   `mapstructure:"ENABLE"`
		MountPath string `mapstructure:"MOUNT_PATH"`
	} `mapstructure:"VAULT"`
	Scheduler struct {
		VerifyLedger string `mapstructure:"VERIFY_LEDGER"`
	} `mapstructure:"SCHEDULER"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Approval struct {
		// database | flagsmith
		Provider string `mapstructure:"PROVIDER"`
	} `mapstructure:"APPROVAL"`
	Audit struct {
		// database | queue | kafka
		Sink string `mapstructure:"SINK"`
	} `mapstructure:"AUDIT"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

// LoadConfig reads config.yaml from the working directory, or from the remote
// provider named by REMOTE_CONFIG_PROVIDER (consul, etcd3) when set, then
// overlays secrets from vault when VAULT.ENABLE is on.
func LoadConfig(p Params) (*Config, error) {
	v := viper.New()

	var (
		cfg *Config
		err error
	)
	if provider, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		cfg, err = LoadRemote(v, provider, os.Getenv("REMOTE_CONFIG_ADDR"), os.Getenv("REMOTE_CONFIG_PATH"))
	} else {
		cfg, err = Load(v, ".")
	}
	if err != nil {
		return nil, err
	}

	if cfg.Vault.Enable {
		if p.Vault == nil {
			return nil, errors.New("VAULT.ENABLE is set but no vault client is available")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		zap.L().Info("reading secrets from vault", zap.String("path", cfg.AppEnv))
		secret, err := p.Vault.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath(cfg.Vault.MountPath))
		if err != nil {
			return nil, fmt.Errorf("read vault secrets: %w", err)
		}
		ApplySecrets(cfg, secret.Data.Data)
	}

	return cfg, nil
}

// Load reads config.yaml from path, overlays environment variables and applies defaults.
func Load(v *viper.Viper, path string) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)

	prepare(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return decode(v)
}

func LoadRemote(v *viper.Viper, provider, addr, path string) (*Config, error) {
	if addr == "" {
		addr = "127.0.0.1:8500"
	}
	if path == "" {
		path = "rewardtask/config"
	}

	v.SetConfigType("yaml")
	if err := v.AddRemoteProvider(provider, addr, path); err != nil {
		return nil, fmt.Errorf("remote config provider: %w", err)
	}

	prepare(v)

	if err := v.ReadRemoteConfig(); err != nil {
		return nil, fmt.Errorf("read remote config: %w", err)
	}

	return decode(v)
}

// ApplySecrets overrides credentials with the values of a vault kv secret.
// Missing or non string keys leave the current value untouched.
func ApplySecrets(cfg *Config, data map[string]any) {
	set := func(dst *string, key string) {
		if val, ok := data[key].(string); ok && val != "" {
			*dst = val
		}
	}

	set(&cfg.Database.User, "database_user")
	set(&cfg.Database.Password, "database_password")
	set(&cfg.Redis.Password, "redis_password")
	set(&cfg.Flagsmith.ApiKey, "flagsmith_api_key")
}

func prepare(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.TLS.Enable && (cfg.TLS.CertPath == "" || cfg.TLS.KeyPath == "") {
		return nil, fmt.Errorf("tls enabled but TLS.CERT_PATH or TLS.KEY_PATH not provided")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "rewardtask")
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONN", 10)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", time.Hour)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", 10*time.Minute)
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)
	v.SetDefault("SNOWFLAKE.NODE", 1)
	v.SetDefault("METRICS.PORT", 9100)
	v.SetDefault("APPROVAL.PROVIDER", "database")
	v.SetDefault("AUDIT.SINK", "database")
	v.SetDefault("KAFKA.AUDIT_TOPIC", "rewardtask.audit")
	v.SetDefault("OTEL.EXPORTER", "grpc")
	v.SetDefault("VAULT.ENABLE", false)
	v.SetDefault("VAULT.MOUNT_PATH", "secret")
	v.SetDefault("OTEL.ENABLE", false)
	v.SetDefault("OTEL.ADDR", "")
	v.SetDefault("METRICS.ENABLE", false)
	v.SetDefault("TLS.ENABLE", false)
	v.SetDefault("TLS.CERT_PATH", "")
	v.SetDefault("TLS.KEY_PATH", "")
	v.SetDefault("DATABASE.HOST", "127.0.0.1")
	v.SetDefault("DATABASE.PORT", "5432")
	v.SetDefault("DATABASE.DBNAME", "rewardtask")
	v.SetDefault("DATABASE.USER", "")
	v.SetDefault("DATABASE.PASSWORD", "")
	v.SetDefault("DATABASE.AUTO_MIGRATE", false)
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("KAFKA.ADDR", "")
	v.SetDefault("CONSUL.ADDR", "")
	v.SetDefault("PYROSCOPE.ADDR", "")
	v.SetDefault("FLAGSMITH.ADDR", "")
	v.SetDefault("FLAGSMITH.API_KEY", "")
	v.SetDefault("ACCESS_CONTROL.MODEL", "rbac_model.conf")
	v.SetDefault("ACCESS_CONTROL.POLICY", "rbac_policy.csv")
	v.SetDefault("SCHEDULER.VERIFY_LEDGER", "0 0 3 * * *")
}
