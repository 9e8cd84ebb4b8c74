package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/dnsoftware/pvx-wallet/internal/constants"
	"github.com/dnsoftware/pvx-wallet/internal/crypto"
)

type App struct {
	Name    string `yaml:"app_name" envconfig:"APP_NAME"`
	Version string `yaml:"app_version" envconfig:"APP_VERSION"`
	Env     string `yaml:"env" envconfig:"APP_ENV"`           // production или debug
	LogFile string `yaml:"log_file" envconfig:"APP_LOG_FILE"` // пустое значение: logs/app.log в корне проекта
}

type RateLimitConfig struct {
	RPS     float64       `yaml:"rps" envconfig:"HTTP_RATE_RPS"` // 0 выключает ограничение
	Burst   int           `yaml:"burst" envconfig:"HTTP_RATE_BURST"`
	IdleTTL time.Duration `yaml:"idle_ttl" envconfig:"HTTP_RATE_IDLE_TTL"`
}

type HTTPConfig struct {
	Listen          string          `yaml:"listen" envconfig:"HTTP_LISTEN"`
	AdminToken      string          `yaml:"admin_token" envconfig:"HTTP_ADMIN_TOKEN"` // пустой токен выключает зачисления
	MaxBodyBytes    int64           `yaml:"max_body_bytes" envconfig:"HTTP_MAX_BODY_BYTES"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"HTTP_READ_TIMEOUT"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"HTTP_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"HTTP_SHUTDOWN_TIMEOUT"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

type GRPCConfig struct {
	Listen string `yaml:"listen" envconfig:"GRPC_LISTEN"` // хост:порт gRPC health сервера, пустое значение выключает
}

type StorageConfig struct {
	Type string `yaml:"type" envconfig:"STORAGE_TYPE"` // memory или postgres
}

type PostgresConfig struct {
	DSN          string        `yaml:"dsn" envconfig:"PG_DSN"`
	MaxConns     int32         `yaml:"max_conns" envconfig:"PG_MAX_CONNS"`
	QueryTimeout time.Duration `yaml:"query_timeout" envconfig:"PG_QUERY_TIMEOUT"`
	Retries      int           `yaml:"retries" envconfig:"PG_RETRIES"`
	Migrate      bool          `yaml:"migrate" envconfig:"PG_MIGRATE"` // применять миграции при старте
	MigrationDir string        `yaml:"migration_dir" envconfig:"PG_MIGRATION_DIR"`
}

type KafkaLedgerConfig struct {
	Enabled           bool          `yaml:"enabled" envconfig:"KAFKA_LEDGER_ENABLED"`
	Brokers           []string      `yaml:"brokers" envconfig:"KAFKA_LEDGER_BROKERS"`
	Topic             string        `yaml:"topic" envconfig:"KAFKA_LEDGER_TOPIC"`
	FeedEnabled       bool          `yaml:"feed_enabled" envconfig:"KAFKA_LEDGER_FEED_ENABLED"` // лента websocket читается из топика
	Group             string        `yaml:"group" envconfig:"KAFKA_LEDGER_GROUP"`
	ReadBatchSize     int           `yaml:"read_batch_size"`
	ReadFlushInterval time.Duration `yaml:"read_flush_interval"`
}

type OtelConfig struct {
	Exporter           string        `yaml:"exporter" envconfig:"OTEL_EXPORTER"` // otlp, stdout или none
	Endpoint           string        `yaml:"endpoint" envconfig:"OTEL_ENDPOINT"`
	BatchTimeout       time.Duration `yaml:"batch_timeout"`         // таймоут отправки телеметрических пакетов
	MaxExportBatchSize int           `yaml:"max_export_batch_size"` // максимальное кол-во сообщений в пакете
	MaxQueueSize       int           `yaml:"max_queue_size"`        // максимум спанов в очереди
}

type KDFConfig struct {
	N           int `yaml:"n" envconfig:"KDF_N"`
	R           int `yaml:"r" envconfig:"KDF_R"`
	P           int `yaml:"p" envconfig:"KDF_P"`
	Concurrency int `yaml:"concurrency" envconfig:"KDF_CONCURRENCY"` // 0: по числу CPU
}

type WalletConfig struct {
	MinPassphraseLength int       `yaml:"min_passphrase_length" envconfig:"WALLET_MIN_PASSPHRASE_LENGTH"`
	CreateAttempts      int       `yaml:"create_attempts"`
	KDF                 KDFConfig `yaml:"kdf"`
}

type CacheConfig struct {
	Enabled     bool          `yaml:"enabled" envconfig:"CACHE_ENABLED"`
	NumCounters int64         `yaml:"num_counters"`
	MaxCost     int64         `yaml:"max_cost"`
	TTL         time.Duration `yaml:"ttl" envconfig:"CACHE_TTL"`
}

type Config struct {
	App         App               `yaml:"application"`
	HTTP        HTTPConfig        `yaml:"http"`
	GRPC        GRPCConfig        `yaml:"grpc"`
	Storage     StorageConfig     `yaml:"storage"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	KafkaLedger KafkaLedgerConfig `yaml:"kafka_ledger"`
	Otel        OtelConfig        `yaml:"otel"`
	Wallet      WalletConfig      `yaml:"wallet"`
	Cache       CacheConfig       `yaml:"cache"`
}

// Default значения, поверх которых накладываются файл, окружение и флаги
func Default() Config {
	kdf := crypto.DefaultKDFParams()

	return Config{
		App: App{Name: "pvx-wallet", Version: "dev", Env: "production"},
		HTTP: HTTPConfig{
			Listen:          ":8080",
			MaxBodyBytes:    64 << 10,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       RateLimitConfig{RPS: 5, Burst: 10, IdleTTL: 10 * time.Minute},
		},
		Storage: StorageConfig{Type: constants.StorageTypeMemory},
		Postgres: PostgresConfig{
			MaxConns:     10,
			QueryTimeout: constants.QueryDealine * time.Second,
			Retries:      constants.QueryRetries,
			MigrationDir: constants.MigrationDir + "/postgresql",
		},
		KafkaLedger: KafkaLedgerConfig{
			Topic:             constants.KafkaLedgerTopic,
			Group:             constants.KafkaLedgerGroup,
			ReadBatchSize:     100,
			ReadFlushInterval: 200 * time.Millisecond,
		},
		Otel: OtelConfig{Exporter: "none", BatchTimeout: 5 * time.Second},
		Wallet: WalletConfig{
			MinPassphraseLength: constants.MinPassphraseLength,
			CreateAttempts:      constants.WalletCreateAttempts,
			KDF:                 KDFConfig{N: kdf.N, R: kdf.R, P: kdf.P},
		},
		Cache: CacheConfig{Enabled: true, NumCounters: 1e5, MaxCost: 1 << 24, TTL: 30 * time.Second},
	}
}

// New загрузка конфигурации. Приоритет по возрастанию: значения по умолчанию, yaml, .env и окружение, флаги
func New(filePath string, envFile string, args []string) (Config, error) {
	config := Default()

	// 1. Читаем из config.yaml. Самый низкий приоритет
	file, err := os.Open(filePath)
	if err == nil {
		defer file.Close()
		decoder := yaml.NewDecoder(file)
		if decodeErr := decoder.Decode(&config); decodeErr != nil {
			return config, fmt.Errorf("Ошибка при чтении config.yaml: %v", decodeErr)
		}
	} else {
		log.Printf("config.yaml не найден, используются значения по умолчанию: %v", err)
	}

	// 2.1 Загрузка переменных окружения из .env (уже заданные переменные не перезаписываются)
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return config, fmt.Errorf("godotenv.Load: %w", err)
		}
	}

	// 2.2 Переопределяем переменные, полученные из конфиг файла
	if err := envconfig.Process("", &config); err != nil {
		return config, fmt.Errorf("envconfig.Process: %w", err)
	}

	// 3. Чтение параметров командной строки
	if err := config.parseFlags(args); err != nil {
		return config, err
	}

	return config, config.Validate()
}

func (c *Config) parseFlags(args []string) error {
	fs := flag.NewFlagSet(c.App.Name, flag.ContinueOnError)
	listen := fs.String("listen", "", "адрес HTTP сервера")
	storage := fs.String("storage", "", "тип хранилища: memory или postgres")
	dsn := fs.String("pg_dsn", "", "строка подключения к Postgresql")
	kafkaBrokers := fs.String("kafka_brokers", "", "брокеры Кафки через запятую")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("flags: %w", err)
	}

	// для каждого аргумента проверяем не пустой ли он, и если не пустой - переопределяем переменную конфига
	if *listen != "" {
		c.HTTP.Listen = *listen
	}
	if *storage != "" {
		c.Storage.Type = *storage
	}
	if *dsn != "" {
		c.Postgres.DSN = *dsn
	}
	if *kafkaBrokers != "" {
		c.KafkaLedger.Brokers = strings.Split(*kafkaBrokers, ",")
	}
	return nil
}

// Validate проверка согласованности значений
func (c Config) Validate() error {
	var errs []error

	switch c.Storage.Type {
	case constants.StorageTypeMemory:
	case constants.StorageTypePostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage type %q", c.Storage.Type))
	}

	if c.HTTP.Listen == "" {
		errs = append(errs, errors.New("http.listen is required"))
	}
	if c.Wallet.MinPassphraseLength < 1 {
		errs = append(errs, errors.New("wallet.min_passphrase_length must be positive"))
	}
	if c.KafkaLedger.Enabled && (len(c.KafkaLedger.Brokers) == 0 || c.KafkaLedger.Topic == "") {
		errs = append(errs, errors.New("kafka_ledger.brokers and kafka_ledger.topic are required when ledger is enabled"))
	}
	if c.KafkaLedger.FeedEnabled && !c.KafkaLedger.Enabled {
		errs = append(errs, errors.New("kafka_ledger.feed_enabled requires kafka_ledger.enabled"))
	}

	return errors.Join(errs...)
}

// KDFParams параметры деривации ключей для crypto.NewKDF
func (c Config) KDFParams() crypto.KDFParams {
	return crypto.KDFParams{
		N:           c.Wallet.KDF.N,
		R:           c.Wallet.KDF.R,
		P:           c.Wallet.KDF.P,
		Concurrency: c.Wallet.KDF.Concurrency,
	}
}
