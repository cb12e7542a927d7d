package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kr/pretty"
	"gopkg.in/validator.v2"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Env      string   `yaml:"-"`
	HTTP     HTTP     `yaml:"http"`
	Log      Log      `yaml:"log"`
	Starknet Starknet `yaml:"starknet"`
	Chain    Chain    `yaml:"chain"`
	Encoding Encoding `yaml:"encoding"`
	Database Database `yaml:"database"`
	Cache    Cache    `yaml:"cache"`
	Redis    Redis    `yaml:"redis"`
	Kafka    Kafka    `yaml:"kafka"`
	Events   Events   `yaml:"events"`
	Payments Payments `yaml:"payments"`
}

type HTTP struct {
	Address        string        `yaml:"address" validate:"nonzero"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RateLimit      float64       `yaml:"rate_limit"`
	RateBurst      int           `yaml:"rate_burst"`
}

type Log struct {
	Level      string `yaml:"level"`
	FileName   string `yaml:"file_name"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

type Starknet struct {
	RPCURL           string `yaml:"rpc_url"`
	AccountAddress   string `yaml:"account_address"`
	PrivateKey       string `yaml:"private_key"`
	PublicKey        string `yaml:"public_key"`
	VerifierContract string `yaml:"verifier_contract"`
	CairoVersion     int    `yaml:"cairo_version"`
}

type Chain struct {
	SubmitTimeout time.Duration `yaml:"submit_timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	FeeMultiplier float64       `yaml:"fee_multiplier"`
}

type Encoding struct {
	LenientEnums bool `yaml:"lenient_enums"`
}

type Database struct {
	Driver string `yaml:"driver" validate:"regexp=^(sqlite|postgres)$"`
	DSN    string `yaml:"dsn" validate:"nonzero"`
}

type Cache struct {
	Driver string `yaml:"driver" validate:"regexp=^(memory|redis)$"`
}

type Redis struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type Events struct {
	PoolSize int  `yaml:"pool_size"`
	Redis    bool `yaml:"redis"`
	Kafka    bool `yaml:"kafka"`
}

type Payments struct {
	JWTSecret string `yaml:"jwt_secret" validate:"nonzero"`
}

// Path resolves the config file: explicit flag value, then CONFIG_PATH,
// then conf/<GO_ENV>/conf.yaml
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return filepath.Join("conf", GetEnv(), "conf.yaml")
}

// GetEnv returns the deployment environment, dev by default
func GetEnv() string {
	e := os.Getenv("GO_ENV")
	if len(e) == 0 {
		return "dev"
	}
	return e
}

// Load reads the YAML file at path, applies defaults and environment
// overrides, then validates the result
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(content)
}

// Parse is Load without the file and .env reads
func Parse(content []byte) (*Config, error) {
	conf := new(Config)
	if err := yaml.Unmarshal(content, conf); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	conf.Env = GetEnv()
	conf.applyEnv()
	conf.applyDefaults()

	if err := validator.Validate(conf); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return conf, nil
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&c.Starknet.RPCURL, "STARKNET_RPC_URL")
	override(&c.Starknet.AccountAddress, "STARKNET_ACCOUNT_ADDRESS")
	override(&c.Starknet.PrivateKey, "STARKNET_PRIVATE_KEY")
	override(&c.Starknet.PublicKey, "STARKNET_PUBLIC_KEY")
	override(&c.Starknet.VerifierContract, "VERIFIER_CONTRACT_ADDRESS")
	override(&c.Database.DSN, "DATABASE_DSN")
	override(&c.Redis.Address, "REDIS_ADDRESS")
	override(&c.Payments.JWTSecret, "PAYMENTS_JWT_SECRET")
	override(&c.HTTP.Address, "HTTP_ADDRESS")
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 15 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 150 * time.Second
	}
	if c.HTTP.RateLimit == 0 {
		c.HTTP.RateLimit = 10
	}
	if c.HTTP.RateBurst == 0 {
		c.HTTP.RateBurst = 20
	}
	if len(c.HTTP.AllowedOrigins) == 0 {
		c.HTTP.AllowedOrigins = []string{"*"}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Starknet.CairoVersion == 0 {
		c.Starknet.CairoVersion = 2
	}
	if c.Chain.SubmitTimeout == 0 {
		c.Chain.SubmitTimeout = 120 * time.Second
	}
	if c.Chain.PollInterval == 0 {
		c.Chain.PollInterval = 2 * time.Second
	}
	if c.Chain.FeeMultiplier == 0 {
		c.Chain.FeeMultiplier = 1.5
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "tradeproof.db"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "proof_updates"
	}
	if c.Events.PoolSize == 0 {
		c.Events.PoolSize = 64
	}
}

// Signing reports whether enough credentials are present to send transactions
func (c *Config) Signing() bool {
	s := c.Starknet
	return s.PrivateKey != "" && s.PublicKey != "" && s.AccountAddress != ""
}

// Redacted returns a copy safe to log
func (c *Config) Redacted() Config {
	out := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	out.Starknet.PrivateKey = mask(out.Starknet.PrivateKey)
	out.Payments.JWTSecret = mask(out.Payments.JWTSecret)
	out.Redis.Password = mask(out.Redis.Password)
	out.Database.DSN = mask(out.Database.DSN)
	return out
}

// Dump renders the redacted config for debug logs
func (c *Config) Dump() string {
	return pretty.Sprint(c.Redacted())
}
