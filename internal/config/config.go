// Package config loads service settings from defaults, an optional YAML file,
// an optional .env file and INSURANCE_AGENT_* environment variables, in that
// order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const EnvPrefix = "INSURANCE_AGENT_"

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendDynamoDB = "dynamodb"
	BackendSQLite   = "sqlite"
	BackendNone     = "none"

	OracleCanned = "canned"
	OracleLLM    = "llm"
	OracleHTTP   = "http"

	ParamSourceSSM   = "ssm"
	ParamSourceLocal = "local"
)

type Config struct {
	Variant string `koanf:"variant"`

	SessionBackend string        `koanf:"session_backend"`
	SessionTable   string        `koanf:"session_table"`
	SessionTTL     time.Duration `koanf:"session_ttl"`
	RedisAddr      string        `koanf:"redis_addr"`
	RedisPassword  string        `koanf:"redis_password"`
	RedisDB        int           `koanf:"redis_db"`

	LedgerBackend    string `koanf:"ledger_backend"`
	LedgerPath       string `koanf:"ledger_path"`
	SubmissionsTable string `koanf:"submissions_table"`
	// AuditTable enables the DynamoDB access audit log. The sqlite ledger
	// keeps its audit log in the ledger database instead.
	AuditTable string `koanf:"audit_table"`

	Oracle          string        `koanf:"oracle"`
	OracleEndpoint  string        `koanf:"oracle_endpoint"`
	OraclePublicKey string        `koanf:"oracle_public_key"`
	OracleTimeout   time.Duration `koanf:"oracle_timeout"`
	Facility        string        `koanf:"facility"`

	// ParamSource is "ssm" or "local". Local serves the OpenAI token, model
	// and knowledge base from the keys below instead of Parameter Store.
	ParamSource       string `koanf:"param_source"`
	ParamPrefix       string `koanf:"param_prefix"`
	OpenAIBaseURL     string `koanf:"openai_base_url"`
	OpenAIAPIKey      string `koanf:"openai_api_key"`
	OpenAIModel       string `koanf:"openai_model"`
	KnowledgeBaseFile string `koanf:"knowledge_base_file"`

	StaffPasswordHash string `koanf:"staff_password_hash"`

	TwilioAccountSID string `koanf:"twilio_account_sid"`
	TwilioAuthToken  string `koanf:"twilio_auth_token"`
	TwilioFrom       string `koanf:"twilio_from"`
	AdmissionsPhone  string `koanf:"admissions_phone"`

	HTTPAddr       string   `koanf:"http_addr"`
	RateLimitRPS   float64  `koanf:"rate_limit_rps"`
	RateLimitBurst int      `koanf:"rate_limit_burst"`
	CORSOrigins    []string `koanf:"cors_origins"`
}

func Default() *Config {
	return &Config{
		Variant:        "standard",
		SessionBackend: BackendMemory,
		SessionTTL:     24 * time.Hour,
		RedisAddr:      "localhost:6379",
		LedgerBackend:  BackendNone,
		LedgerPath:     "data/submissions.db",
		Oracle:         OracleCanned,
		OracleTimeout:  30 * time.Second,
		Facility:       "NewVisionWellness",
		ParamSource:    ParamSourceSSM,
		ParamPrefix:    "/insurance-agent",
		OpenAIBaseURL:  "https://api.openai.com/v1",
		OpenAIModel:    "gpt-4o-mini",
		HTTPAddr:       ":8080",
		RateLimitRPS:   2,
		RateLimitBurst: 10,
		CORSOrigins:    []string{"*"},
	}
}

// Load builds a Config. path names an optional YAML file; dotenv names
// optional .env files. Missing files are skipped.
func Load(path string, dotenv ...string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: access %s: %w", path, err)
		}
	}

	for _, f := range dotenv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	return cfg, nil
}

// splitList expands comma-separated entries, which is how lists arrive from
// the environment.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

var (
	validVariants        = map[string]bool{"standard": true, "secure": true}
	validSessionBackends = map[string]bool{BackendMemory: true, BackendRedis: true, BackendDynamoDB: true}
	validLedgerBackends  = map[string]bool{BackendNone: true, BackendSQLite: true, BackendDynamoDB: true}
	validOracles         = map[string]bool{OracleCanned: true, OracleLLM: true, OracleHTTP: true}
	validParamSources    = map[string]bool{ParamSourceSSM: true, ParamSourceLocal: true}
)

func (c *Config) Validate() error {
	if !validVariants[c.Variant] {
		return fmt.Errorf("invalid variant %q: must be one of standard, secure", c.Variant)
	}
	if !validSessionBackends[c.SessionBackend] {
		return fmt.Errorf("invalid session_backend %q: must be one of memory, redis, dynamodb", c.SessionBackend)
	}
	if c.SessionBackend == BackendDynamoDB && c.SessionTable == "" {
		return errors.New("session_table is required for the dynamodb session backend")
	}
	if c.SessionBackend == BackendRedis && c.RedisAddr == "" {
		return errors.New("redis_addr is required for the redis session backend")
	}
	if c.SessionTTL <= 0 {
		return errors.New("session_ttl must be positive")
	}
	if !validLedgerBackends[c.LedgerBackend] {
		return fmt.Errorf("invalid ledger_backend %q: must be one of none, sqlite, dynamodb", c.LedgerBackend)
	}
	if c.LedgerBackend == BackendSQLite && c.LedgerPath == "" {
		return errors.New("ledger_path is required for the sqlite ledger")
	}
	if c.LedgerBackend == BackendDynamoDB && c.SubmissionsTable == "" {
		return errors.New("submissions_table is required for the dynamodb ledger")
	}
	if !validOracles[c.Oracle] {
		return fmt.Errorf("invalid oracle %q: must be one of canned, llm, http", c.Oracle)
	}
	if c.Oracle == OracleHTTP && c.OracleEndpoint == "" {
		return errors.New("oracle_endpoint is required for the http oracle")
	}
	if c.OracleTimeout <= 0 {
		return errors.New("oracle_timeout must be positive")
	}
	if !validParamSources[c.ParamSource] {
		return fmt.Errorf("invalid param_source %q: must be one of ssm, local", c.ParamSource)
	}
	if c.Oracle == OracleLLM && c.ParamSource == ParamSourceLocal && c.OpenAIAPIKey == "" {
		return errors.New("openai_api_key is required for the llm oracle with local params")
	}
	if c.TwilioEnabled() && (c.TwilioFrom == "" || c.AdmissionsPhone == "") {
		return errors.New("twilio_from and admissions_phone are required when twilio credentials are set")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return errors.New("rate_limit_rps and rate_limit_burst must be non-negative")
	}
	return nil
}

// TwilioEnabled reports whether admissions SMS should be sent.
func (c *Config) TwilioEnabled() bool {
	return c.TwilioAccountSID != "" || c.TwilioAuthToken != ""
}
