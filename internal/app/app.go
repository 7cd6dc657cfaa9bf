// Package app assembles the service from configuration. The Lambda entrypoint
// and the CLI share it.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"insurance-agent/handler"
	"insurance-agent/internal/config"
	"insurance-agent/internal/domain"
	"insurance-agent/internal/integrations/openai"
	"insurance-agent/internal/integrations/paramstore"
	"insurance-agent/internal/ledger"
	"insurance-agent/internal/notify"
	"insurance-agent/internal/oracle"
	"insurance-agent/internal/repository"
	"insurance-agent/internal/session"
	"insurance-agent/internal/staff"
	"insurance-agent/internal/usecase"
)

// Ledger stores completed submissions for the staff dashboard.
type Ledger interface {
	Record(ctx context.Context, sub domain.Submission) error
	List(ctx context.Context) ([]domain.Submission, error)
}

// AuditLog records the session access trail and reads it back for staff.
type AuditLog interface {
	usecase.AuditSink
	staff.AuditReader
}

type App struct {
	Config  *config.Config
	Engine  *usecase.Engine
	Staff   *staff.Gate
	Handler *handler.Handler

	closers []func() error
}

// New wires every component named by cfg. AWS configuration is loaded only
// when a DynamoDB backend or SSM parameters are selected.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg}
	b := &builder{cfg: cfg, app: a}

	store, err := b.sessionStore(ctx)
	if err != nil {
		return nil, a.fail(err)
	}
	led, err := b.ledger(ctx)
	if err != nil {
		return nil, a.fail(err)
	}
	audit, err := b.auditLog(ctx, led)
	if err != nil {
		return nil, a.fail(err)
	}
	verifier, err := b.verifier(ctx)
	if err != nil {
		return nil, a.fail(err)
	}

	var hooks []usecase.CompletionHook
	if led != nil {
		hooks = append(hooks, usecase.CompletionFunc(led.Record))
	}
	if cfg.TwilioEnabled() {
		sms, err := notify.NewSMS(notify.SMSConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			From:       cfg.TwilioFrom,
			To:         cfg.AdmissionsPhone,
		})
		if err != nil {
			return nil, a.fail(err)
		}
		hooks = append(hooks, sms)
	}

	policy, err := usecase.PolicyByName(cfg.Variant)
	if err != nil {
		return nil, a.fail(err)
	}
	engineOpts := []usecase.Option{
		usecase.WithPolicy(policy),
		usecase.WithTimeout(cfg.OracleTimeout),
		usecase.WithCompletionHooks(hooks...),
	}
	var gateOpts []staff.GateOption
	if audit != nil {
		engineOpts = append(engineOpts, usecase.WithAuditSink(audit))
		gateOpts = append(gateOpts, staff.WithAuditReader(audit))
	}
	a.Engine, err = usecase.NewEngine(store, verifier, engineOpts...)
	if err != nil {
		return nil, a.fail(err)
	}

	var lister staff.SubmissionLister = staff.Empty{}
	if led != nil {
		lister = led
	}
	a.Staff, err = staff.NewGate(cfg.StaffPasswordHash, lister, gateOpts...)
	if err != nil {
		return nil, a.fail(err)
	}

	a.Handler, err = handler.NewHandler(a.Engine, a.Staff)
	if err != nil {
		return nil, a.fail(err)
	}

	slog.Info("app ready",
		"variant", policy.Name,
		"session_backend", cfg.SessionBackend,
		"ledger_backend", cfg.LedgerBackend,
		"oracle", cfg.Oracle,
		"audit", audit != nil,
		"sms", cfg.TwilioEnabled(),
	)
	return a, nil
}

// Close releases backend connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) fail(err error) error {
	if cerr := a.Close(); cerr != nil {
		slog.Warn("app cleanup failed", "error", cerr)
	}
	return err
}

type builder struct {
	cfg *config.Config
	app *App

	aws    *aws.Config
	params paramstore.Getter
}

func (b *builder) awsConfig(ctx context.Context) (aws.Config, error) {
	if b.aws != nil {
		return *b.aws, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("app: load aws config: %w", err)
	}
	b.aws = &cfg
	return cfg, nil
}

func (b *builder) sessionStore(ctx context.Context) (usecase.SessionStore, error) {
	switch b.cfg.SessionBackend {
	case config.BackendRedis:
		client := session.DialRedis(b.cfg.RedisAddr, b.cfg.RedisPassword, b.cfg.RedisDB)
		b.app.closers = append(b.app.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("app: redis ping: %w", err)
		}
		return session.NewRedisStore(client, b.cfg.SessionTTL)
	case config.BackendDynamoDB:
		awsCfg, err := b.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		return repository.NewSessionStore(dynamodb.NewFromConfig(awsCfg), b.cfg.SessionTable, b.cfg.SessionTTL)
	default:
		return session.NewMemoryStore(), nil
	}
}

func (b *builder) ledger(ctx context.Context) (Ledger, error) {
	switch b.cfg.LedgerBackend {
	case config.BackendSQLite:
		l, err := ledger.Open(b.cfg.LedgerPath)
		if err != nil {
			return nil, err
		}
		b.app.closers = append(b.app.closers, l.Close)
		return l, nil
	case config.BackendDynamoDB:
		awsCfg, err := b.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		return repository.NewLedger(dynamodb.NewFromConfig(awsCfg), b.cfg.SubmissionsTable)
	default:
		return nil, nil
	}
}

// auditLog reuses the sqlite ledger database when there is one, otherwise
// the DynamoDB audit table when configured.
func (b *builder) auditLog(ctx context.Context, led Ledger) (AuditLog, error) {
	if l, ok := led.(*ledger.SQLite); ok {
		return l, nil
	}
	if b.cfg.AuditTable == "" {
		return nil, nil
	}
	awsCfg, err := b.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	return repository.NewAuditLog(dynamodb.NewFromConfig(awsCfg), b.cfg.AuditTable)
}

func (b *builder) verifier(ctx context.Context) (oracle.Verifier, error) {
	switch b.cfg.Oracle {
	case config.OracleHTTP:
		var opts []oracle.HTTPOption
		if b.cfg.OraclePublicKey != "" {
			key, err := oracle.ParsePublicKey(b.cfg.OraclePublicKey)
			if err != nil {
				return nil, err
			}
			opts = append(opts, oracle.WithRecipientKey(key))
		}
		return oracle.NewHTTP(b.cfg.OracleEndpoint, opts...)
	case config.OracleLLM:
		params, err := b.paramGetter(ctx)
		if err != nil {
			return nil, err
		}
		chat, err := openai.NewClient(params, b.cfg.ParamPrefix, openai.WithBaseURL(b.cfg.OpenAIBaseURL))
		if err != nil {
			return nil, err
		}
		return oracle.NewLLM(params, chat, b.cfg.ParamPrefix, b.cfg.Facility)
	default:
		return oracle.NewCanned(), nil
	}
}

func (b *builder) paramGetter(ctx context.Context) (paramstore.Getter, error) {
	if b.params != nil {
		return b.params, nil
	}
	if b.cfg.ParamSource == config.ParamSourceLocal {
		p, err := localParams(b.cfg)
		if err != nil {
			return nil, err
		}
		b.params = p
		return p, nil
	}
	awsCfg, err := b.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	p, err := paramstore.New(ssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, err
	}
	b.params = p
	return p, nil
}

// localParams lays the configured OpenAI settings out under the same names the
// SSM deployment uses.
func localParams(cfg *config.Config) (paramstore.Static, error) {
	token, err := json.Marshal(map[string]string{"token": cfg.OpenAIAPIKey})
	if err != nil {
		return nil, err
	}
	kb := ""
	if cfg.KnowledgeBaseFile != "" {
		raw, err := os.ReadFile(cfg.KnowledgeBaseFile)
		if err != nil {
			return nil, fmt.Errorf("app: read knowledge base: %w", err)
		}
		kb = string(raw)
	}
	prefix := cfg.ParamPrefix
	return paramstore.Static{
		prefix + "/open-ai-token":       string(token),
		prefix + "/config/openai_model": cfg.OpenAIModel,
		prefix + "/knowledge_base":      kb,
	}, nil
}
