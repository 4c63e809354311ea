package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/kelseyhightower/envconfig"

	"messenger/handler"
	"messenger/internal/integrations/paramstore"
	"messenger/internal/repository/dynamo"
	"messenger/internal/usecase"
)

type Config struct {
	TableName        string `envconfig:"TABLE_NAME" required:"true"`
	ParamPrefix      string `envconfig:"PARAM_PREFIX"`
	MaxPageSize      int    `envconfig:"MAX_PAGE_SIZE" default:"100"`
	MaxContentLength int    `envconfig:"MAX_CONTENT_LENGTH" default:"4000"`
	LogLevel         string `envconfig:"LOG_LEVEL" default:"info"`
}

func main() {
	ctx := context.Background()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	log := newLogger(cfg.LogLevel)

	// The repository owns backoff and per-call timeouts; keep the SDK from
	// stacking its own retries underneath.
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(1))
	if err != nil {
		log.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// Deploy-time overrides, when a parameter prefix is configured.
	if cfg.ParamPrefix != "" {
		ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			log.Error("failed to create SSM client", "err", err)
			os.Exit(1)
		}
		prefix := "/" + cfg.ParamPrefix + "/"
		if cfg.MaxPageSize, err = ssmClient.GetIntParameter(ctx, prefix+"max_page_size", cfg.MaxPageSize); err != nil {
			log.Error("failed to load page size parameter", "err", err)
			os.Exit(1)
		}
		if cfg.MaxContentLength, err = ssmClient.GetIntParameter(ctx, prefix+"max_content_length", cfg.MaxContentLength); err != nil {
			log.Error("failed to load content length parameter", "err", err)
			os.Exit(1)
		}
	}

	store, err := dynamo.New(awsdynamodb.NewFromConfig(awsCfg), cfg.TableName, log)
	if err != nil {
		log.Error("failed to create store", "err", err)
		os.Exit(1)
	}

	conversations, err := usecase.NewConversationService(store, log, cfg.MaxPageSize)
	if err != nil {
		log.Error("failed to create conversation service", "err", err)
		os.Exit(1)
	}
	messages, err := usecase.NewMessageService(store, store, log, cfg.MaxPageSize, cfg.MaxContentLength)
	if err != nil {
		log.Error("failed to create message service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(conversations, messages, log)
	if err != nil {
		log.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
