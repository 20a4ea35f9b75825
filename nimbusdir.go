// Package nimbusdir wires configuration, logging, the S3 client and the
// folder engine into one Service.
package nimbusdir

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/3leaps/nimbusdir/internal/config"
	"github.com/3leaps/nimbusdir/internal/observability"
	"github.com/3leaps/nimbusdir/pkg/folder"
	"github.com/3leaps/nimbusdir/pkg/output"
	"github.com/3leaps/nimbusdir/pkg/provider"
	"github.com/3leaps/nimbusdir/pkg/provider/s3"
)

// Service is a ready-to-use folder engine over S3.
type Service struct {
	Engine   *folder.Engine
	Client   *s3.Client
	Logger   *zap.Logger
	Config   *config.Config
	Registry *prometheus.Registry
}

// Open loads configuration from path (empty for defaults and environment
// only), applies overrides, and builds the service. The configured logger
// also becomes the process-wide observability.Logger.
func Open(ctx context.Context, path string, overrides ...map[string]any) (*Service, error) {
	cfg, err := config.Load(path, overrides...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.Init(cfg.LoggerConfig())
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	client, err := s3.New(ctx, cfg.ClientConfig())
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	reg := prometheus.NewRegistry()
	metrics, err := folder.NewMetrics(reg)
	if err != nil {
		_ = client.Close()
		_ = logger.Sync()
		return nil, err
	}

	engine := folder.New(client, cfg.EngineConfig()).
		WithLogger(logger.Named("folder")).
		WithMetrics(metrics)

	logger.Debug("Service ready",
		zap.String("endpoint", cfg.S3.Endpoint),
		zap.String("region", cfg.S3.Region),
		zap.String("delimiter", cfg.Folders.Delimiter))

	return &Service{
		Engine:   engine,
		Client:   client,
		Logger:   logger,
		Config:   cfg,
		Registry: reg,
	}, nil
}

// WriteReport writes r to w as JSONL records.
func (s *Service) WriteReport(ctx context.Context, w io.Writer, r *folder.Report) error {
	return output.WriteReport(ctx, output.NewJSONLWriter(w, provider.ProviderS3.String()), r)
}

// Close releases idle connections and flushes the logger.
func (s *Service) Close() error {
	err := s.Client.Close()
	// Sync fails with EINVAL when stderr is a terminal.
	_ = s.Logger.Sync()
	return err
}
