package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"golang.org/x/crypto/ssh"

	"github.com/edvin/deploytrack/internal/activity"
	"github.com/edvin/deploytrack/internal/config"
	"github.com/edvin/deploytrack/internal/core"
	"github.com/edvin/deploytrack/internal/db"
	"github.com/edvin/deploytrack/internal/instancesync"
	"github.com/edvin/deploytrack/internal/logging"
	"github.com/edvin/deploytrack/internal/metrics"
	"github.com/edvin/deploytrack/internal/provider"
	"github.com/edvin/deploytrack/internal/workflow"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("worker"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	if *migrateFlag {
		logger.Info().Msg("running database migrations")
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	metrics.RegisterPgxPoolMetrics(pool)

	tc, err := temporalclient.Dial(temporalclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	services := core.NewServices(pool, tc, cfg.SyncCronSchedule)

	deps := instancesync.Deps{
		Instances: services.Instance,
		Summaries: services.DeploymentSummary,
		Mappings:  services.InfraMapping,
		Logger:    logger,
	}
	providers := buildProviders(ctx, cfg, logger)
	factory := instancesync.NewFactory(deps, providers)
	orchestrator := instancesync.NewOrchestrator(
		deps, factory, services.Events, services.Lock,
		services.SyncStatus, services.PerpetualTask, cfg.SyncFailureGrace,
	)

	w := worker.New(tc, core.TaskQueue, worker.Options{})

	// Register activities
	syncActivities := activity.NewSync(orchestrator)
	w.RegisterActivity(syncActivities)

	retentionActivities := activity.NewRetention(services.Instance, cfg.InstanceRetention)
	w.RegisterActivity(retentionActivities)

	// Register workflows
	w.RegisterWorkflow(workflow.DeploymentEventWorkflow)
	w.RegisterWorkflow(workflow.InstanceSyncWorkflow)
	w.RegisterWorkflow(workflow.PurgeInstancesWorkflow)

	if cfg.MetricsAddr != "" {
		metricsSrv := metrics.NewServer(cfg.MetricsAddr)
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("starting metrics server")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	go func() {
		logger.Info().Str("taskQueue", core.TaskQueue).Msg("starting temporal worker")
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("worker failed")
		}
	}()

	// Register the retention purge cron. An already-existing schedule is fine
	// so re-deploys do not fail.
	_, err = tc.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:           "instance-purge-cron",
		TaskQueue:    core.TaskQueue,
		CronSchedule: cfg.PurgeCronSchedule,
	}, workflow.PurgeInstancesWorkflow)
	if err != nil {
		logger.Warn().Err(err).Msg("purge cron not started")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down worker")
	cancel()
}

// buildProviders wires the backend clients the configuration has credentials
// for. A backend without credentials stays nil until someone configures a
// mapping that needs it.
func buildProviders(ctx context.Context, cfg *config.Config, logger zerolog.Logger) instancesync.Providers {
	var p instancesync.Providers

	awsCfg, err := provider.NewAWSConfig(ctx, cfg.AWSRegion, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey)
	if err != nil {
		logger.Warn().Err(err).Msg("aws clients unavailable")
	} else {
		asg := provider.NewASGClient(awsCfg)
		p.ASG = asg
		p.CodeDeploy = provider.NewCodeDeployClient(awsCfg)
		p.ECS = provider.NewECSClient(awsCfg)
		p.Lambda = provider.NewLambdaClient(awsCfg)
	}

	k8s, err := provider.NewK8sClient()
	if err != nil {
		logger.Warn().Err(err).Msg("kubernetes client unavailable")
	} else {
		p.K8s = k8s
	}

	if cfg.AzureSubscriptionID != "" {
		azure, err := provider.NewAzureClient(cfg.AzureSubscriptionID)
		if err != nil {
			logger.Warn().Err(err).Msg("azure client unavailable")
		} else {
			p.Azure = azure
		}
	}

	if cfg.PCFAPIURL != "" {
		pcf, err := provider.NewPCFClient(cfg.PCFAPIURL, cfg.PCFClientID, cfg.PCFClientSecret)
		if err != nil {
			logger.Warn().Err(err).Msg("cloud foundry client unavailable")
		} else {
			p.PCF = pcf
		}
	}

	if cfg.SpotinstToken != "" {
		p.Spotinst = provider.NewSpotinstClient(cfg.SpotinstToken, cfg.SpotinstAccount)
	}

	if cfg.SSHUser != "" {
		var signer ssh.Signer
		if cfg.SSHKeyPath != "" {
			key, err := os.ReadFile(cfg.SSHKeyPath)
			if err != nil {
				logger.Warn().Err(err).Msg("ssh key unreadable, probing without auth")
			} else if s, err := ssh.ParsePrivateKey(key); err != nil {
				logger.Warn().Err(err).Msg("ssh key unparseable, probing without auth")
			} else {
				signer = s
			}
		}
		p.Hosts = provider.NewHostProber(cfg.SSHUser, signer)
	}

	return p
}
