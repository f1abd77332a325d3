package main

import (
	"os"
	"time"

	"divvy/internal/amqp"
	"divvy/internal/cli"
	"divvy/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	auditWorker := worker.NewAuditWorker(repo, cfg.AuditBatchSize)

	// The broker is optional: without it the worker still audits expenses
	// through the periodic sweep.
	var client *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		client, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to connect to AMQP, running in sweep-only mode", "error", err)
			client = nil
		}
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		if client != nil {
			if err := client.Close(); err != nil {
				logger.Error("AMQP close error", "error", err)
			}
		}
	})

	// Catch up on expenses recorded while the worker was down.
	if err := auditWorker.StartupCheck(ctx); err != nil {
		logger.Error("Startup audit check failed", "error", err)
		os.Exit(1)
	}

	if client != nil {
		go func() {
			err := client.ConsumeExpenseRecorded(ctx, func(msg *amqp.ExpenseRecordedMessage) error {
				return auditWorker.HandleRecordedMessage(ctx, msg)
			})
			if err != nil && ctx.Err() == nil {
				logger.Error("AMQP consumer stopped", "error", err)
			}
		}()
	}

	logger.Info("Audit worker started",
		"interval", cfg.AuditInterval.String(),
		"batch_size", cfg.AuditBatchSize,
		"amqp_enabled", client != nil)

	ticker := time.NewTicker(cfg.AuditInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cli.WaitForShutdown(ctx, done)
			logger.Info("Audit worker stopped")
			return
		case <-ticker.C:
			if err := auditWorker.ProcessUnaudited(ctx); err != nil {
				logger.Error("Audit sweep failed", "error", err)
			}
		}
	}
}
