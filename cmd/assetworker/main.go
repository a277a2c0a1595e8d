// Command assetworker retries reading images that failed to attach.
//
//	assetworker worker   run the Temporal worker executing reattach workflows
//	assetworker sweep    start a reattach workflow for every detached reading
//	assetworker watch    start reattach workflows as attach failures are published
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	minioadapter "github.com/kisansahayak/agrimonitor/internal/adapters/minio"
	natsadapter "github.com/kisansahayak/agrimonitor/internal/adapters/nats"
	"github.com/kisansahayak/agrimonitor/internal/adapters/postgres"
	"github.com/kisansahayak/agrimonitor/internal/adapters/valkey"
	"github.com/kisansahayak/agrimonitor/internal/core/domain"
	"github.com/kisansahayak/agrimonitor/internal/core/ports"
	"github.com/kisansahayak/agrimonitor/internal/core/usecases"
	"github.com/kisansahayak/agrimonitor/internal/pkg/config"
	"github.com/kisansahayak/agrimonitor/internal/pkg/logging"
	"github.com/kisansahayak/agrimonitor/internal/workflows"
)

const sweepBatch = 500

func main() {
	mode := "worker"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	cfg, err := config.Load("agrimonitor-assetworker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, "agrimonitor-assetworker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tc, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporallog.NewStructuredLogger(slog.Default()),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer tc.Close()

	switch mode {
	case "worker":
		runWorker(ctx, cfg, tc)
	case "sweep":
		runSweep(ctx, cfg, tc)
	case "watch":
		runWatch(ctx, cfg, tc)
	default:
		log.Fatalf("unknown mode %q (want worker, sweep or watch)", mode)
	}
}

func runWorker(ctx context.Context, cfg *config.Config, tc client.Client) {
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Without the stash every retry ends in AssetLost, so it is required here.
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		log.Fatalf("valkey: %v", err)
	}
	defer cache.Close()

	store, err := minioadapter.New(ctx, minioadapter.Config{
		Endpoint:  cfg.Minio.Endpoint,
		AccessKey: cfg.Minio.AccessKey,
		SecretKey: cfg.Minio.SecretKey,
		Bucket:    cfg.Minio.Bucket,
		UseSSL:    cfg.Minio.UseSSL,
		PublicURL: cfg.Minio.PublicURL,
	})
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	assets := usecases.NewAssetService(postgres.NewReadingRepo(db), store, cache, cfg.Minio.Folder,
		time.Duration(cfg.Assets.PendingTTLHours)*time.Hour)

	w := worker.New(tc, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.AssetReattachWorkflow)
	w.RegisterActivity(&workflows.AssetActivities{Assets: assets})

	slog.Info("asset worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

func runSweep(ctx context.Context, cfg *config.Config, tc client.Client) {
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	assets := usecases.NewAssetService(postgres.NewReadingRepo(db), nil, nil, cfg.Minio.Folder, 0)
	readings, err := assets.FindDetached(ctx, time.Duration(cfg.Assets.StaleMinutes)*time.Minute, sweepBatch)
	if err != nil {
		log.Fatalf("find detached readings: %v", err)
	}

	started := 0
	for _, r := range readings {
		if err := startReattach(ctx, tc, cfg.Temporal.TaskQueue, r.ID); err != nil {
			slog.Error("start reattach", "reading_id", r.ID, "error", err)
			continue
		}
		started++
	}
	slog.Info("sweep finished", "detached", len(readings), "started", started)
}

func runWatch(ctx context.Context, cfg *config.Config, tc client.Client) {
	s, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer s.Close()

	var sub ports.EventSubscriber = s
	err = sub.SubscribeAssetAttachFailed(ctx, func(ctx context.Context, event *domain.ReadingEvent) error {
		slog.Info("attach failure received", "reading_id", event.ReadingID, "reason", event.Reason)
		return startReattach(ctx, tc, cfg.Temporal.TaskQueue, event.ReadingID)
	})
	if err != nil {
		log.Fatalf("subscribe: %v", err)
	}

	slog.Info("watching attach failures", "subject", natsadapter.SubjectAssetAttachFailed)
	<-ctx.Done()
	slog.Info("watch stopped")
}

// startReattach starts the reading's workflow. A run already in flight for
// the same reading is reused.
func startReattach(ctx context.Context, tc client.Client, queue string, readingID int64) error {
	run, err := tc.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflows.WorkflowID(readingID),
		TaskQueue: queue,
	}, workflows.AssetReattachWorkflow, workflows.AssetReattachInput{ReadingID: readingID})
	if err != nil {
		return err
	}
	slog.Debug("reattach workflow started", "reading_id", readingID, "run_id", run.GetRunID())
	return nil
}
