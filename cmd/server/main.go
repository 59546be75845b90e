package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	webAdapter "importdesk/internal/adapters/web"
	"importdesk/internal/app"
	"importdesk/internal/core"
	"importdesk/internal/db"
	"importdesk/internal/jobs"
	"importdesk/internal/outbox"
)

func main() {
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer pool.Close()

	refs := core.NewReferenceGenerator()
	perms := core.NewPermissionService(pool)
	audit := core.NewAuditSink(pool)
	costs := core.NewCostLedgerService(pool)
	orders := core.NewPurchaseOrderService(pool, refs, perms, audit, costs)
	docs := core.NewDocumentService(pool, refs)

	svc := app.NewAppService(pool, orders, docs, costs, audit)

	dispatcher := outbox.NewDispatcher(pool, log)
	dispatcher.Handle(outbox.TopicStorageRecalculate, func(ctx context.Context, msg outbox.Message) error {
		var tuple core.StorageTuple
		if err := json.Unmarshal(msg.Payload, &tuple); err != nil {
			return err
		}
		return costs.RecalculateStorage(ctx, tuple)
	})
	dispatcher.Handle(outbox.TopicOrderReceived, func(ctx context.Context, msg outbox.Message) error {
		log.WithField("payload", string(msg.Payload)).Info("order received")
		return nil
	})
	go dispatcher.Run(ctx)

	accrual := jobs.NewStorageAccrualJob(pool, log)
	if err := accrual.Start(); err != nil {
		log.WithError(err).Fatal("storage accrual job failed to start")
	}
	defer accrual.Stop()

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	handler := webAdapter.NewHandler(svc, allowedOrigins, log)

	server := &http.Server{Addr: ":" + port, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.WithField("port", port).Info("server starting")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server failed")
	}
}
