package jobs

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"importdesk/internal/core"
	"importdesk/internal/outbox"
)

// StorageAccrualJob enqueues a nightly storage-cost recalculation for every
// warehouse/SKU/lot tuple that still holds stock. The recalculation itself
// runs through the outbox dispatcher so a crash mid-run never loses tuples.
type StorageAccrualJob struct {
	pool   *pgxpool.Pool
	cron   *cron.Cron
	logger *logrus.Logger
}

// NewStorageAccrualJob creates the nightly storage accrual job.
func NewStorageAccrualJob(pool *pgxpool.Pool, logger *logrus.Logger) *StorageAccrualJob {
	return &StorageAccrualJob{
		pool:   pool,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start schedules the accrual for 02:00 every night.
func (j *StorageAccrualJob) Start() error {
	_, err := j.cron.AddFunc("0 2 * * *", func() {
		ctx := context.Background()
		if err := j.enqueueAll(ctx); err != nil {
			j.logger.WithError(err).Error("storage accrual enqueue failed")
		}
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("storage accrual job started")
	return nil
}

// Stop stops the scheduler; an in-flight enqueue finishes first.
func (j *StorageAccrualJob) Stop() {
	j.cron.Stop()
	j.logger.Info("storage accrual job stopped")
}

func (j *StorageAccrualJob) enqueueAll(ctx context.Context) error {
	tx, err := j.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin storage accrual enqueue: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT warehouse_code, sku_code, lot_ref
		FROM inventory_transactions
		GROUP BY warehouse_code, sku_code, lot_ref
		HAVING SUM(cartons_in - cartons_out) > 0`)
	if err != nil {
		return fmt.Errorf("list stocked tuples: %w", err)
	}
	var tuples []core.StorageTuple
	for rows.Next() {
		var t core.StorageTuple
		if err := rows.Scan(&t.WarehouseCode, &t.SKUCode, &t.LotRef); err != nil {
			rows.Close()
			return fmt.Errorf("scan stocked tuple: %w", err)
		}
		tuples = append(tuples, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, t := range tuples {
		if err := outbox.EnqueueTx(ctx, tx, outbox.TopicStorageRecalculate, t); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit storage accrual enqueue: %w", err)
	}
	j.logger.WithField("tuples", len(tuples)).Info("storage accrual enqueued")
	return nil
}
