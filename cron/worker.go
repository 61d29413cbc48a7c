package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"staybook/config"
	"staybook/models"
	"staybook/services/booking"
	"staybook/services/tasks"
	"staybook/utils"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Housekeeping cadence.
const (
	SweepClaimsSpec   = "@every 1m"
	CompleteStaysSpec = "@every 15m"
)

// RedisOpt is the asynq connection shared by the client, server and scheduler.
func RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	}
}

// NewMux routes reservation tasks to svc.
func NewMux(svc booking.ReservationService) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeReconcile, handleReconcileTask(svc))
	mux.HandleFunc(tasks.TypeSweepClaims, handleSweepClaimsTask(svc))
	mux.HandleFunc(tasks.TypeCompleteStays, handleCompleteStaysTask(svc))
	return mux
}

// InitReservationWorker runs the task server and the periodic scheduler in
// the background. The returned func stops both.
func InitReservationWorker(svc booking.ReservationService) func() {
	logger := utils.GetLogger().Named("worker")
	redisOpts := RedisOpt()

	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				tasks.QueueCritical: 6,
				tasks.QueueDefault:  1,
			},
			RetryDelayFunc: retryDelay,
			Logger:         logger.Sugar(),
		},
	)

	scheduler := asynq.NewScheduler(redisOpts, &asynq.SchedulerOpts{Logger: logger.Sugar()})
	if _, err := scheduler.Register(SweepClaimsSpec, tasks.NewSweepClaimsTask()); err != nil {
		logger.Error("failed to register claim sweep", zap.Error(err))
	}
	if _, err := scheduler.Register(CompleteStaysSpec, tasks.NewCompleteStaysTask()); err != nil {
		logger.Error("failed to register stay completion", zap.Error(err))
	}

	mux := NewMux(svc)

	ctx, cancel := context.WithCancel(context.Background())
	go monitorRedisConnection(ctx, logger)

	go func() {
		logger.Info("starting reservation worker")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			if err := srv.Run(mux); err != nil {
				logger.Error("worker failed to start", zap.Int("attempt", attempts), zap.Int("maxAttempts", maxAttempts), zap.Error(err))

				if attempts == maxAttempts {
					logger.Fatal("max worker start attempts reached")
				}
				time.Sleep(time.Duration(attempts*2) * time.Second)
			} else {
				break
			}
		}
	}()

	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Error("scheduler stopped", zap.Error(err))
		}
	}()

	return func() {
		cancel()
		scheduler.Shutdown()
		srv.Shutdown()
	}
}

// retryDelay backs reconciliation off linearly up to five minutes.
func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	d := time.Duration(n+1) * 10 * time.Second
	if d > 5*time.Minute {
		d = 5 * time.Minute
	}
	return d
}

func handleReconcileTask(svc booking.ReservationService) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p models.ReconcilePayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			utils.GetLogger().Error("invalid reconcile payload", zap.Error(err))
			return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
		}
		if err := svc.Reconcile(ctx, p); err != nil {
			utils.GetLogger().Warn("reconciliation attempt failed",
				zap.String("reservationId", p.ReservationID), zap.String("op", p.Op), zap.Error(err))
			return err
		}
		return nil
	}
}

func handleSweepClaimsTask(svc booking.ReservationService) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		_, err := svc.SweepClaims(ctx)
		return err
	}
}

func handleCompleteStaysTask(svc booking.ReservationService) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		n, err := svc.CompleteStays(ctx)
		if n > 0 {
			utils.GetLogger().Info("stays completed", zap.Int("count", n))
		}
		return err
	}
}

// monitorRedisConnection pings the queue database periodically to detect failures at runtime.
func monitorRedisConnection(ctx context.Context, logger *zap.Logger) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	})
	defer client.Close()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Ping(ctx).Err(); err != nil {
				logger.Warn("redis connection lost", zap.Error(err))
			}
		}
	}
}
