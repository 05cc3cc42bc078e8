package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StalePurger borra registros de verificacion creados antes de un instante.
type StalePurger interface {
	PurgeStale(ctx context.Context, createdBefore time.Time) (int64, error)
}

// PurgeJob elimina periodicamente los codigos de verificacion vencidos.
// retention debe ser >= cooldown y >= TTL para no alterar ninguna decision.
type PurgeJob struct {
	cron      *cron.Cron
	purger    StalePurger
	logger    *zap.Logger
	retention time.Duration
	timeout   time.Duration
	now       func() time.Time
}

func NewPurgeJob(logger *zap.Logger, purger StalePurger, retention, timeout time.Duration) *PurgeJob {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PurgeJob{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		purger:    purger,
		logger:    logger,
		retention: retention,
		timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start registra el job con la expresion cron dada (ej. "@every 1h") y arranca el scheduler.
func (j *PurgeJob) Start(schedule string) error {
	if _, err := j.cron.AddFunc(schedule, j.run); err != nil {
		return fmt.Errorf("register purge job %q: %w", schedule, err)
	}
	j.cron.Start()
	j.logger.Info("verification purge scheduler started", zap.String("schedule", schedule))
	return nil
}

// Stop detiene el scheduler y espera a que termine una corrida en curso.
func (j *PurgeJob) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info("verification purge scheduler stopped")
}

// RunOnce ejecuta una purga y devuelve la cantidad de registros borrados.
func (j *PurgeJob) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	cutoff := j.now().Add(-j.retention)
	return j.purger.PurgeStale(ctx, cutoff)
}

func (j *PurgeJob) run() {
	n, err := j.RunOnce(context.Background())
	if err != nil {
		j.logger.Error("purge stale verification codes failed", zap.Error(err))
		return
	}
	j.logger.Info("purged stale verification codes", zap.Int64("deleted", n))
}
