package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/hously/internal/checkpoint"
)

// Scheduler prunes stale thread checkpoints on a cron schedule. With Redis
// available a SetNX lock keeps multiple replicas from pruning concurrently.
type Scheduler struct {
	Checkpoints checkpoint.Manager
	Rdb         *redis.Client
	Cron        string
	Retention   time.Duration
	Stop        chan struct{}
	Logger      *log.Logger
}

func (s *Scheduler) Start() {
	if s.Logger == nil {
		s.Logger = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	}
	if s.Retention <= 0 {
		return
	}
	expr, err := cronexpr.Parse(s.Cron)
	if err != nil {
		s.Logger.Printf("invalid retention cron %q, pruning disabled: %v", s.Cron, err)
		return
	}
	go s.loop(expr)
}

func (s *Scheduler) loop(expr *cronexpr.Expression) {
	for {
		next := expr.Next(time.Now())
		if next.IsZero() {
			return
		}
		select {
		case <-s.Stop:
			return
		case <-time.After(time.Until(next)):
			s.prune()
		}
	}
}

func (s *Scheduler) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if s.Rdb != nil {
		ok, err := s.Rdb.SetNX(ctx, "hously:sched:prune", "1", 2*time.Minute).Result()
		if err == nil && !ok {
			return
		}
		defer s.Rdb.Del(ctx, "hously:sched:prune")
	}

	cutoff := time.Now().Add(-s.Retention)
	n, err := s.Checkpoints.PruneBefore(ctx, cutoff)
	if err != nil {
		s.Logger.Printf("retention prune failed: %v", err)
		return
	}
	if n > 0 {
		s.Logger.Printf("pruned %d threads idle since %s", n, cutoff.Format(time.RFC3339))
	}
}
