package dispatch

import (
	"context"
	"time"

	"contentplane/pkg/task"
	"contentplane/services/post"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	sweepInterval  = time.Minute
	sweepBatchSize = 100
)

// Sweeper periodically re-enqueues due posts. It is the only component that
// restarts recurring and partially delivered posts, so the sweep plus the
// idempotent workflow start together bound how many cycles a post can have
// open: exactly one.
type Sweeper struct {
	posts    *post.Service
	enqueuer task.Enqueuer
}

func NewSweeper(posts *post.Service, enqueuer task.Enqueuer) *Sweeper {
	return &Sweeper{posts: posts, enqueuer: enqueuer}
}

// StartSweeper dipanggil otomatis oleh FX saat service start
func StartSweeper(lc fx.Lifecycle, s *Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go s.run(ctx)
			return nil
		},
	})
}

func (s *Sweeper) run(ctx context.Context) {
	zap.L().Info("[Sweeper] started dispatch sweep loop", zap.Duration("interval", sweepInterval))

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Sweeper] stopped")
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	start := time.Now()

	due, err := s.posts.ListDue(ctx, time.Now().UTC(), sweepBatchSize)
	if err != nil {
		zap.L().Error("[Sweeper] failed to list due posts", zap.Error(err))
		return
	}

	if len(due) == 0 {
		return
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(10)
	for _, p := range due {
		p := p
		g.Go(func() error {
			_, err := s.enqueuer.Enqueue(NewStartCycleTask(StartCyclePayload{
				PostID:   p.ID,
				TenantID: p.TenantID,
			}))
			if err != nil {
				zap.L().Error("[Sweeper] failed to enqueue due post",
					zap.String("post_id", p.ID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("[Sweeper] sweep finished",
		zap.Int("due_posts", len(due)),
		zap.Duration("duration", time.Since(start)),
	)
}
