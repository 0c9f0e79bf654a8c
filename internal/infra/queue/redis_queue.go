package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"manga-translate-pipeline/internal/config"
	"manga-translate-pipeline/internal/domain/model"
	ports "manga-translate-pipeline/internal/domain/ports/queue"
)

var _ ports.Queue = (*RedisQueue)(nil)

// RedisQueue is the broker-backed Queueing Layer: one Redis list per stage,
// consumed by bounded worker goroutines. Pending tasks survive a process
// crash; in-flight tasks do not.
type RedisQueue struct {
	cli  *redis.Client
	exec ports.Executor

	nA, nB int

	wg   sync.WaitGroup
	quit chan struct{}
	log  *zerolog.Logger
}

const (
	stageAKey = "pipeline:queue:stage-a"
	stageBKey = "pipeline:queue:stage-b"
)

func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	cli := redis.NewClient(&redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return cli, nil
}

func NewRedisQueue(cli *redis.Client, exec ports.Executor, stageAWorkers, stageBWorkers int, log *zerolog.Logger) *RedisQueue {
	if stageAWorkers <= 0 {
		stageAWorkers = 1
	}
	if stageBWorkers <= 0 {
		stageBWorkers = 1
	}
	return &RedisQueue{
		cli:  cli,
		exec: exec,
		nA:   stageAWorkers,
		nB:   stageBWorkers,
		quit: make(chan struct{}),
		log:  log,
	}
}

func stageKey(stage model.Stage) string {
	if stage == model.StageB {
		return stageBKey
	}
	return stageAKey
}

func (q *RedisQueue) Enqueue(ctx context.Context, task ports.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return q.cli.LPush(ctx, stageKey(task.Stage), payload).Err()
}

func (q *RedisQueue) Start(ctx context.Context) {
	q.spawn(ctx, stageAKey, q.nA)
	q.spawn(ctx, stageBKey, q.nB)
}

func (q *RedisQueue) spawn(ctx context.Context, key string, n int) {
	for i := 0; i < n; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-q.quit:
					return
				default:
				}
				// Short poll so shutdown is noticed promptly.
				res, err := q.cli.BRPop(ctx, time.Second, key).Result()
				if err != nil {
					if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
						q.log.Warn().Err(err).Str("key", key).Msg("queue pop failed")
						time.Sleep(time.Second)
					}
					continue
				}
				if len(res) < 2 {
					continue
				}
				var task ports.Task
				if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
					q.log.Error().Err(err).Str("key", key).Msg("malformed task payload dropped")
					continue
				}
				q.exec.Execute(ctx, task)
			}
		}()
	}
}

func (q *RedisQueue) Stop() {
	close(q.quit)
	q.wg.Wait()
}
