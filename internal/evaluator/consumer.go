package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/domain"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/pkg/logger"
)

// Dispatcher is where approved alerts go. Defined here so the consumer
// depends on behavior, not on the dispatcher package.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert domain.Alert) ([]domain.DeliveryJob, error)
}

// Queue is the producer side of the condition queue. The budget subsystem
// (via the HTTP ingest endpoint) pushes conditions here instead of calling
// the evaluator synchronously, which makes back-pressure and retry
// first-class: a slow evaluator grows the list, it never blocks the
// financial write.
type Queue struct {
	client *redis.Client
	key    string
}

// NewQueue creates a producer for the given Redis list.
func NewQueue(client *redis.Client, key string) *Queue {
	return &Queue{client: client, key: key}
}

// Enqueue pushes a condition onto the queue.
func (q *Queue) Enqueue(ctx context.Context, cond domain.AlertCondition) error {
	data, err := json.Marshal(cond)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return &domain.TransientInfraError{Op: "queue.Enqueue", Err: err}
	}
	return nil
}

// Depth returns the number of conditions waiting.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Consumer pops conditions off the queue and runs them through the
// evaluator and dispatcher. Several consumers run per process and any
// number of processes may consume the same list; BRPOP hands each message
// to exactly one of them.
type Consumer struct {
	client     *redis.Client
	key        string
	eval       *Evaluator
	dispatcher Dispatcher
	workers    int
	log        *logger.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewConsumer creates a consumer pool over the given Redis list.
func NewConsumer(client *redis.Client, key string, eval *Evaluator, dispatcher Dispatcher, workers int) *Consumer {
	if workers <= 0 {
		workers = 4
	}
	return &Consumer{
		client:     client,
		key:        key,
		eval:       eval,
		dispatcher: dispatcher,
		workers:    workers,
		log:        logger.With("condition-consumer"),
	}
}

// Start launches the consumer goroutines.
func (c *Consumer) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)

	c.log.Info("starting condition consumers", "workers", c.workers, "queue", c.key)
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.consume(ctx)
	}
}

// Stop cancels the consumers and waits for them to drain.
func (c *Consumer) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()
}

func (c *Consumer) consume(ctx context.Context) {
	defer c.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}

		res, err := c.client.BRPop(ctx, 5*time.Second, c.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("queue pop failed", "error", err.Error())
			time.Sleep(time.Second)
			continue
		}
		if len(res) < 2 {
			continue
		}

		c.handle(ctx, []byte(res[1]))
	}
}

func (c *Consumer) handle(ctx context.Context, raw []byte) {
	var cond domain.AlertCondition
	if err := json.Unmarshal(raw, &cond); err != nil {
		// Malformed input is rejected, never retried.
		c.log.Warn("dropping malformed condition", "error", err.Error())
		return
	}

	alerts, err := c.eval.Evaluate(ctx, cond)
	if err != nil {
		// Evaluator failures never roll back the financial write that
		// triggered them: log, surface to monitoring, move on.
		if domain.IsValidation(err) {
			c.log.Warn("dropping invalid condition", "error", err.Error(), "user_id", cond.UserID)
		} else {
			c.log.Error("evaluation failed", "error", err.Error(), "user_id", cond.UserID, "budget_id", cond.BudgetID)
		}
	}

	for _, alert := range alerts {
		if _, err := c.dispatcher.Dispatch(ctx, alert); err != nil {
			c.log.Error("dispatch failed", "error", err.Error(), "alert_id", alert.ID)
		}
	}
}
