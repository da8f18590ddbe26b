// cmd/achievements/main.go is the asynchronous achievements worker. It pops
// game event records from a Redis queue, evaluates unlock rules, and persists
// awarded achievements to PostgreSQL in batches. The game server only ever
// enqueues; losing an event here never affects gameplay.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/villeneuve-games/fortyone/internal/database"
)

// EventRecord mirrors the queue payload the game server publishes.
type EventRecord struct {
	SessionID   uuid.UUID              `json:"session_id"`
	EventType   string                 `json:"event_type"`
	Participant string                 `json:"participant"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Timestamp   int64                  `json:"timestamp"`
}

// Award is one unlocked achievement ready to persist.
type Award struct {
	SessionID   uuid.UUID
	Participant string
	Code        string
	AwardedAt   time.Time
}

// Worker encapsulates the Redis consumer and the batched DB writer.
type Worker struct {
	redisClient *redis.Client
	batchSize   int
	flushDelay  time.Duration

	batchMu  sync.Mutex
	batch    []Award
	ctx      context.Context
	cancelFn context.CancelFunc
}

func NewWorker() *Worker {
	batchSize := getEnvInt("ACHIEVEMENTS_BATCH_SIZE", 20)
	flushMs := getEnvInt("ACHIEVEMENTS_FLUSH_MS", 500)

	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		redisClient: rdb,
		batchSize:   batchSize,
		flushDelay:  time.Duration(flushMs) * time.Millisecond,
		batch:       make([]Award, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
}

// Run connects the database and starts the consume loop.
func (w *Worker) Run() {
	database.ConnectDB()

	go w.readRedisLoop()

	log.Println("achievements worker started.")
	<-w.ctx.Done()
	w.flushBatch()
	log.Println("achievements worker shutting down.")
}

// readRedisLoop continuously uses BLPop to retrieve event records.
func (w *Worker) readRedisLoop() {
	ticker := time.NewTicker(w.flushDelay)
	defer ticker.Stop()

	queueName := getEnv("ACHIEVEMENTS_QUEUE_NAME", "fortyone_achievements")

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			w.flushBatch()

		default:
			// BLPop with a short timeout so context cancellation is handled.
			res, err := w.redisClient.BLPop(w.ctx, 3*time.Second, queueName).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				if w.ctx.Err() != nil {
					return
				}
				log.Printf("[ERROR] BLPop: %v\n", err)
				continue
			}
			if len(res) < 2 {
				continue
			}

			var record EventRecord
			if err := json.Unmarshal([]byte(res[1]), &record); err != nil {
				log.Printf("invalid event record: %v\n", err)
				continue
			}
			for _, award := range evaluate(record) {
				w.appendToBatch(award)
			}
		}
	}
}

// evaluate maps one game event to zero or more unlocked achievements.
func evaluate(rec EventRecord) []Award {
	now := time.Unix(rec.Timestamp, 0)
	var out []Award

	award := func(code string) {
		if rec.Participant == "" {
			return
		}
		out = append(out, Award{
			SessionID:   rec.SessionID,
			Participant: rec.Participant,
			Code:        code,
			AwardedAt:   now,
		})
	}

	switch rec.EventType {
	case "game_won":
		award("winner")
	case "bet_accepted":
		amount, _ := rec.Context["amount"].(float64)
		noTrump, _ := rec.Context["noTrump"].(bool)
		if int(amount) == 12 {
			award("all_in")
		}
		if noTrump {
			award("bare_hands")
		}
	case "round_ended":
		made, _ := rec.Context["made"].(bool)
		amount, _ := rec.Context["amount"].(float64)
		if made && int(amount) >= 10 {
			award("big_game")
		}
	}
	return out
}

// appendToBatch adds awards to the in-memory batch and flushes at the threshold.
func (w *Worker) appendToBatch(award Award) {
	w.batchMu.Lock()
	w.batch = append(w.batch, award)
	full := len(w.batch) >= w.batchSize
	w.batchMu.Unlock()
	if full {
		w.flushBatch()
	}
}

// flushBatch writes the current batch in a single transaction. Duplicate
// awards for the same participant are absorbed by the unique constraint.
func (w *Worker) flushBatch() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batchCopy := make([]Award, len(w.batch))
	copy(batchCopy, w.batch)
	w.batch = w.batch[:0]
	w.batchMu.Unlock()

	ctx := context.Background()
	err := pgx.BeginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, a := range batchCopy {
			q := `
				INSERT INTO achievements (session_id, participant, code, awarded_at)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (participant, code) DO NOTHING
			`
			if _, err := tx.Exec(ctx, q, a.SessionID, a.Participant, a.Code, a.AwardedAt); err != nil {
				return fmt.Errorf("insert achievement %s: %w", a.Code, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] flushBatch: %v\n", err)
	} else {
		log.Printf("Flushed %d achievements to DB.\n", len(batchCopy))
	}
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.cancelFn()
}

func main() {
	w := NewWorker()
	go w.Run()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	w.Stop()
	log.Println("achievements worker shutdown complete.")
}

// getEnv retrieves an environment variable's value or returns a default.
func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

// getEnvInt retrieves an integer value from an environment variable or returns a default value.
func getEnvInt(key string, defVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defVal
	}
	return i
}
