package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"markit/internal/config"
	"markit/internal/queue"
	"markit/internal/stats"
	"markit/internal/store"
)

// Worker drains the recompute retry queue and periodically reconciles every
// subject's cached attendance counters against its lectures. It is only
// needed with QUEUE_BACKEND=redis; with the in-memory queue the API process
// drains retries itself.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	q := queue.NewRedisQueue(redisClient.Client, "")

	engine := stats.NewEngine(stats.NewRepository(db.Client))

	go reconcileLoop(ctx, db, engine, time.Hour)

	msgs, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume failed: %v", err)
	}
	log.Println("worker consuming recompute queue")
	for msg := range msgs {
		if msg.Type != queue.MsgRecompute {
			continue
		}
		subjectID := string(msg.Body)
		if _, err := engine.Recompute(ctx, subjectID); err != nil {
			log.Printf("recompute for subject %s failed: %v", subjectID, err)
			continue
		}
		log.Printf("recomputed subject %s", subjectID)
	}
	log.Println("worker exited")
}

// reconcileLoop sweeps all subjects on an interval so counters that missed
// both the inline recompute and the queued retry eventually converge.
func reconcileLoop(ctx context.Context, db *store.DB, engine *stats.Engine, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		rows, err := db.Client.QueryContext(ctx, `SELECT id FROM subjects`)
		if err != nil {
			log.Printf("reconcile sweep failed: %v", err)
			continue
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				break
			}
			ids = append(ids, id)
		}
		rows.Close()

		for _, id := range ids {
			if _, err := engine.Recompute(ctx, id); err != nil {
				log.Printf("reconcile recompute for subject %s failed: %v", id, err)
			}
		}
		log.Printf("reconciled %d subjects", len(ids))
	}
}
