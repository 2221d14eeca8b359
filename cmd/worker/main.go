package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"schooltrack/internal/config"
	"schooltrack/internal/logging"
	"schooltrack/internal/notify"
	"schooltrack/internal/queue"
	"schooltrack/internal/stats"
	"schooltrack/internal/store"
)

// The worker drains the scan event queue and maintains the daily check-in
// counters the admin metrics endpoint reads. It runs separately from the api
// so a slow Redis never stalls the scan loop.
func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	log := logging.Component("worker")

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(context.Background()) {
		log.Warn("redis not reachable at startup, will retry via consume loop")
	}

	q := queue.NewRedisQueue(redisClient.Client, "schooltrack:events")
	recorder := stats.NewRecorder(redisClient.Client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := q.Consume(ctx)
	if err != nil {
		log.WithError(err).Fatal("consume failed")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range msgs {
			handle(ctx, recorder, log, msg)
		}
	}()

	log.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn("consumer did not stop in time")
	}
	log.Info("worker exited")
}

func handle(ctx context.Context, recorder *stats.Recorder, log *logrus.Entry, msg queue.Message) {
	if msg.Type != "scan" {
		log.WithField("type", msg.Type).Debug("ignoring message")
		return
	}
	var evt notify.Event
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		log.WithError(err).Warn("bad scan event payload")
		return
	}
	if evt.Action != notify.ActionCheckIn {
		return
	}

	at := time.Unix(evt.Timestamp, 0)
	if evt.Timestamp == 0 {
		at = time.Now()
	}
	opCtx, opCancel := context.WithTimeout(ctx, 5*time.Second)
	defer opCancel()
	if err := recorder.RecordCheckIn(opCtx, at); err != nil {
		log.WithError(err).Warn("counter update failed")
		return
	}
	log.WithFields(logrus.Fields{
		"student_id": evt.StudentID,
		"day":        stats.KeyFor(at),
	}).Debug("check-in recorded")
}
