package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"smores/bot"
	"smores/creds"
	"smores/dal"
	"smores/logger"
	"smores/schedule"
	"smores/slackutil"
)

func main() {
	_ = godotenv.Load()

	log := logger.New("smores")
	defer log.Sync()

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "smores.db"
	}

	db, err := dal.InitDB(dbPath)
	if err != nil {
		log.Fatalw("failed to connect to DB", "path", dbPath, "error", err)
	}
	log.Infow("connected to database", "path", dbPath)

	store, err := creds.FromEnv()
	if err != nil {
		log.Fatalw("failed to load credentials", "error", err)
	}

	cfg := bot.Config{
		DB:      db,
		Creds:   store,
		Clients: slackutil.New,
		Log:     log,
	}
	if ms := os.Getenv("SEND_DELAY_MS"); ms != "" {
		parsed, err := strconv.Atoi(ms)
		if err != nil {
			log.Fatalw("invalid SEND_DELAY_MS", "value", ms, "error", err)
		}
		delay := time.Duration(parsed) * time.Millisecond
		cfg.SendDelay = &delay
	}

	sched := schedule.New(bot.New(cfg), log)
	sched.Start()
	log.Infow("bot is up")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Infow("shutting down")
	sched.Stop()
}
