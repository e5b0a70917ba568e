package data

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lk2023060901/chat-bridge/internal/chat/models"
	"github.com/lk2023060901/chat-bridge/internal/conf"
	"github.com/lk2023060901/chat-bridge/internal/pkg/database"
	"github.com/lk2023060901/chat-bridge/internal/pkg/logger"
	"github.com/lk2023060901/chat-bridge/internal/pkg/workerpool"
)

// Data bundles the shared infrastructure: the session store and the
// ordered write queue that serializes persistence.
type Data struct {
	DB     *database.DB
	Queue  *workerpool.Queue
	Logger *logger.Logger
}

// NewData connects the database, runs migrations, and starts the write
// queue. The returned cleanup drains the queue before closing the store so
// queued writes are not lost on shutdown.
func NewData(config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	db, err := database.New(toDatabaseConfig(config.Database), log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := models.AutoMigrate(db.GetDB()); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	queue, err := workerpool.New(nil, log)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to start write queue: %w", err)
	}

	d := &Data{
		DB:     db,
		Queue:  queue,
		Logger: log,
	}

	cleanup := func() {
		log.Info("cleaning up data resources")

		if err := queue.Close(); err != nil {
			log.Warn("write queue close", zap.Error(err))
		}
		if err := db.Close(); err != nil {
			log.Warn("database close", zap.Error(err))
		}
	}

	return d, cleanup, nil
}

func toDatabaseConfig(cfg conf.DatabaseConfig) *database.Config {
	dbCfg := database.DefaultConfig()
	dbCfg.Host = cfg.Host
	dbCfg.Port = cfg.Port
	dbCfg.User = cfg.User
	dbCfg.Password = cfg.Password
	dbCfg.DBName = cfg.DBName
	if cfg.SSLMode != "" {
		dbCfg.SSLMode = cfg.SSLMode
	}
	return dbCfg
}
