package main

import (
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tarancss/custody/lib/block"
	"github.com/tarancss/custody/lib/config"
	"github.com/tarancss/custody/lib/lock"
	"github.com/tarancss/custody/lib/logger"
	"github.com/tarancss/custody/lib/msg"
	"github.com/tarancss/custody/lib/msg/amqp"
	"github.com/tarancss/custody/lib/store/db"
	"github.com/tarancss/custody/wallet"
)

// lockTTL bounds how long a crashed instance can hold a transfer lock.
const lockTTL = time.Minute

// load reads the configuration and connects the wallet service to its database, message broker, lock and chain
// data providers.
func load() (config.ServiceConfig, *wallet.Wallet, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config.ServiceConfig{}, nil, err
	}

	conf, err := config.ExtractConfiguration(confPath)
	if err != nil {
		return conf, nil, err
	}

	if err = logger.Init(conf.Env); err != nil {
		return conf, nil, err
	}

	log := logger.Log

	if err = conf.Validate(); err != nil {
		return conf, nil, err
	}

	wc, err := wallet.ConfigFrom(conf)
	if err != nil {
		return conf, nil, err
	}

	log.Info("configuration loaded", zap.String("db", conf.DBType), zap.String("network", conf.Network),
		zap.String("signer", conf.Signer), zap.String("indexer", conf.Indexer), zap.Int("providers", len(conf.Providers)))

	// connect to database
	dbConn, err := db.New(conf.DBType, conf.DBConn)
	if err != nil {
		return conf, nil, err
	}

	log.Info("connected to database", zap.String("type", conf.DBType))

	mb, err := broker(conf)
	if err != nil {
		_ = db.Close(dbConn)

		return conf, nil, err
	}

	// load all chain data providers
	bc, err := block.Init(conf.Providers, conf.CallTimeout())
	if err != nil {
		_ = mb.Close()
		_ = db.Close(dbConn)

		return conf, nil, err
	}

	log.Info("chain data providers loaded", zap.Int("count", len(bc)))

	w, err := wallet.New(wc, dbConn, mb, locker(conf), bc, conf.Signer, conf.Indexer)
	if err != nil {
		block.End(bc)
		_ = mb.Close()
		_ = db.Close(dbConn)

		return conf, nil, err
	}

	if monitor {
		serveMetrics()
	}

	return conf, w, nil
}

// broker connects to the configured message broker. Without one, events are dropped.
func broker(conf config.ServiceConfig) (msg.MsgBroker, error) {
	switch conf.MbType {
	case "amqp":
		mb, err := amqp.New(conf.MbConn)
		if err != nil {
			time.Sleep(10 * time.Second) // wait 10s for AMQP to be ready and try to reconnect

			if mb, err = amqp.New(conf.MbConn); err != nil {
				return nil, err
			}
		}

		if err = mb.Setup(); err != nil {
			_ = mb.Close()

			return nil, err
		}

		return mb, nil
	case "":
		logger.Log.Info("no message broker configured, events are not published")
	default:
		logger.Log.Warn("unknown message broker type, events are not published", zap.String("type", conf.MbType))
	}

	return msg.Nop{}, nil
}

// locker returns a redis lock shared by all instances when redis is configured, and a process local one otherwise.
func locker(conf config.ServiceConfig) lock.Locker {
	if conf.RedisAddr == "" {
		return lock.NewLocal()
	}

	return lock.NewRedis(redis.NewClient(&redis.Options{Addr: conf.RedisAddr}), lockTTL)
}

func serveMetrics() {
	go func() {
		logger.Log.Info("serving metrics API", zap.String("addr", ":9100"))

		h := http.NewServeMux()
		h.Handle("/metrics", promhttp.Handler())

		if err := http.ListenAndServe(":9100", h); err != nil { //nolint:gosec // internal metrics endpoint
			logger.Log.Error("metrics server stopped", zap.Error(err))
		}
	}()
}
