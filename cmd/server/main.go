package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xtrntr/tradeproof/internal/api"
	"github.com/xtrntr/tradeproof/internal/cache"
	"github.com/xtrntr/tradeproof/internal/chain"
	"github.com/xtrntr/tradeproof/internal/config"
	"github.com/xtrntr/tradeproof/internal/db"
	"github.com/xtrntr/tradeproof/internal/events"
	"github.com/xtrntr/tradeproof/internal/field"
	"github.com/xtrntr/tradeproof/internal/logger"
	"github.com/xtrntr/tradeproof/internal/payments"
	"github.com/xtrntr/tradeproof/internal/proof"
	"go.uber.org/zap"
)

// Main entry point: loads config, wires the services and serves HTTP until
// SIGINT or SIGTERM
func main() {
	configPath := flag.String("config", "", "path to conf.yaml")
	flag.Parse()

	conf, err := config.Load(config.Path(*configPath))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.New(logger.Options{
		Level:      conf.Log.Level,
		FileName:   conf.Log.FileName,
		MaxSize:    conf.Log.MaxSize,
		MaxBackups: conf.Log.MaxBackups,
		MaxAge:     conf.Log.MaxAge,
	})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer lg.Sync()
	lg.Debug("config loaded", zap.String("env", conf.Env), zap.String("config", conf.Dump()))

	if err := run(conf, lg); err != nil {
		lg.Fatal("server stopped", zap.Error(err))
	}
}

func run(conf *config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	store, err := db.Open(ctx, conf.Database.Driver, conf.Database.DSN)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())

	// Initialize the verifier contract client
	client, err := chain.Initialize(chain.StarknetOptions{
		RPCURL:           conf.Starknet.RPCURL,
		AccountAddress:   conf.Starknet.AccountAddress,
		PrivateKey:       conf.Starknet.PrivateKey,
		PublicKey:        conf.Starknet.PublicKey,
		VerifierContract: conf.Starknet.VerifierContract,
		CairoVersion:     conf.Starknet.CairoVersion,
		PollInterval:     conf.Chain.PollInterval,
		FeeMultiplier:    conf.Chain.FeeMultiplier,
		SubmitTimeout:    conf.Chain.SubmitTimeout,
	}, lg)
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if conf.Cache.Driver == "redis" || conf.Events.Redis {
		rdb = redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Address,
			Username: conf.Redis.Username,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			lg.Warn("redis unreachable at startup", zap.String("address", conf.Redis.Address), zap.Error(err))
		}
	}

	var replay cache.Replay = cache.NewMemory()
	if conf.Cache.Driver == "redis" {
		replay = cache.NewRedis(rdb)
	}

	hub := events.NewHub(lg)
	sinks := []events.Sink{hub}
	if conf.Events.Redis {
		sinks = append(sinks, events.NewRedisSink(rdb))
	}
	if conf.Events.Kafka {
		kafka := events.NewKafkaSink(conf.Kafka.Brokers, conf.Kafka.Topic)
		defer kafka.Close()
		sinks = append(sinks, kafka)
	}
	fanout, err := events.NewFanout(conf.Events.PoolSize, lg, sinks...)
	if err != nil {
		return err
	}

	proofService := proof.NewService(field.NewEncoder(conf.Encoding.LenientEnums), client, replay, store, fanout, lg)
	paymentService, err := payments.NewService(store, conf.Payments.JWTSecret)
	if err != nil {
		return err
	}
	handler := api.NewHandler(proofService, paymentService, lg)

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: conf.HTTP.AllowedOrigins,
		RateLimit:      conf.HTTP.RateLimit,
		RateBurst:      conf.HTTP.RateBurst,
		Events:         hub,
	})

	srv := &http.Server{
		Addr:         conf.HTTP.Address,
		Handler:      router,
		ReadTimeout:  conf.HTTP.ReadTimeout,
		WriteTimeout: conf.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("starting server",
			zap.String("address", conf.HTTP.Address),
			zap.Bool("signing", proofService.Ready()),
			zap.String("database", conf.Database.Driver),
			zap.String("cache", conf.Cache.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	hub.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http shutdown incomplete", zap.Error(err))
	}
	if err := fanout.Close(5 * time.Second); err != nil {
		lg.Warn("event delivery incomplete", zap.Error(err))
	}
	return nil
}
