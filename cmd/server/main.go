package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rental-payments/config"
	"rental-payments/internal/api"
	"rental-payments/internal/broker"
	"rental-payments/internal/engine"
	"rental-payments/internal/gateway"
	"rental-payments/internal/ledger"
	"rental-payments/internal/notify"
	"rental-payments/internal/redisclient"
	"rental-payments/internal/util"
	"rental-payments/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting rental payments service")

	tp, err := util.InitTracer("rental-payments", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	store, err := ledger.NewPostgresStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to ledger database: %v", err)
	}
	defer store.Close()
	log.Println("Ledger database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotify)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	dispatcher := notify.NewEventPublisher(producer)

	envs := buildRegistry(cfg.Gateway)
	gatewayClient := gateway.NewClient(cfg.Gateway.BaseURL,
		cfg.Gateway.PaymentReturnURL, cfg.Gateway.DepositReturnURL)

	eng := engine.New(store, gatewayClient, envs, redisClient, dispatcher)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotify, cfg.Kafka.ConsumerGroup)
	notifyWorker := worker.NewNotificationWorker(consumer,
		worker.NewLogMailer(), worker.NewLogInvoicer(), redisClient)
	go func() {
		if err := notifyWorker.Start(workerCtx); err != nil {
			log.Printf("Notification worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(eng)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	notifyWorker.Stop()

	log.Println("Server exited")
}

// buildRegistry assembles the per-merchant credential registry. The test
// MAC bypass only ever attaches to sandbox credential sets.
func buildRegistry(cfg config.GatewayConfig) *gateway.Registry {
	toEnv := func(name string, m config.MerchantConfig, testMac bool) gateway.Environment {
		return gateway.Environment{
			Name: name,
			Creds: gateway.Credentials{
				MerchantID: m.MerchantID,
				HashKey:    m.HashKey,
				HashIV:     m.HashIV,
			},
			AllowTestMac: testMac,
		}
	}

	sandbox := toEnv("sandbox", cfg.Sandbox, cfg.AllowTestMac)
	sandboxSub := toEnv("sandbox-sub", cfg.SandboxSub, cfg.AllowTestMac)
	production := toEnv("production", cfg.Production, false)

	var def gateway.Environment
	switch cfg.DefaultMerchant {
	case "production":
		def = production
	case "sandbox-sub":
		def = sandboxSub
	default:
		def = sandbox
	}

	others := make([]gateway.Environment, 0, 2)
	for _, env := range []gateway.Environment{production, sandbox, sandboxSub} {
		if env.Creds.MerchantID != "" && env.Name != def.Name {
			others = append(others, env)
		}
	}
	return gateway.NewRegistry(def, others...)
}
