package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/praxlaw/crm-alert-engine/pkg/analytics"
	"github.com/praxlaw/crm-alert-engine/pkg/api"
	"github.com/praxlaw/crm-alert-engine/pkg/config"
	"github.com/praxlaw/crm-alert-engine/pkg/notify"
	"github.com/praxlaw/crm-alert-engine/pkg/services"
	"github.com/praxlaw/crm-alert-engine/pkg/telemetry"
)

// @title CRM Alert Engine API
// @version 1.0
// @description Rule-based alerting over CRM product and performance analytics
// @BasePath /api

func main() {
	// Configure log level from environment variable
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
	logrus.Infof("Log level set to: %s", logrus.GetLevel().String())

	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Set up the analytics store client
	client, err := analytics.NewClient(&cfg.Analytics)
	if err != nil {
		logrus.Fatalf("Failed to create analytics client: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	if err := analytics.SetupStreams(ctx, client); err != nil {
		logrus.Warnf("Failed to set up analytics streams: %v", err)
	}

	source := analytics.NewStoreSource(client)

	// Assemble the engine
	opts := []services.EngineOption{
		services.WithInterval(time.Duration(cfg.Engine.EvalIntervalSeconds) * time.Second),
		services.WithWindow(time.Duration(cfg.Engine.MetricWindowMinutes) * time.Minute),
		services.WithQueryTimeout(time.Duration(cfg.Engine.QueryTimeoutSeconds) * time.Second),
	}
	if cfg.Escalation.Enabled && cfg.Escalation.WebhookURL != "" {
		logrus.Infof("Critical alert escalation enabled: %s", cfg.Escalation.WebhookURL)
		opts = append(opts, services.WithEscalator(
			notify.NewWebhookEscalator(cfg.Escalation.WebhookURL, time.Duration(cfg.Escalation.TimeoutSeconds)*time.Second)))
	}
	engine := services.NewEngine(source, opts...)

	// Optional Kafka mirror of every alert state change
	var publisher *notify.AlertPublisher
	if cfg.Kafka.Enabled {
		publisher, err = notify.NewAlertPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			logrus.Fatalf("Failed to create Kafka alert publisher: %v", err)
		}
		engine.Subscribe(publisher.OnAlertsChanged)
		logrus.Infof("Publishing alert snapshots to Kafka topic %s", cfg.Kafka.Topic)
	}

	if err := telemetry.Register(prometheus.DefaultRegisterer); err != nil {
		logrus.Warnf("Failed to register telemetry collectors: %v", err)
	}

	engine.Start(ctx)

	// Set up the HTTP server
	router := mux.NewRouter()
	apiHandler := api.NewAPIHandler(engine)
	apiHandler.SetupRoutes(router)
	router.Handle("/metrics", promhttp.Handler())
	router.PathPrefix("/swagger/").Handler(httpSwagger.Handler())

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: strings.Split(cfg.Server.AllowedOrigins, ","),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Server.Port
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      corsHandler.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	engine.Stop()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logrus.Warnf("Error closing Kafka publisher: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Fatalf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited properly")
}
