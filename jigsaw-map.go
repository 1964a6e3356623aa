package main

import (
	"context"
	"embed"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"jigsaw-map/pkg/api"
	"jigsaw-map/pkg/dashboard"
	"jigsaw-map/pkg/database"
	"jigsaw-map/pkg/ingest"
	"jigsaw-map/pkg/logger"
	"jigsaw-map/pkg/metrics"
	"jigsaw-map/pkg/qrshare"
	"jigsaw-map/pkg/scenestream"
	"jigsaw-map/pkg/timerange"
)

//go:embed public_html/*
var content embed.FS

var domain = flag.String("domain", "", "Use 80 and 443 ports. Automatic HTTPS cert via Let's Encrypt.")
var dbType = flag.String("db-type", "sqlite", "Type of the database driver: chai, genji, sqlite, duckdb, or pgx (postgresql)")
var dbPath = flag.String("db-path", "", "Path to the database file (defaults to the current folder, applicable for chai, genji, sqlite, duckdb drivers)")
var dbConn = flag.String("db-conn", "", "Full PostgreSQL connection URL; overrides the other pgx flags")
var dbHost = flag.String("db-host", "127.0.0.1", "Database host (applicable for pgx driver)")
var dbPort = flag.Int("db-port", 5432, "Database port (applicable for pgx driver)")
var dbUser = flag.String("db-user", "postgres", "Database user (applicable for pgx driver)")
var dbPass = flag.String("db-pass", "", "Database password (applicable for pgx driver)")
var dbName = flag.String("db-name", "JigsawMap", "Database name (applicable for pgx driver)")
var pgSSLMode = flag.String("pg-ssl-mode", "prefer", "PostgreSQL SSL mode: disable, allow, prefer, require, verify-ca, or verify-full")
var port = flag.Int("port", 8765, "Port for running the server")
var version = flag.Bool("version", false, "Show the application version")

var dashboardPath = flag.String("dashboard", "", "Dashboard JSON file with panels and their options (default: one panel showing every source)")
var refreshSpec = flag.String("refresh", "", `Auto refresh schedule in cron syntax, e.g. "@every 30s" (empty disables)`)
var timeRange = flag.String("range", "24h", `Initial time window: "6h", or "from,to" as RFC 3339 or Unix milliseconds`)
var cacheTTL = flag.Duration("cache-ttl", 30*time.Second, "Lifetime of cached chart pages (0 disables the cache)")
var uploadCooldown = flag.Duration("upload-cooldown", 2*time.Second, "Minimum pause between sample uploads from one client")

var mqttBroker = flag.String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://127.0.0.1:1883 (empty disables MQTT ingest)")
var mqttTopic = flag.String("mqtt-topic", "jigsaw/samples/#", "MQTT topic carrying JSON samples; the last level names the source")
var kafkaBrokers = flag.String("kafka-brokers", "", "Comma-separated Kafka brokers (empty disables Kafka ingest)")
var kafkaTopic = flag.String("kafka-topic", "jigsaw-samples", "Kafka topic carrying JSON samples; the message key names the source")
var kafkaGroup = flag.String("kafka-group", "jigsaw-map", "Kafka consumer group")
var pollURL = flag.String("poll-url", "", "HTTP endpoint polled for JSON samples (empty disables polling)")
var pollSource = flag.String("poll-source", "poll", "Source name for polled samples that carry none")
var pollEvery = flag.Duration("poll-every", 15*time.Minute, "Pause between polls of -poll-url")

var CompileVersion = "dev"

// checkDriver rejects a -db-type this build cannot open.
var checkDriver = func(string) error { return nil }

// =====================
// MAIN
// =====================

// main parses flags, opens the database, starts the dashboard with its
// ingest feeds and serves the API until SIGINT or SIGTERM.
func main() {
	flag.Parse()

	if *version {
		fmt.Printf("jigsaw-map version %s\n", CompileVersion)
		return
	}

	if *domain != "" && runtime.GOOS != "windows" && os.Geteuid() != 0 {
		log.Println("⚠  Binding to :80 / :443 requires super-user rights; run with sudo or as root.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	if err := checkDriver(*dbType); err != nil {
		log.Fatalf("DB init: %v", err)
	}
	dbCfg := database.Config{
		DBType:    *dbType,
		DBPath:    *dbPath,
		DBConn:    *dbConn,
		DBHost:    *dbHost,
		DBPort:    *dbPort,
		DBUser:    *dbUser,
		DBPass:    *dbPass,
		DBName:    *dbName,
		PGSSLMode: *pgSSLMode,
		Port:      *port,
	}
	db, err := database.NewDatabase(dbCfg)
	if err != nil {
		log.Fatalf("DB init: %v", err)
	}
	defer db.Close()
	if err := db.InitSchema(ctx); err != nil {
		log.Fatalf("DB schema: %v", err)
	}

	// Dashboard
	cfg := dashboard.DefaultConfig()
	if *dashboardPath != "" {
		if cfg, err = dashboard.LoadConfig(*dashboardPath); err != nil {
			log.Fatalf("dashboard config: %v", err)
		}
	}
	window, err := timerange.Parse(*timeRange, time.Now())
	if err != nil {
		log.Fatalf("time range: %v", err)
	}
	relative, _ := timerange.Relative(*timeRange)

	m := metrics.New()
	bus := scenestream.NewBus(64)
	dash, err := dashboard.New(cfg, dashboard.Deps{
		Store:       db,
		Times:       timerange.New(window),
		Bus:         bus,
		Observer:    m,
		RefreshSpec: *refreshSpec,
		Relative:    relative,
	})
	if err != nil {
		log.Fatalf("dashboard: %v", err)
	}

	dashDone := make(chan struct{})
	go func() {
		defer close(dashDone)
		if err := dash.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("dashboard stopped: %v", err)
		}
	}()

	// Ingest feeds
	sink := &ingest.Sink{Writer: db, Refresher: dash, Counter: m}
	startFeeds(ctx, sink)

	// Routes
	cache := api.NewResponseCache(*cacheTTL)
	if cache != nil {
		cache.OnHit = m.CacheHit
		cache.OnMiss = m.CacheMiss
		defer cache.Close()
	}
	mux := http.NewServeMux()
	(&api.Handler{
		Dash:    dash,
		Sources: db,
		Sink:    sink,
		Bus:     bus,
		Cache:   cache,
		Limiter: api.NewClientLimiter(*uploadCooldown),
		Metrics: m,
		Logf:    log.Printf,
	}).Register(mux)
	mux.Handle("GET /metrics", m.Handler())
	mux.Handle("GET /qrpng", qrshare.Handler(qrshare.DefaultOptions()))

	staticFS, err := fs.Sub(content, "public_html")
	if err != nil {
		log.Fatalf("static fs: %v", err)
	}
	mux.Handle("GET /", http.FileServer(http.FS(staticFS)))

	rootHandler := accessLog(withServerHeader(mux))

	// HTTP/HTTPS servers
	if *domain != "" {
		serveWithDomain(ctx, *domain, rootHandler)
	} else {
		servePlain(ctx, fmt.Sprintf(":%d", *port), rootHandler)
	}

	log.Printf("shutting down")
	<-dashDone
	logger.Sync()
}

// startFeeds launches the optional broker subscribers. Their errors are
// only logged; the HTTP API keeps serving without them.
func startFeeds(ctx context.Context, sink *ingest.Sink) {
	if *mqttBroker != "" {
		go func() {
			cfg := ingest.MQTTConfig{Broker: *mqttBroker, Topic: *mqttTopic}
			log.Printf("MQTT ingest ➜ %s %s", cfg.Broker, cfg.Topic)
			if err := ingest.RunMQTT(ctx, cfg, sink); err != nil {
				log.Printf("MQTT ingest stopped: %v", err)
			}
		}()
	}
	if *kafkaBrokers != "" {
		go func() {
			cfg := ingest.KafkaConfig{
				Brokers: splitList(*kafkaBrokers),
				Topic:   *kafkaTopic,
				GroupID: *kafkaGroup,
			}
			log.Printf("Kafka ingest ➜ %v %s", cfg.Brokers, cfg.Topic)
			if err := ingest.RunKafka(ctx, cfg, sink); err != nil {
				log.Printf("Kafka ingest stopped: %v", err)
			}
		}()
	}
	if *pollURL != "" {
		go func() {
			cfg := ingest.PollConfig{URL: *pollURL, Source: *pollSource, Interval: *pollEvery}
			if err := ingest.RunPoll(ctx, cfg, sink); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("poll ingest stopped: %v", err)
			}
		}()
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
