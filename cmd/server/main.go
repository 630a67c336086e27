package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"impact-service/internal/database"
	"impact-service/internal/goals"
	"impact-service/internal/handlers"
	"impact-service/internal/metrics"
	"impact-service/internal/notary"
	"impact-service/internal/quality"
	"impact-service/internal/scheduler"
	"impact-service/internal/timeseries"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	database.ConnectDatabase()
	db := database.GetDB()

	pointStore := timeseries.NewGormStore(db)
	agg := timeseries.NewAggregator(pointStore)

	// The anchoring sink is swappable at the composition root: the HTTP
	// implementation when a ledger endpoint is configured, the in-memory
	// stub otherwise.
	var sink notary.Notary
	if url := os.Getenv("NOTARY_URL"); url != "" {
		sink = notary.NewHTTPNotary(url)
		log.Printf("Using HTTP notarization sink at %s", url)
	} else {
		sink = notary.NewMemoryNotary()
		log.Println("NOTARY_URL not set, using in-memory notarization stub")
	}

	metricsSvc := metrics.NewService(db, quality.NewAssessor(), pointStore, sink)

	workers := 0
	if w := os.Getenv("EVAL_WORKERS"); w != "" {
		if n, err := strconv.Atoi(w); err == nil {
			workers = n
		} else {
			log.Printf("Ignoring invalid EVAL_WORKERS value %q", w)
		}
	}
	goalsSvc := goals.NewService(db, agg, workers)

	sched := scheduler.NewService(goalsSvc, os.Getenv("EVAL_CRON"))
	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	router := gin.Default()
	handlers.RegisterRoutes(router,
		handlers.NewMetricHandler(metricsSvc, agg),
		handlers.NewGoalHandler(goalsSvc),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	go func() {
		log.Printf("Impact service listening on :%s", port)
		if err := router.Run(":" + port); err != nil {
			log.Fatalf("Failed to run server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	sched.Stop()
	metricsSvc.WaitForNotarizations()
	log.Println("Shutdown complete.")
}
