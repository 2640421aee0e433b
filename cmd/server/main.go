package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/quillboard/backend/internal/api"
	"github.com/quillboard/backend/internal/auth"
	"github.com/quillboard/backend/internal/config"
	"github.com/quillboard/backend/internal/db"
	"github.com/quillboard/backend/internal/registry"
	"github.com/quillboard/backend/internal/snapshot"
	"github.com/quillboard/backend/internal/state"
	"github.com/quillboard/backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	var verifier *auth.Verifier
	if cfg.AuthSecret != "" {
		verifier = auth.NewVerifier(cfg.AuthSecret)
	} else {
		log.Println("⚠️ Auth secret not set, clients self-assert identity")
	}

	store := state.NewStore(cfg.HistoryLimit, nil)
	reg := registry.New()

	hub := ws.NewHub(reg, store, database, verifier)
	hub.SetRateLimit(cfg.MessagesPerSecond, cfg.MessageBurst)
	go hub.Run()

	snapshots := snapshot.New(database, store, snapshot.Config{
		Interval:         cfg.SnapshotInterval,
		KeepAutoVersions: cfg.KeepAutoVersions,
	})
	snapshots.Start()

	apiHandler := api.New(hub, store, database)

	// WebSocket endpoint
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, w, r)
	})

	http.HandleFunc("/health", apiHandler.HealthHandler)
	http.HandleFunc("/api/stats", apiHandler.StatsHandler)
	http.HandleFunc("/api/rooms", apiHandler.RoomsRouter)
	http.HandleFunc("/api/rooms/", apiHandler.RoomsRouter)
	http.HandleFunc("/api/versions", apiHandler.VersionsRouter)
	http.HandleFunc("/api/versions/", apiHandler.VersionsRouter)

	// Apply CORS middleware
	handler := corsMiddleware(http.DefaultServeMux)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		snapshots.Stop()
		database.Close()
		os.Exit(0)
	}()

	log.Printf("🪶 Quillboard server starting on :%s", cfg.Port)
	log.Printf("📁 Database: %s", cfg.DBPath)
	log.Println("Endpoints:")
	log.Println("  - WebSocket: /ws")
	log.Println("  - Health:    GET /health")
	log.Println("  - Stats:     GET /api/stats")
	log.Println("  - Rooms:     GET/POST /api/rooms")
	log.Println("  - Room:      GET/DELETE /api/rooms/{id}")
	log.Println("  - Document:  GET /api/rooms/{id}/document")
	log.Println("  - Versions:  GET /api/versions?room_id=X")
	log.Println("  - Version:   GET /api/versions/{id}")

	if err := http.ListenAndServe(":"+cfg.Port, handler); err != nil {
		log.Fatal("ListenAndServe: ", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
