package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/diaglog/backend/internal/api"
	"github.com/diaglog/backend/internal/config"
	"github.com/diaglog/backend/internal/job"
	"github.com/diaglog/backend/internal/parser"
	"github.com/diaglog/backend/internal/resultstore"
	"github.com/diaglog/backend/internal/storage"
	"github.com/diaglog/backend/internal/upload"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	configPath := filepath.Join(exeDir, "DiagLogAnalyzer.config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	archiveStore, err := storage.NewLocalStore(cfg.Storage.UploadsDirectory)
	if err != nil {
		fmt.Printf("Failed to initialize storage: %v\n", err)
		os.Exit(1)
	}

	// Error classification rules: built-in defaults unless a rules file
	// is configured.
	errorRules := parser.DefaultErrorRules()
	if cfg.Parsing.ErrorRulesFile != "" {
		loaded, err := parser.LoadErrorRules(cfg.Parsing.ErrorRulesFile)
		if err != nil {
			fmt.Printf("Warning: failed to load error rules from %s: %v\n", cfg.Parsing.ErrorRulesFile, err)
		} else {
			errorRules = loaded
			fmt.Printf("Loaded error rules from %s\n", cfg.Parsing.ErrorRulesFile)
		}
	}

	// Result persistence is optional; without it results live only in
	// the job manager's memory until cleanup.
	var results *resultstore.Store
	var jobResults job.ResultStore
	if cfg.Results.EnablePersisting {
		results, err = resultstore.NewStore(cfg.Results.Directory, resultstore.Options{
			MemoryLimit: cfg.Results.DuckDBMemLimit,
			Threads:     cfg.Results.DuckDBThreads,
		})
		if err != nil {
			fmt.Printf("Warning: result store unavailable: %v\n", err)
		} else {
			defer results.Close()
			jobResults = results
		}
	}

	jobMgr := job.NewManager(job.Config{
		TempDir:            cfg.Storage.TempDirectory,
		Buffer:             time.Duration(cfg.Filter.BufferMinutes) * time.Minute,
		ReductionThreshold: cfg.Filter.ReductionThresholdPercent / 100,
		CheckpointLines:    cfg.Parsing.CheckpointLines,
		DefaultTimezone:    cfg.Parsing.DefaultTimezone,
		ErrorRules:         errorRules,
	}, jobResults)

	uploadMgr := upload.NewManager(archiveStore)

	// Background cleanup for finished jobs and stale results.
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Parsing.CleanupIntervalMinutes) * time.Minute)
		defer ticker.Stop()
		jobMaxAge := time.Duration(cfg.Parsing.JobMaxAgeMinutes) * time.Minute
		for range ticker.C {
			jobMgr.CleanupOldJobs(jobMaxAge)
			uploadMgr.CleanupOldJobs(jobMaxAge)
			if results != nil {
				if n, err := results.DeleteOlderThan(time.Duration(cfg.Results.RetentionHours) * time.Hour); err != nil {
					fmt.Printf("Result store cleanup failed: %v\n", err)
				} else if n > 0 {
					fmt.Printf("Result store cleanup removed %d rows\n", n)
				}
			}
		}
	}()

	h := api.NewHandler(archiveStore, jobMgr, uploadMgr, Version)
	wsHandler := api.NewWebSocketHandler(jobMgr)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/status") || path == "/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			// Msgpack payloads are already compact and websocket
			// upgrades must pass through untouched.
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/msgpack") || strings.HasPrefix(path, "/api/ws/")
		},
	}))

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	api.RegisterRoutes(e, h, wsHandler)

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Diagnostic Log Analyzer Server                  ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Archives:  %-46s║\n", cfg.Storage.UploadsDirectory)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	e.Logger.Fatal(e.StartServer(s))
}
