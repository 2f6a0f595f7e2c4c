package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tablelift/printd/internal/api/handlers"
	"github.com/tablelift/printd/internal/api/middleware"
	"github.com/tablelift/printd/internal/config"
	"github.com/tablelift/printd/internal/core"
	"github.com/tablelift/printd/internal/db"
	"github.com/tablelift/printd/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[printd] failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[printd] invalid config: %v", err)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("[printd] failed to open database: %v", err)
	}
	defer database.Close()

	printerStore := db.NewPrinterStore(database)
	jobStore := db.NewJobStore(database)
	orderStore := db.NewOrderStore(database)
	settingStore := db.NewSettingStore(database)

	registry := core.NewRegistry(printerStore)

	renderer, err := core.NewRenderer(cfg.Print.WidthPx, cfg.Print.MinHeightPx, cfg.Print.KitchenScale)
	if err != nil {
		log.Fatalf("[printd] failed to initialize renderer: %v", err)
	}

	queue := core.NewQueue(jobStore, orderStore, printerStore, settingStore, registry, renderer,
		cfg.CloudPRNT.MediaType, core.BuildOptions{
			RestaurantName: cfg.Print.RestaurantName,
			KitchenScale:   cfg.Print.KitchenScale,
		})

	hub := ws.NewHub()
	go hub.Run()
	defer hub.Stop()

	auth, err := middleware.NewAuthMiddleware(settingStore)
	if err != nil {
		log.Fatalf("[printd] failed to initialize auth: %v", err)
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	// Printer-facing endpoint. Devices authenticate via Basic Auth or
	// known-MAC fallback inside the handler, never via the staff session.
	cloudprnt := handlers.NewCloudPRNTHandler(cfg.CloudPRNT, registry, queue, jobStore, printerStore, hub)
	cloudprnt.RegisterRoutes(router)

	api := router.Group("/api")
	api.POST("/auth/login", auth.LoginHandler)
	api.POST("/auth/logout", auth.LogoutHandler)
	api.GET("/auth/status", auth.StatusHandler)
	api.POST("/auth/setup", auth.SetupHandler)

	protected := api.Group("")
	protected.Use(auth.RequireAuth())
	protected.POST("/auth/change-password", auth.ChangePasswordHandler)
	handlers.NewOrderHandler(orderStore, queue, hub).RegisterRoutes(protected)
	handlers.NewJobHandler(jobStore, queue).RegisterRoutes(protected)
	handlers.NewPrinterHandler(printerStore).RegisterRoutes(protected)
	handlers.NewSettingsHandler(settingStore, printerStore).RegisterRoutes(protected)

	router.GET("/ws", func(c *gin.Context) {
		hub.Serve(c.Writer, c.Request)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("[printd] listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[printd] server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Printf("[printd] shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("[printd] forced shutdown: %v", err)
	}
}
