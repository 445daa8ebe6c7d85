package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"arduino-fleet-backend/config"
	"arduino-fleet-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, handler *Handler) *gin.Engine {
	r := gin.Default()

	r.Use(mw.RequestID())
	r.Use(mw.Metrics())

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API group
	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		arduino := api.Group("/arduino")
		{
			// Device plumbing
			arduino.POST("/test", handler.ArduinoTest)
			arduino.POST("/log-from-client", handler.LogFromClient)

			// Task endpoints
			arduino.POST("/task-update", handler.TaskUpdate)
			arduino.GET("/get-tasks", handler.GetTasks)
			arduino.GET("/task-status/:identifier", handler.TaskStatus)
			arduino.GET("/wakeup/:machine_id", handler.Wakeup)
			arduino.POST("/wakeup/:machine_id/update", handler.UpdateWakeupPayload)

			// Machine endpoints
			arduino.POST("/add-machine", handler.AddMachine)
			arduino.POST("/remove-machine", handler.RemoveMachine)
			arduino.GET("/get-machine/:identifier", handler.GetMachine)
			arduino.GET("/get-machines", handler.GetMachines)
			arduino.POST("/delete-machines", handler.DeleteAllMachines)

			// Toggle states (in-memory, reset on restart)
			arduino.GET("/toggles", handler.GetToggles)
			arduino.GET("/toggle/:name", handler.GetToggle)
			arduino.POST("/toggle/:name", handler.SetToggle)
		}

		api.GET("/analytics/sessions", caching, handler.CounterSessionData)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
