package relay

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ayusman/kalam/internal/config"
	"github.com/ayusman/kalam/internal/models"
)

// NewRouter builds the relay's HTTP surface:
//
//	GET /health
//	GET /api/rooms/:room   current members from presence
//	GET /ws/rooms/:room    websocket join
func NewRouter(cfg config.RelayConfig, hub *Hub) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(), OriginFilter(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": hub.RoomCount()})
	})

	api := router.Group("/api")
	{
		api.GET("/rooms/:room", getRoom(hub))
	}

	ws := router.Group("/ws")
	{
		ws.GET("/rooms/:room", hub.HandleWS)
	}
	return router
}

func getRoom(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		room := c.Param("room")
		members, err := hub.Presence().Members(c.Request.Context(), room)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, models.RoomInfo{ID: room, Members: members})
	}
}

// OriginFilter rejects cross-origin requests from origins not in allowed.
// Requests without an Origin header pass through.
func OriginFilter(allowed []string) gin.HandlerFunc {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = c.GetHeader("Sec-WebSocket-Origin")
		}

		ok := set[origin] || set["*"]
		if !ok && origin != "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Origin not allowed"})
			return
		}

		if ok && origin != "" {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestLogger logs each request through zerolog.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := logger().Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = logger().Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}
