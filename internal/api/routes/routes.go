package routes

import (
	"github.com/gin-gonic/gin"

	"livechat-service/internal/api/handlers"
	"livechat-service/internal/api/middleware"
	"livechat-service/internal/websocket"
)

type Router struct {
	engine      *gin.Engine
	wsHandler   *handlers.WSHandler
	chatHandler *handlers.ChatHandler
	jwtSecret   string
}

func NewRouter(hub *websocket.Hub, jwtSecret string) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS())
	engine.Use(middleware.LogAPI())

	return &Router{
		engine:      engine,
		wsHandler:   handlers.NewWSHandler(hub),
		chatHandler: handlers.NewChatHandler(hub),
		jwtSecret:   jwtSecret,
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Widget connections are anonymous; the admin console authenticates
	// its handshake through the query-string token.
	ws := r.engine.Group("/ws")
	{
		ws.GET("/visitor", r.wsHandler.HandleVisitor)
		ws.GET("/admin", middleware.WSAuth(r.jwtSecret), r.wsHandler.HandleAdmin)
	}

	// HTTP fallback for the operator console.
	api := r.engine.Group("/api")
	api.Use(middleware.Auth(r.jwtSecret))
	{
		api.GET("/active-chats", r.chatHandler.GetActiveChats)
		api.GET("/chat-history/:clientId", r.chatHandler.GetChatHistory)
		api.POST("/chats/reply", r.chatHandler.PostReply)
		api.DELETE("/chats/:clientId", r.chatHandler.DeleteChat)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
