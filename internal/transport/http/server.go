package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"shout-chat/internal/ai"
	appsvc "shout-chat/internal/app"
	"shout-chat/internal/bootstrap"
	"shout-chat/internal/cache"
	"shout-chat/internal/observability"
	"shout-chat/internal/platform/rabbitmq"
	"shout-chat/internal/repository"
	"shout-chat/internal/transport/http/handler"
)

func NewRouter(app *bootstrap.App) (*gin.Engine, error) {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(observability.MetricsHandler()))

	generator, err := ai.NewGenerator(app.Config.LLM.Provider, ai.ChatConfig{
		BaseURL: app.Config.LLM.BaseURL,
		APIKey:  app.Config.LLM.APIKey,
		Model:   app.Config.LLM.Model,
	})
	if err != nil {
		return nil, err
	}

	messageRepo := repository.NewMessageRepository(app.MySQL)
	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	publisher := rabbitmq.NewEventPublisher(app.MQConn, app.Config.RabbitMQ.TurnEventQueue)

	chatService := appsvc.NewChatService(
		messageRepo,
		generator,
		publisher,
		historyCache,
		app.Metrics,
		app.Config.Limits.MaxContentLength,
	)
	chatHandler := handler.NewChatHandler(chatService)
	auditHandler := handler.NewAuditHandler(repository.NewTurnEventRepository(app.MySQL))

	v1 := router.Group("/api/v1")
	chatGroup := v1.Group("/chat")
	chatGroup.POST("/message", chatHandler.SendMessage)
	chatGroup.GET("/history/:sessionId", chatHandler.GetHistory)
	chatGroup.PUT("/message/:messageId", chatHandler.EditMessage)
	chatGroup.DELETE("/message/:messageId", chatHandler.DeleteMessage)
	chatGroup.DELETE("/history/:sessionId", chatHandler.ClearHistory)
	chatGroup.GET("/events/:sessionId", auditHandler.ListTurnEvents)

	return router, nil
}
