package handler

import (
	"net/http"

	"github.com/Sandro385/expert-tune/internal/middleware"
	"github.com/Sandro385/expert-tune/internal/service"

	"github.com/gin-gonic/gin"
)

// Services are the dependencies of the HTTP surface.
type Services struct {
	User     service.UserService
	Chat     service.ChatService
	FineTune service.FineTuneService
}

// NewRouter registers every route on a new engine.
func NewRouter(s Services) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	userHandler := NewUserHandler(s.User, s.Chat)
	conversationHandler := NewConversationHandler(s.Chat, s.FineTune)
	fineTuneHandler := NewFineTuneHandler(s.FineTune)
	auth := middleware.AuthMiddleware(s.User)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/auth/refreshToken", NewAuthHandler(s.User).RefreshToken)

		users := apiV1.Group("/users")
		{
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)

			authed := users.Group("/")
			authed.Use(auth)
			{
				authed.GET("/me", userHandler.GetProfile)
				authed.POST("/logout", userHandler.Logout)
			}
		}

		apiV1.GET("/domains", auth, conversationHandler.ListDomains)

		conversations := apiV1.Group("/conversations/:domain")
		conversations.Use(auth)
		{
			conversations.GET("", conversationHandler.GetTranscript)
			conversations.POST("/messages", conversationHandler.SubmitMessage)
			conversations.GET("/dataset", conversationHandler.PreviewDataset)
			conversations.POST("/finetune", fineTuneHandler.Trigger)
		}

		jobs := apiV1.Group("/finetune/jobs")
		jobs.Use(auth)
		{
			jobs.GET("", fineTuneHandler.ListJobs)
			jobs.GET("/:id", fineTuneHandler.GetJob)
			jobs.DELETE("/:id", fineTuneHandler.CancelJob)
		}
	}

	r.GET("/chat/:token", NewChatHandler(s.Chat, s.User).Handle)
	return r
}
