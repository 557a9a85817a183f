package server

import (
	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/vocall/internal/config"
	"github.com/xpanvictor/vocall/internal/domains/call"
	"github.com/xpanvictor/vocall/internal/domains/dialer"
	"github.com/xpanvictor/vocall/internal/domains/session"
	"github.com/xpanvictor/vocall/internal/handlers"
	"github.com/xpanvictor/vocall/internal/handlers/websocket"
	"github.com/xpanvictor/vocall/pkg/Logger"
	"github.com/xpanvictor/vocall/pkg/assistant"
	"github.com/xpanvictor/vocall/pkg/io/tts"
)

// Dependencies gathers everything the route handlers need.
type Dependencies struct {
	Store      call.Store
	Recognizer session.Recognizer
	TTS        tts.Provider
	LLM        assistant.Assistant
	Dialer     *dialer.Service
	Config     *config.Settings
	Logger     *Logger.Logger
}

func NewServerDependencies(
	store call.Store,
	recognizer session.Recognizer,
	ttsProvider tts.Provider,
	llm assistant.Assistant,
	dialerService *dialer.Service,
	cfg *config.Settings,
	logger *Logger.Logger,
) Dependencies {
	return Dependencies{
		Store:      store,
		Recognizer: recognizer,
		TTS:        ttsProvider,
		LLM:        llm,
		Dialer:     dialerService,
		Config:     cfg,
		Logger:     logger,
	}
}

func InitializeRoutes(r *gin.Engine, dep Dependencies) {
	r.GET("/", func(ctx *gin.Context) { ctx.JSON(200, gin.H{"message": "Server healthy"}) })
	r.GET("/health", func(ctx *gin.Context) { ctx.JSON(200, gin.H{"status": "ok"}) })

	callHandler := handlers.NewCallHandler(dep.Config, dep.Store, dep.Dialer, dep.Logger)
	r.POST("/calls/dial", callHandler.PlaceCall)
	r.POST("/calls/campaign", callHandler.RunCampaign)
	// The carrier may hit the answer webhook with either verb.
	r.GET("/calls/answer", callHandler.Answer)
	r.POST("/calls/answer", callHandler.Answer)
	r.GET("/calls", callHandler.ListCalls)
	r.GET("/recordings", callHandler.ListRecordings)
	r.POST("/leads", callHandler.AddLead)
	r.GET("/leads", callHandler.ListLeads)
	r.GET("/settings/:key", callHandler.GetSetting)
	r.PUT("/settings/:key", callHandler.SetSetting)

	streamHandler := websocket.NewStreamHandler(
		dep.Config, dep.Logger, dep.Store, dep.Recognizer, dep.TTS, dep.LLM,
	)
	streamHandler.RegisterRoutes(r)
}
