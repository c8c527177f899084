package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Skufu/cardiorisk/internal/api"
	"github.com/Skufu/cardiorisk/internal/assessment"
	"github.com/Skufu/cardiorisk/internal/batch"
	"github.com/Skufu/cardiorisk/internal/chatbot"
	"github.com/Skufu/cardiorisk/internal/config"
	"github.com/Skufu/cardiorisk/internal/form"
	"github.com/Skufu/cardiorisk/internal/history"
	"github.com/Skufu/cardiorisk/internal/override"
	"github.com/Skufu/cardiorisk/internal/predict"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := config.InitLogger(cfg.Log); err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zap.L().Sync()
	gin.SetMode(cfg.Server.GinMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		zap.L().Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	go a.sessions.Run(ctx)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("server error", zap.Error(err))
		}
	}()

	zap.L().Info("server listening",
		zap.String("port", cfg.Server.Port),
		zap.String("model_url", cfg.Model.URL),
		zap.String("history", cfg.History.Driver),
	)
	waitForShutdown(server)
}

type app struct {
	router   *gin.Engine
	sessions *form.Manager
	history  history.Store
}

func (a *app) Close() {
	if err := a.history.Close(); err != nil {
		zap.L().Warn("close history", zap.Error(err))
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	rules, err := override.LoadRules(cfg.Rules.File)
	if err != nil {
		return nil, err
	}

	store, err := history.Open(ctx, cfg.History.Driver, cfg.HistoryDSN(), cfg.History.Capacity)
	if err != nil {
		return nil, err
	}

	client := predict.NewClient(cfg.Model.URL, predict.WithTimeout(cfg.Model.Timeout))
	pipeline := assessment.NewPipeline(client, rules, assessment.WithHistory(store))

	batchPipeline := pipeline.WithoutHistory()
	if cfg.Batch.RPS > 0 {
		paced := predict.NewClient(cfg.Model.URL,
			predict.WithTimeout(cfg.Model.Timeout),
			predict.WithLimiter(rate.NewLimiter(rate.Limit(cfg.Batch.RPS), 1)),
		)
		batchPipeline = assessment.NewPipeline(paced, rules)
	}

	var botOpts []chatbot.Option
	if cfg.Anthropic.APIKey != "" {
		botOpts = append(botOpts, chatbot.WithAnswerer(chatbot.NewAnthropic(cfg.Anthropic.APIKey, cfg.Anthropic.Model)))
	}

	sessions := form.NewManager(pipeline, cfg.Session.TTL)
	router := api.NewRouter(api.Deps{
		Assessor:     pipeline,
		Sessions:     sessions,
		Batch:        batch.NewRunner(batchPipeline, batch.WithConcurrency(cfg.Batch.Concurrency)),
		History:      store,
		Bot:          chatbot.New(botOpts...),
		Model:        client,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		CORSOrigins:  cfg.Server.CORSOrigins,
		Logger:       zap.L(),
	})

	return &app{router: router, sessions: sessions, history: store}, nil
}

func waitForShutdown(server *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	zap.L().Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zap.L().Error("graceful shutdown failed", zap.Error(err))
	}
}
