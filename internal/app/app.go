// internal/app/app.go

package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"

	"accontrol/api"
	"accontrol/internal/db"
	"accontrol/internal/events"
	"accontrol/internal/handlers"
	"accontrol/internal/ingest"
	"accontrol/internal/logger"
	"accontrol/internal/notify"
	"accontrol/internal/reconciler"
	"accontrol/internal/types"
)

type App struct {
	eventBus   *events.EventBus
	locks      *db.RoomLocks
	ingestSvc  *ingest.Service
	reconciler *reconciler.Reconciler
	notifier   notify.Notifier
	clock      types.Clock
	server     *http.Server
	stopChan   chan struct{}
	wg         sync.WaitGroup
}

func NewApp() *App {
	return &App{
		stopChan: make(chan struct{}),
	}
}

func (a *App) Initialize() error {
	db.Init_DB()
	a.eventBus = events.NewEventBus()
	a.locks = db.NewRoomLocks()
	a.clock = types.SystemClock{}
	a.notifier = newNotifierFromEnv()

	a.ingestSvc = ingest.NewService(db.DB, a.locks, a.eventBus, a.clock)
	a.reconciler = reconciler.NewReconciler(db.DB, a.locks, a.eventBus, a.notifier, a.clock, reconciler.DefaultConfig)

	// 立即关停路径的通知通过总线派发,失败只记日志
	a.eventBus.Subscribe(events.EventAutoShutoff, func(event events.Event) {
		data, ok := event.Data.(events.ShutoffEventData)
		if !ok || data.NotifyEmail == "" {
			return
		}
		if err := a.notifier.Send(data.RoomNumber, data.NotifyEmail, notify.KindWindowOpenShutoff); err != nil {
			logger.Warn("notification for room %s failed: %v", data.RoomNumber, err)
		}
	})

	return nil
}

func (a *App) Start(port int) error {
	a.reconciler.Start()

	// 创建处理器
	telemetryHandler := handlers.NewTelemetryHandler(a.ingestSvc, db.DB, a.clock)
	roomHandler := handlers.NewRoomHandler(db.DB)
	policyHandler := handlers.NewPolicyHandler(db.DB, a.eventBus, a.clock)

	// 设置路由
	router := api.SetupRouter(telemetryHandler, roomHandler, policyHandler)

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error: %v", err)
		}
	}()

	logger.Info("Server started on port %d", port)
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	// 发送停止信号
	close(a.stopChan)

	// 先停HTTP入口,再停后台任务
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error: %v", err)
		}
	}
	a.reconciler.Stop()

	// 等待所有goroutine完成
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	// 等待优雅关闭或超时
	select {
	case <-done:
		logger.Info("Application stopped gracefully")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout")
	}
}

// newNotifierFromEnv SMTP配置齐全时走邮件,否则只记日志
func newNotifierFromEnv() notify.Notifier {
	host := os.Getenv("SMTP_HOST")
	from := os.Getenv("SMTP_FROM")
	if host == "" || from == "" {
		return notify.NewLogNotifier()
	}
	port := 587
	if p, err := strconv.Atoi(os.Getenv("SMTP_PORT")); err == nil && p > 0 {
		port = p
	}
	logger.Info("SMTP notifier enabled via %s:%d", host, port)
	return notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     host,
		Port:     port,
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     from,
	})
}
