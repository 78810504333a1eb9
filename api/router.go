// api/router.go

package api

import (
	"accontrol/internal/handlers"
	"accontrol/middleware"

	"github.com/gin-gonic/gin"
)

func SetupRouter(
	telemetryHandler *handlers.TelemetryHandler,
	roomHandler *handlers.RoomHandler,
	policyHandler *handlers.PolicyHandler,
) *gin.Engine {
	router := gin.Default()

	// 使用CORS中间件
	router.Use(middleware.CORSMiddleware())

	api := router.Group("/api")
	{
		// 设备侧: 遥测上报与命令准入
		api.POST("/telemetry", telemetryHandler.IngestTelemetry)
		api.POST("/check_command", telemetryHandler.CheckCommand)

		// 面板侧: 房间状态、事件日志与设置
		api.GET("/rooms/:room_number/status", roomHandler.GetStatus)
		api.GET("/rooms/:room_number/events", roomHandler.GetEvents)
		api.POST("/rooms/:room_number/settings", roomHandler.UpdateSettings)

		// 管理侧: 全局策略
		api.GET("/policy", policyHandler.GetPolicy)
		api.POST("/policy", policyHandler.SetPolicy)
	}

	return router
}
