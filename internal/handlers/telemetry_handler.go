// internal/handlers/telemetry_handler.go

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"accontrol/internal/db"
	"accontrol/internal/ingest"
	"accontrol/internal/policy"
	"accontrol/internal/types"
)

// 遥测上报请求
type TelemetryRequest struct {
	RoomNumber  string   `json:"room_number" binding:"required"`
	WindowState string   `json:"window_state" binding:"required"`
	ACState     string   `json:"ac_state" binding:"required"`
	Temperature *float64 `json:"temperature" binding:"required"`
}

// 命令准入检查请求
type CheckCommandRequest struct {
	RoomNumber  string   `json:"room_number" binding:"required"`
	Command     string   `json:"command" binding:"required"`
	WindowState string   `json:"window_state" binding:"required"`
	ACState     string   `json:"ac_state" binding:"required"`
	Temperature *float64 `json:"temperature" binding:"required"`
}

// TelemetryHandler 设备侧接口: 遥测上报与命令准入
type TelemetryHandler struct {
	ingestSvc    *ingest.Service
	settingsRepo db.ISettingsRepository
	statusRepo   db.IRoomStatusRepository
	policyRepo   db.IPolicyRepository
	clock        types.Clock
}

func NewTelemetryHandler(ingestSvc *ingest.Service, gdb *gorm.DB, clock types.Clock) *TelemetryHandler {
	return &TelemetryHandler{
		ingestSvc:    ingestSvc,
		settingsRepo: db.NewSettingsRepository(gdb),
		statusRepo:   db.NewRoomStatusRepository(gdb),
		policyRepo:   db.NewPolicyRepository(gdb),
		clock:        clock,
	}
}

// IngestTelemetry 接收设备上报并返回折算后的权威状态
func (h *TelemetryHandler) IngestTelemetry(c *gin.Context) {
	var req TelemetryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Code: 400,
			Msg:  "Invalid request format",
			Err:  err.Error(),
		})
		return
	}

	result, err := h.ingestSvc.Ingest(
		req.RoomNumber,
		types.WindowState(req.WindowState),
		types.ACState(req.ACState),
		*req.Temperature,
	)
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, Response{
				Code: 400,
				Msg:  "Invalid telemetry",
				Err:  err.Error(),
			})
			return
		}
		// 持久化失败,整体已回滚,设备可重发
		c.JSON(http.StatusInternalServerError, Response{
			Code: 500,
			Msg:  "Failed to record telemetry, please retry",
			Err:  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Code: 200,
		Msg:  result.Message,
		Data: result,
	})
}

// CheckCommand 在设备执行命令前进行准入检查,不产生任何状态变更
func (h *TelemetryHandler) CheckCommand(c *gin.Context) {
	var req CheckCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Code: 400,
			Msg:  "Invalid request format",
			Err:  err.Error(),
		})
		return
	}

	settings, err := h.settingsRepo.GetByNumber(req.RoomNumber)
	if err == nil {
		_, err = h.statusRepo.GetByNumber(req.RoomNumber)
	}
	if err != nil {
		if errors.Is(err, db.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, Response{
				Code: 404,
				Msg:  "Room not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, Response{
			Code: 500,
			Msg:  "Failed to load room settings",
			Err:  err.Error(),
		})
		return
	}

	globalPolicy, err := h.policyRepo.Get()
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Code: 500,
			Msg:  "Failed to load policy",
			Err:  err.Error(),
		})
		return
	}

	decision, err := policy.CheckCommand(policy.CommandCheck{
		RoomNumber:  req.RoomNumber,
		Command:     types.Command(req.Command),
		WindowState: types.WindowState(req.WindowState),
		ACState:     types.ACState(req.ACState),
		Temperature: *req.Temperature,
	}, settings, globalPolicy, h.clock.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Code: 400,
			Msg:  "Invalid command",
			Err:  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, decision)
}
