// internal/handlers/room_handler.go

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"accontrol/internal/db"
)

// 房间设置更新请求,指针字段表示可选
type UpdateSettingsRequest struct {
	MaxTemperature          *float64 `json:"max_temperature,omitempty"`
	AutoShutoffEnabled      *bool    `json:"auto_shutoff_enabled,omitempty"`
	ShutoffDelaySeconds     *int     `json:"shutoff_delay_seconds,omitempty"`
	ScheduleOverride        *bool    `json:"schedule_override,omitempty"`
	AutoResumeOnWindowClose *bool    `json:"auto_resume_on_window_close,omitempty"`
	EmailNotifications      *bool    `json:"email_notifications,omitempty"`
	NotifyEmail             *string  `json:"notify_email,omitempty"`
	SettingsLocked          *bool    `json:"settings_locked,omitempty"`
	TempLimitLocked         *bool    `json:"temp_limit_locked,omitempty"`
	ForceOnEnabled          *bool    `json:"force_on_enabled,omitempty"`
	Force                   bool     `json:"force,omitempty"` // 管理员强制修改
}

// RoomHandler 面向面板的房间状态与设置接口
type RoomHandler struct {
	statusRepo   db.IRoomStatusRepository
	settingsRepo db.ISettingsRepository
	eventRepo    db.IEventRepository
}

func NewRoomHandler(gdb *gorm.DB) *RoomHandler {
	return &RoomHandler{
		statusRepo:   db.NewRoomStatusRepository(gdb),
		settingsRepo: db.NewSettingsRepository(gdb),
		eventRepo:    db.NewEventRepository(gdb),
	}
}

// GetStatus 房间状态只读快照
func (h *RoomHandler) GetStatus(c *gin.Context) {
	roomNumber := c.Param("room_number")

	status, err := h.statusRepo.GetByNumber(roomNumber)
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
			Msg:  "Failed to load room status",
			Err:  err.Error(),
		})
		return
	}

	settings, err := h.settingsRepo.GetByNumber(roomNumber)
	if err != nil && !errors.Is(err, db.ErrRoomNotFound) {
		c.JSON(http.StatusInternalServerError, Response{
			Code: 500,
			Msg:  "Failed to load room settings",
			Err:  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Code: 200,
		Msg:  "ok",
		Data: gin.H{
			"status":   status,
			"settings": settings,
		},
	})
}

// GetEvents 房间最近的事件日志
func (h *RoomHandler) GetEvents(c *gin.Context) {
	roomNumber := c.Param("room_number")

	if _, err := h.statusRepo.GetByNumber(roomNumber); err != nil {
		if errors.Is(err, db.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, Response{
				Code: 404,
				Msg:  "Room not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, Response{
			Code: 500,
			Msg:  "Failed to load room",
			Err:  err.Error(),
		})
		return
	}

	events, err := h.eventRepo.GetRecentByRoom(roomNumber, 10)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Code: 500,
			Msg:  "Failed to load events",
			Err:  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Code: 200,
		Msg:  "ok",
		Data: events,
	})
}

// UpdateSettings 更新房间设置
// 设置被锁定时拒绝,除非管理员强制;温度上限受独立的上限锁保护
func (h *RoomHandler) UpdateSettings(c *gin.Context) {
	roomNumber := c.Param("room_number")

	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Code: 400,
			Msg:  "Invalid request format",
			Err:  err.Error(),
		})
		return
	}

	settings, err := h.settingsRepo.GetByNumber(roomNumber)
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
			Msg:  "Failed to load settings",
			Err:  err.Error(),
		})
		return
	}

	if settings.SettingsLocked && !req.Force {
		c.JSON(http.StatusForbidden, Response{
			Code: 403,
			Msg:  db.ErrSettingsLocked.Error(),
		})
		return
	}
	if req.MaxTemperature != nil && settings.TempLimitLocked && !req.Force {
		c.JSON(http.StatusForbidden, Response{
			Code: 403,
			Msg:  db.ErrTempLimitLocked.Error(),
		})
		return
	}
	if req.ShutoffDelaySeconds != nil && (*req.ShutoffDelaySeconds < 0 || *req.ShutoffDelaySeconds > 300) {
		c.JSON(http.StatusBadRequest, Response{
			Code: 400,
			Msg:  "shutoff_delay_seconds must be within [0, 300]",
		})
		return
	}

	updates := make(map[string]interface{})
	if req.MaxTemperature != nil {
		updates["max_temperature"] = *req.MaxTemperature
	}
	if req.AutoShutoffEnabled != nil {
		updates["auto_shutoff_enabled"] = *req.AutoShutoffEnabled
	}
	if req.ShutoffDelaySeconds != nil {
		updates["shutoff_delay_seconds"] = *req.ShutoffDelaySeconds
	}
	if req.ScheduleOverride != nil {
		updates["schedule_override"] = *req.ScheduleOverride
	}
	if req.AutoResumeOnWindowClose != nil {
		updates["auto_resume_on_window_close"] = *req.AutoResumeOnWindowClose
	}
	if req.EmailNotifications != nil {
		updates["email_notifications"] = *req.EmailNotifications
	}
	if req.NotifyEmail != nil {
		updates["notify_email"] = *req.NotifyEmail
	}
	// 锁状态只有管理员强制时才能修改
	if req.Force {
		if req.SettingsLocked != nil {
			updates["settings_locked"] = *req.SettingsLocked
		}
		if req.TempLimitLocked != nil {
			updates["temp_limit_locked"] = *req.TempLimitLocked
		}
		if req.ForceOnEnabled != nil {
			updates["force_on_enabled"] = *req.ForceOnEnabled
		}
	}

	if len(updates) == 0 {
		c.JSON(http.StatusOK, Response{
			Code: 200,
			Msg:  "nothing to update",
		})
		return
	}

	if err := h.settingsRepo.Update(roomNumber, updates); err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Code: 500,
			Msg:  "Failed to update settings",
			Err:  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Code: 200,
		Msg:  "settings updated",
	})
}
