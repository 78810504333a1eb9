// internal/handlers/policy_handler.go

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"accontrol/internal/db"
	"accontrol/internal/events"
	"accontrol/internal/policy"
	"accontrol/internal/types"
)

// 全局策略更新请求
type SetPolicyRequest struct {
	PolicyActive             bool    `json:"policy_active"`
	MinAllowedTemp           float64 `json:"min_allowed_temp" binding:"required"`
	MaxAllowedTemp           float64 `json:"max_allowed_temp" binding:"required"`
	ScheduledShutoffActive   bool    `json:"scheduled_shutoff_active"`
	ShutoffTime              string  `json:"shutoff_time" binding:"required"`
	StartupTime              string  `json:"startup_time" binding:"required"`
	ApplyOnWeekends          bool    `json:"apply_on_weekends"`
	EnergyConservationActive bool    `json:"energy_conservation_active"`
	ConservationThreshold    float64 `json:"conservation_threshold"`
}

// PolicyHandler 管理端全局策略接口,鉴权由上游完成
type PolicyHandler struct {
	policyRepo db.IPolicyRepository
	bus        *events.EventBus
	clock      types.Clock
}

func NewPolicyHandler(gdb *gorm.DB, bus *events.EventBus, clock types.Clock) *PolicyHandler {
	return &PolicyHandler{
		policyRepo: db.NewPolicyRepository(gdb),
		bus:        bus,
		clock:      clock,
	}
}

// GetPolicy 读取全局策略
func (h *PolicyHandler) GetPolicy(c *gin.Context) {
	policy, err := h.policyRepo.Get()
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Code: 500,
			Msg:  "Failed to load policy",
			Err:  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Code: 200,
		Msg:  "ok",
		Data: policy,
	})
}

// SetPolicy 覆盖全局策略
// 策略变更无需即时生效,后台任务下个扫描周期读到新值即可
func (h *PolicyHandler) SetPolicy(c *gin.Context) {
	var req SetPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Code: 400,
			Msg:  "Invalid request format",
			Err:  err.Error(),
		})
		return
	}

	if req.MinAllowedTemp >= req.MaxAllowedTemp {
		c.JSON(http.StatusBadRequest, Response{
			Code: 400,
			Msg:  "min_allowed_temp must be below max_allowed_temp",
		})
		return
	}
	if err := policy.ValidateTimeOfDay(req.ShutoffTime); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Code: 400,
			Msg:  "invalid shutoff_time",
			Err:  err.Error(),
		})
		return
	}
	if err := policy.ValidateTimeOfDay(req.StartupTime); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Code: 400,
			Msg:  "invalid startup_time",
			Err:  err.Error(),
		})
		return
	}

	updated := &db.GlobalPolicy{
		PolicyActive:             req.PolicyActive,
		MinAllowedTemp:           req.MinAllowedTemp,
		MaxAllowedTemp:           req.MaxAllowedTemp,
		ScheduledShutoffActive:   req.ScheduledShutoffActive,
		ShutoffTime:              req.ShutoffTime,
		StartupTime:              req.StartupTime,
		ApplyOnWeekends:          req.ApplyOnWeekends,
		EnergyConservationActive: req.EnergyConservationActive,
		ConservationThreshold:    req.ConservationThreshold,
	}
	if err := h.policyRepo.Save(updated); err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			Code: 500,
			Msg:  "Failed to save policy",
			Err:  err.Error(),
		})
		return
	}

	h.bus.Publish(events.Event{
		Type:      events.EventPolicyChanged,
		Timestamp: h.clock.Now(),
		Data:      updated,
	})

	c.JSON(http.StatusOK, Response{
		Code: 200,
		Msg:  "policy updated",
		Data: updated,
	})
}
