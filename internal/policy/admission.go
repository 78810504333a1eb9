// internal/policy/admission.go

package policy

import (
	"fmt"
	"math"
	"time"

	"accontrol/internal/db"
	"accontrol/internal/types"
)

// CommandCheck 设备上报的待执行命令及现场状态
type CommandCheck struct {
	RoomNumber  string
	Command     types.Command
	WindowState types.WindowState
	ACState     types.ACState
	Temperature float64
}

// AdmissionDecision 准入决策
type AdmissionDecision struct {
	Allowed     bool                     `json:"allowed"`
	Reason      string                   `json:"reason,omitempty"`
	Alternative *types.AlternativeAction `json:"alternative_action,omitempty"`
}

// CheckCommand 在设备执行命令前判断命令是否被当前策略允许
// 规则按序评估,首个命中即返回;纯函数,不写任何状态
func CheckCommand(req CommandCheck, settings *db.RoomSettings, policy *db.GlobalPolicy, now time.Time) (AdmissionDecision, error) {
	if !req.Command.Valid() {
		return AdmissionDecision{}, fmt.Errorf("unknown command %q", req.Command)
	}
	if math.IsNaN(req.Temperature) || math.IsInf(req.Temperature, 0) {
		return AdmissionDecision{}, ErrInvalidTemperature
	}

	// 规则1: 设置被管理员锁定,一律拒绝
	if settings.SettingsLocked {
		return AdmissionDecision{
			Allowed:     false,
			Reason:      "room settings locked by administrator",
			Alternative: &types.AlternativeAction{Kind: types.AlternativeReportStatus},
		}, nil
	}

	isPowerOn := req.Command == types.CommandPower && req.ACState == types.ACOff

	// 规则2: 手动开机被整体禁用
	if isPowerOn && !settings.ForceOnEnabled {
		return AdmissionDecision{
			Allowed:     false,
			Reason:      "manual power-on disabled for this room",
			Alternative: &types.AlternativeAction{Kind: types.AlternativeReportStatus},
		}, nil
	}

	// 规则3: 开窗时不允许开机
	if isPowerOn && req.WindowState == types.WindowOpen {
		return AdmissionDecision{
			Allowed:     false,
			Reason:      "cannot turn on AC while window is open",
			Alternative: &types.AlternativeAction{Kind: types.AlternativeReportStatus},
		}, nil
	}

	// 规则4: 降温不得低于策略下限,一次命令变化1°C
	if req.Command == types.CommandTempDown {
		newTemp := req.Temperature - 1
		if newTemp < policy.MinAllowedTemp {
			return AdmissionDecision{
				Allowed: false,
				Reason:  fmt.Sprintf("temperature cannot be set below %.1f°C", policy.MinAllowedTemp),
				Alternative: &types.AlternativeAction{
					Kind:  types.AlternativeClampTo,
					Value: policy.MinAllowedTemp,
				},
			}, nil
		}
	}

	// 规则5: 升温不得高于策略上限
	if req.Command == types.CommandTempUp {
		newTemp := req.Temperature + 1
		if newTemp > policy.MaxAllowedTemp {
			return AdmissionDecision{
				Allowed: false,
				Reason:  fmt.Sprintf("temperature cannot be set above %.1f°C", policy.MaxAllowedTemp),
				Alternative: &types.AlternativeAction{
					Kind:  types.AlternativeClampTo,
					Value: policy.MaxAllowedTemp,
				},
			}, nil
		}
	}

	// 规则6: 计划关停时段内不允许开机,豁免房间除外
	if policy.ScheduledShutoffActive && isPowerOn && !settings.ScheduleOverride {
		inWindow, err := InShutoffWindow(policy.ShutoffTime, policy.StartupTime, now)
		if err != nil {
			return AdmissionDecision{}, err
		}
		if inWindow {
			return AdmissionDecision{
				Allowed:     false,
				Reason:      "AC usage not allowed during scheduled shutoff hours",
				Alternative: &types.AlternativeAction{Kind: types.AlternativeReportStatus},
			}, nil
		}
	}

	return AdmissionDecision{Allowed: true}, nil
}
