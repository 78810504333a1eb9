// internal/reconciler/metrics.go

package reconciler

import (
	"accontrol/internal/db"
	"accontrol/internal/types"
)

// windowOpenMinutes 统计开窗且空调运行的日志条数
// 设备约每分钟上报一次,条数即分钟数
func windowOpenMinutes(entries []db.WindowEvent) float64 {
	var count float64
	for _, e := range entries {
		if e.WindowState == types.WindowOpen && e.ACState == types.ACOn {
			count++
		}
	}
	return count
}

// avgTemperatureDeviation 计算温度超出允许区间的平均距离
// 区间内的读数偏差为0;策略未激活时恒为0
func avgTemperatureDeviation(entries []db.WindowEvent, policy *db.GlobalPolicy) float64 {
	if len(entries) == 0 || !policy.PolicyActive {
		return 0
	}

	var total float64
	for _, e := range entries {
		if e.Temperature < policy.MinAllowedTemp {
			total += policy.MinAllowedTemp - e.Temperature
		} else if e.Temperature > policy.MaxAllowedTemp {
			total += e.Temperature - policy.MaxAllowedTemp
		}
	}
	return total / float64(len(entries))
}

// complianceScore 合规评分,满分100
// 开窗分钟数和温度偏差各扣最多50分
func complianceScore(windowOpenMinutes, avgDeviation float64) float64 {
	windowPenalty := 0.5 * windowOpenMinutes
	if windowPenalty > 50 {
		windowPenalty = 50
	}
	tempPenalty := 10 * avgDeviation
	if tempPenalty > 50 {
		tempPenalty = 50
	}

	score := 100 - windowPenalty - tempPenalty
	if score < 0 {
		score = 0
	}
	return score
}
