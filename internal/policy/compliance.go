// internal/policy/compliance.go
// Package policy 实现合规评估、准入检查和关停时间窗计算
// 全部为纯函数,不持有状态,可被请求处理器和后台任务高频调用
package policy

import (
	"errors"
	"fmt"
	"math"

	"accontrol/internal/db"
)

// ErrInvalidTemperature 温度读数不是有限数
var ErrInvalidTemperature = errors.New("temperature reading is not a finite number")

// 违规类型
const (
	ViolationBelowMinimum = "below-minimum"
	ViolationAboveMaximum = "above-maximum"
)

// ComplianceResult 合规评估结果
type ComplianceResult struct {
	Compliant bool   `json:"compliant"`
	Kind      string `json:"kind,omitempty"`
	Issue     string `json:"issue,omitempty"`
}

// Evaluate 根据全局策略评估温度是否合规
// 策略未激活时恒为合规;NaN和±Inf被拒绝
func Evaluate(temperature float64, policy *db.GlobalPolicy) (ComplianceResult, error) {
	if math.IsNaN(temperature) || math.IsInf(temperature, 0) {
		return ComplianceResult{}, ErrInvalidTemperature
	}

	if !policy.PolicyActive {
		return ComplianceResult{Compliant: true}, nil
	}

	if temperature < policy.MinAllowedTemp {
		return ComplianceResult{
			Compliant: false,
			Kind:      ViolationBelowMinimum,
			Issue: fmt.Sprintf("temperature %.1f°C is below the minimum allowed %.1f°C",
				temperature, policy.MinAllowedTemp),
		}, nil
	}
	if temperature > policy.MaxAllowedTemp {
		return ComplianceResult{
			Compliant: false,
			Kind:      ViolationAboveMaximum,
			Issue: fmt.Sprintf("temperature %.1f°C is above the maximum allowed %.1f°C",
				temperature, policy.MaxAllowedTemp),
		}, nil
	}

	return ComplianceResult{Compliant: true}, nil
}
