// internal/policy/schedule.go

package policy

import (
	"fmt"
	"time"
)

// parseTimeOfDay 解析"HH:MM"为当日分钟数
func parseTimeOfDay(s string) (int, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %v", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return hour*60 + minute, nil
}

// ValidateTimeOfDay 校验"HH:MM"格式的时刻字符串
func ValidateTimeOfDay(s string) error {
	_, err := parseTimeOfDay(s)
	return err
}

// InShutoffWindow 判断now是否处于关停时间窗[shutoffTime, startupTime]内
// 时间窗允许跨午夜: start<=end时为普通区间,否则为t>=start或t<=end
func InShutoffWindow(shutoffTime, startupTime string, now time.Time) (bool, error) {
	start, err := parseTimeOfDay(shutoffTime)
	if err != nil {
		return false, err
	}
	end, err := parseTimeOfDay(startupTime)
	if err != nil {
		return false, err
	}

	t := now.Hour()*60 + now.Minute()
	if start <= end {
		return start <= t && t <= end, nil
	}
	return t >= start || t <= end, nil
}

// IsWeekend 判断是否为周末
func IsWeekend(t time.Time) bool {
	day := t.Weekday()
	return day == time.Saturday || day == time.Sunday
}
