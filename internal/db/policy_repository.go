package db

import (
	"errors"

	"gorm.io/gorm"
)

// IPolicyRepository 全局策略仓库接口,策略为单例
type IPolicyRepository interface {
	Get() (*GlobalPolicy, error)
	Save(policy *GlobalPolicy) error
}

type PolicyRepository struct {
	db *gorm.DB
}

func NewPolicyRepository(db *gorm.DB) IPolicyRepository {
	return &PolicyRepository{db: db}
}

// Get 读取全局策略,不存在时返回默认值
func (r *PolicyRepository) Get() (*GlobalPolicy, error) {
	var policy GlobalPolicy
	err := r.db.First(&policy).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 返回内置默认策略
			return &GlobalPolicy{
				PolicyActive:          true,
				MinAllowedTemp:        18.0,
				MaxAllowedTemp:        26.0,
				ShutoffTime:           "22:00",
				StartupTime:           "07:00",
				ConservationThreshold: 24.0,
			}, nil
		}
		return nil, err
	}
	return &policy, nil
}

// Save 覆盖全局策略,首行不存在则创建
func (r *PolicyRepository) Save(policy *GlobalPolicy) error {
	var existing GlobalPolicy
	err := r.db.First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return r.db.Create(policy).Error
		}
		return err
	}

	return r.db.Model(&existing).Updates(map[string]interface{}{
		"policy_active":              policy.PolicyActive,
		"min_allowed_temp":           policy.MinAllowedTemp,
		"max_allowed_temp":           policy.MaxAllowedTemp,
		"scheduled_shutoff_active":   policy.ScheduledShutoffActive,
		"shutoff_time":               policy.ShutoffTime,
		"startup_time":               policy.StartupTime,
		"apply_on_weekends":          policy.ApplyOnWeekends,
		"energy_conservation_active": policy.EnergyConservationActive,
		"conservation_threshold":     policy.ConservationThreshold,
	}).Error
}
