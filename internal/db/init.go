package db

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"accontrol/internal/logger"
)

const DB_NAME = "ac_control.db"

var Init bool
var SQLDB *sql.DB
var DB *gorm.DB

func Init_DB() {
	if _, err := os.Stat(DB_NAME); os.IsNotExist(err) {
		Init = true
	} else {
		fmt.Println("database already exists")
	}
	db, err := gorm.Open(sqlite.Open(DB_NAME), &gorm.Config{})
	if err != nil {
		panic("failed to connect database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		panic("failed to get db")
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)
	DB = db
	SQLDB = sqlDB
	err = db.AutoMigrate(&RoomStatus{}, &RoomSettings{}, &GlobalPolicy{}, &PendingAction{}, &WindowEvent{})
	if err != nil {
		panic("failed to migrate database")
	}
	if Init {
		InitBaseData()
		InitRooms()
	}
}

// InitBaseData 写入默认全局策略单例
func InitBaseData() {
	var policyCount int64
	DB.Model(&GlobalPolicy{}).Count(&policyCount)
	if policyCount == 0 {
		policy := GlobalPolicy{
			PolicyActive:           true,
			MinAllowedTemp:         18.0,
			MaxAllowedTemp:         26.0,
			ScheduledShutoffActive: false,
			ShutoffTime:            "22:00",
			StartupTime:            "07:00",
			ApplyOnWeekends:        false,
			ConservationThreshold:  24.0,
		}
		DB.Create(&policy)
	}
}

func GetDB() *gorm.DB {
	return DB
}

// InitRooms 初始化示例房间的状态和默认设置
func InitRooms() {
	var count int64
	DB.Model(&RoomStatus{}).Count(&count)
	if count != 0 {
		return
	}

	rooms := []string{"101", "102", "103", "104", "105"}
	temps := []float64{22.0, 23.5, 21.0, 24.0, 22.5}

	for i, number := range rooms {
		status := RoomStatus{
			RoomNumber:         number,
			CurrentTemperature: temps[i],
			WindowState:        "closed",
			ACState:            "off",
			LastUpdated:        time.Now(),
		}
		if err := DB.Create(&status).Error; err != nil {
			logger.Error("failed to create room %s: %v", number, err)
			continue
		}
		settings := RoomSettings{
			RoomNumber:              number,
			MaxTemperature:          24.0,
			AutoShutoffEnabled:      true,
			ShutoffDelaySeconds:     30,
			ForceOnEnabled:          true,
			AutoResumeOnWindowClose: true,
			EmailNotifications:      true,
			ComplianceScore:         100.0,
		}
		if err := DB.Create(&settings).Error; err != nil {
			logger.Error("failed to create settings for room %s: %v", number, err)
			continue
		}
		logger.Info("room %s initialized", number)
	}
}
