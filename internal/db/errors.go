package db

import "errors"

// 仓库层哨兵错误,handler据此映射HTTP状态码
var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrSettingsLocked  = errors.New("room settings locked by administrator")
	ErrTempLimitLocked = errors.New("temperature limit locked by administrator")
)
