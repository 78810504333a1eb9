package db

import "sync"

// RoomLocks 按房间号的互斥锁管理器
// 同一房间的读-改-写必须在持锁状态下进行,不同房间互不阻塞
type RoomLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRoomLocks() *RoomLocks {
	return &RoomLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

// Get 返回指定房间的锁,首次访问时创建
func (l *RoomLocks) Get(roomNumber string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, exists := l.locks[roomNumber]
	if !exists {
		lock = &sync.Mutex{}
		l.locks[roomNumber] = lock
	}
	return lock
}

// WithLock 在持有房间锁的情况下执行fn
func (l *RoomLocks) WithLock(roomNumber string, fn func() error) error {
	lock := l.Get(roomNumber)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}
