package utils

import (
	"sync"

	"github.com/fansqz/cli-debugger/constants"
)

// StatusManager 记录调试会话的运行状态
// Terminated 之后状态不再改变
type StatusManager struct {
	lock   sync.RWMutex
	status constants.RunState
}

func NewStatusManager() *StatusManager {
	return &StatusManager{
		status: constants.Initializing,
	}
}

// Set 设置状态，返回是否设置成功
func (s *StatusManager) Set(status constants.RunState) bool {
	defer s.lock.Unlock()
	s.lock.Lock()
	if s.status == constants.Terminated {
		return s.status == status
	}
	s.status = status
	return true
}

func (s *StatusManager) Get() constants.RunState {
	defer s.lock.RUnlock()
	s.lock.RLock()
	return s.status
}

func (s *StatusManager) Is(statusList ...constants.RunState) bool {
	defer s.lock.RUnlock()
	s.lock.RLock()
	for _, status := range statusList {
		if s.status == status {
			return true
		}
	}
	return false
}
