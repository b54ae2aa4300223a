package utils

import (
	"github.com/google/uuid"
)

// GetUUID 生成会话id
func GetUUID() string {
	return uuid.NewString()
}
