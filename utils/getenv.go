package utils

import (
	"os"
	"strings"
)

// GetEnvDefault は環境変数 key の値を返します。未設定または空白のみなら defaultValue。
func GetEnvDefault(key, defaultValue string) string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return defaultValue
	}
	return strings.TrimSpace(value)
}
