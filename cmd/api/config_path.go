package main

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	defaultConfigPath  = "configs/config.dev.yaml"
	fallbackConfigPath = "configs/config.example.yaml"
)

// resolveConfigPath SYSADMIN_CONFIG 优先，其次兼容 CONFIG_PATH；
// 默认 dev 配置不存在时回退到 example，返回绝对路径便于日志排查
func resolveConfigPath(getenv func(string) string) (string, error) {
	p := getenv("SYSADMIN_CONFIG")
	if p == "" {
		p = getenv("CONFIG_PATH")
	}
	explicit := p != ""
	if !explicit {
		p = defaultConfigPath
	}
	if _, err := os.Stat(p); err != nil {
		// 显式指定的文件缺失直接报错，不静默换成 example
		if explicit {
			return "", fmt.Errorf("config %s: %w", p, err)
		}
		if _, err2 := os.Stat(fallbackConfigPath); err2 != nil {
			return "", fmt.Errorf("config %s not found and fallback %s missing", p, fallbackConfigPath)
		}
		p = fallbackConfigPath
	}
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return p, nil
}
