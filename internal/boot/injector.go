//go:build wireinject
// +build wireinject

package boot

import (
	"github.com/google/wire"
)

// InitApp 由 wire 生成，实现见 wire_gen.go
func InitApp(configPath string) (*App, error) {
	wire.Build(ProviderSet)
	return nil, nil
}
