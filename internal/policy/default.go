package policy

import (
	"context"
	"fmt"
)

// Default 是通透策略：不做任何规整或排队，直接按最朴素的方式握手。
// 未匹配任何家族的适配器都落到这里。
type Default struct {
	base
	adapterID string
}

// NewDefault 构造默认策略，adapterID 作为 initialize 请求的 type 字段。
func NewDefault(adapterID string) *Default {
	if adapterID == "" {
		adapterID = "generic"
	}
	return &Default{adapterID: adapterID}
}

func (p *Default) Name() string { return "default" }

func (p *Default) MatchesAdapter(spawn SpawnConfig) bool {
	return true // 永远匹配，必须排在注册表最后
}

func (p *Default) GetAdapterSpawnConfig(ctx context.Context, opts SpawnOptions) (SpawnConfig, error) {
	return SpawnConfig{}, fmt.Errorf("policy %q: no spawn config known for this adapter", p.Name())
}

func (p *Default) GetDapAdapterConfiguration() DapAdapterConfiguration {
	return DapAdapterConfiguration{AdapterID: p.adapterID}
}

func (p *Default) GetInitializationBehavior() InitializationBehavior {
	return InitializationBehavior{}
}

func (p *Default) IsSessionReady(execState string, opts ReadinessOptions, state *State) bool {
	return executionReady(execState)
}
