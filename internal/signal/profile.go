package signal

import (
	"fmt"
	"sort"
	"strings"

	"stockwatch/internal/config"
)

// Profile 是策略档位的阈值表。
type Profile struct {
	Name string `json:"name" yaml:"name"`
	// MinSignalStrength 单条信号计入聚合的最低强度，取值 [1,10]。
	MinSignalStrength int `json:"min_signal_strength" yaml:"min_signal_strength" mapstructure:"min_signal_strength"`
	// MinNetStrength 买卖强度差达到该值才出手，必须 > 0 以保证平局为 hold。
	MinNetStrength int `json:"min_net_strength" yaml:"min_net_strength" mapstructure:"min_net_strength"`
	// MinConfirmations 同向信号的最少条数。
	MinConfirmations int    `json:"min_confirmations" yaml:"min_confirmations" mapstructure:"min_confirmations"`
	Description      string `json:"description,omitempty" yaml:"description" mapstructure:"description"`
}

const (
	ProfileConservative = "conservative"
	ProfileModerate     = "moderate"
	ProfileAggressive   = "aggressive"
)

var builtinProfiles = map[string]Profile{
	ProfileConservative: {
		Name:              ProfileConservative,
		MinSignalStrength: 6,
		MinNetStrength:    14,
		MinConfirmations:  2,
		Description:       "至少两条强信号共振才交易",
	},
	ProfileModerate: {
		Name:              ProfileModerate,
		MinSignalStrength: 4,
		MinNetStrength:    8,
		MinConfirmations:  1,
		Description:       "单条强信号或多条中等信号",
	},
	ProfileAggressive: {
		Name:              ProfileAggressive,
		MinSignalStrength: 1,
		MinNetStrength:    5,
		MinConfirmations:  1,
		Description:       "任意方向明确的信号即交易",
	},
}

// BuiltinProfiles 返回内置档位的副本。
func BuiltinProfiles() map[string]Profile {
	out := make(map[string]Profile, len(builtinProfiles))
	for k, v := range builtinProfiles {
		out[k] = v
	}
	return out
}

// ResolveProfile 先查 overrides，再查内置档位；名称大小写不敏感。
func ResolveProfile(name string, overrides map[string]Profile) (Profile, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = ProfileModerate
	}
	p, ok := overrides[key]
	if !ok {
		p, ok = builtinProfiles[key]
	}
	if !ok {
		return Profile{}, config.Errorf("strategy.profile", "unknown profile %q (known: %s)", name, strings.Join(ProfileNames(overrides), ", "))
	}
	p.Name = key
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// ProfileNames 内置与自定义档位名，排序后返回。
func ProfileNames(overrides map[string]Profile) []string {
	seen := make(map[string]struct{}, len(builtinProfiles)+len(overrides))
	for k := range builtinProfiles {
		seen[k] = struct{}{}
	}
	for k := range overrides {
		seen[k] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (p Profile) Validate() error {
	field := fmt.Sprintf("strategy.profiles.%s", p.Name)
	if p.MinSignalStrength < MinStrength || p.MinSignalStrength > MaxStrength {
		return config.Errorf(field+".min_signal_strength", "must be within [%d,%d], got %d", MinStrength, MaxStrength, p.MinSignalStrength)
	}
	if p.MinNetStrength <= 0 {
		return config.Errorf(field+".min_net_strength", "must be positive, got %d", p.MinNetStrength)
	}
	if p.MinConfirmations < 1 {
		return config.Errorf(field+".min_confirmations", "must be at least 1, got %d", p.MinConfirmations)
	}
	return nil
}
