package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"stockwatch/internal/logger"
	"stockwatch/internal/signal"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileConfig 是档位文件的结构：
//
//	profiles:
//	  swing:
//	    min_signal_strength: 5
//	    min_net_strength: 10
//	    min_confirmations: 2
type FileConfig struct {
	Profiles map[string]signal.Profile `yaml:"profiles"`
}

// ProfileSnapshot 对外暴露的只读快照。
type ProfileSnapshot struct {
	Version  int64
	LoadedAt time.Time
	Profiles map[string]signal.Profile
}

// Resolve 在快照上解析档位，未命中时回落到内置档位。
func (s ProfileSnapshot) Resolve(name string) (signal.Profile, error) {
	return signal.ResolveProfile(name, s.Profiles)
}

// ChangeListener 在配置变更时被调用。
type ChangeListener func(ProfileSnapshot)

// ProfileLoader 从 YAML/JSON 文件加载自定义档位，并监听热更新。
// 重载失败时保留上一份有效快照。
type ProfileLoader struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  ProfileSnapshot
	listeners []ChangeListener
}

// NewProfileLoader 读取档位文件并开始监听 FS 事件。
func NewProfileLoader(path string) (*ProfileLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("profile loader requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read profile config failed: %w", err)
	}
	loader := &ProfileLoader{path: path, v: v}
	if err := loader.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := loader.reload(); err != nil {
			logger.Errorf("profile reload failed (%s): %v", evt.Name, err)
			return
		}
		loader.notify()
	})
	v.WatchConfig()
	return loader, nil
}

// Snapshot 返回当前配置快照（深拷贝）。
func (l *ProfileLoader) Snapshot() ProfileSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot.clone()
}

// Profiles 当前自定义档位的副本，供 signal.ResolveProfile 使用。
func (l *ProfileLoader) Profiles() map[string]signal.Profile {
	return l.Snapshot().Profiles
}

// Subscribe 注册监听器，并立即收到一次完整快照。
func (l *ProfileLoader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	snap := l.snapshot.clone()
	l.mu.Unlock()
	dispatch(snap, fn)
}

func (l *ProfileLoader) notify() {
	l.mu.RLock()
	snap := l.snapshot.clone()
	listeners := slices.Clone(l.listeners)
	l.mu.RUnlock()
	dispatch(snap, listeners...)
}

// dispatch 每个监听器独立 goroutine，panic 只记录日志。
func dispatch(snap ProfileSnapshot, listeners ...ChangeListener) {
	for _, fn := range listeners {
		go func(fn ChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("profile listener panic: %v", r)
				}
			}()
			fn(snap)
		}(fn)
	}
}

func (l *ProfileLoader) reload() error {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("read profile config failed: %w", err)
	}
	profiles, err := ParseProfiles(raw)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.snapshot = ProfileSnapshot{
		Version:  l.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Profiles: profiles,
	}
	l.mu.Unlock()
	logger.Infof("Profile loader reloaded %d profiles from %s", len(profiles), filepath.Base(l.path))
	return nil
}

// ParseProfiles 解析档位文件内容；名称统一小写，未知字段与非法阈值均报错。
func ParseProfiles(raw []byte) (map[string]signal.Profile, error) {
	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&fileCfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse profile config failed: %w", err)
	}
	out := make(map[string]signal.Profile, len(fileCfg.Profiles))
	for name, p := range fileCfg.Profiles {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("duplicate profile %q", key)
		}
		p.Name = key
		if err := p.Validate(); err != nil {
			return nil, err
		}
		out[key] = p
	}
	return out, nil
}

func (s ProfileSnapshot) clone() ProfileSnapshot {
	s.Profiles = maps.Clone(s.Profiles)
	if s.Profiles == nil {
		s.Profiles = map[string]signal.Profile{}
	}
	return s
}
