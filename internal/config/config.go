package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取配置文件及其 include 链，未显式设置的字段使用默认值。
// include 中的文件先于引用它的文件合并，后合并的覆盖先合并的。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	r := includeResolver{done: map[string]bool{}, active: map[string]bool{}}
	if err := r.walk(root); err != nil {
		return nil, err
	}

	merged := viper.New()
	for _, file := range r.order {
		part := viper.New()
		part.SetConfigFile(file)
		if err := part.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", file, err)
		}
		if err := merged.MergeConfigMap(part.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging config file failed (%s): %w", file, err)
		}
	}

	var cfg Config
	decode := func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}
	if err := merged.Unmarshal(&cfg, decode); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	// AllKeys 只包含文件里出现过的叶子路径（未注册任何 viper 默认值）
	keys := make(keySet)
	for _, k := range merged.AllKeys() {
		keys.mark(k)
	}
	cfg.applyDefaults(keys)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// includeResolver 深度优先展开 include，active 记录当前路径上的文件用于发现环。
type includeResolver struct {
	order  []string
	done   map[string]bool
	active map[string]bool
}

func (r *includeResolver) walk(file string) error {
	file = filepath.Clean(file)
	switch {
	case r.active[file]:
		return fmt.Errorf("include cycle detected: %s", file)
	case r.done[file]:
		return nil
	}
	r.active[file] = true
	defer delete(r.active, file)

	includes, err := readIncludes(file)
	if err != nil {
		return fmt.Errorf("parsing include failed (%s): %w", file, err)
	}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(file), inc)
		}
		if err := r.walk(inc); err != nil {
			return err
		}
	}
	r.done[file] = true
	r.order = append(r.order, file)
	return nil
}

func readIncludes(file string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	raw, ok := v.Get("include").([]any)
	if !ok {
		if v.IsSet("include") {
			return nil, fmt.Errorf("include must be a string array")
		}
		return nil, nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("include only supports strings")
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
