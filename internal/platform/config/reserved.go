package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// reservedFile 支持两种写法：
//
//	reserved: [admin, api]
//
// 或直接一个列表。
type reservedFile struct {
	Reserved []string `yaml:"reserved"`
}

// LoadReservedFile 读取 KEYWORD_RESERVED_FILE 指向的 YAML 保留词表。
func LoadReservedFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var list []string
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var f reservedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse reserved file %s: %w", path, err)
	}
	return f.Reserved, nil
}

// Reserved 合并 KEYWORD_RESERVED 与保留词文件。
func (c Config) Reserved() ([]string, error) {
	out := append([]string(nil), c.KeywordReserved...)
	if c.KeywordReservedFile == "" {
		return out, nil
	}
	fromFile, err := LoadReservedFile(c.KeywordReservedFile)
	if err != nil {
		return nil, err
	}
	return append(out, fromFile...), nil
}
