package httpapi

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Pages 是 PAGES_DIR 下的自定义页面：about.html 对应 /about。
// 页面名同时作为保留短码，分配器不会把它们分出去。
type Pages struct {
	dir   string
	files map[string]string // 小写页面名 -> 文件名
}

func LoadPages(dir string) (*Pages, error) {
	p := &Pages{dir: dir, files: make(map[string]string)}
	if dir == "" {
		return p, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read pages dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := strings.CutSuffix(e.Name(), ".html"); ok && name != "" && name != "index" {
			p.files[strings.ToLower(name)] = e.Name()
		}
	}
	return p, nil
}

// Names 返回排好序的页面名。
func (p *Pages) Names() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.files))
	for n := range p.files {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Dir 返回页面目录，没配置时为空。
func (p *Pages) Dir() string {
	if p == nil {
		return ""
	}
	return p.dir
}

func (p *Pages) Render(name string) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("page %q not found", name)
	}
	file, ok := p.files[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("page %q not found", name)
	}
	return os.ReadFile(filepath.Join(p.dir, file))
}
