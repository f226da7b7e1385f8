package xconf

import "github.com/knadh/koanf/v2"

// Format 配置格式。
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Config 只读配置视图，Reload 后原子替换内部数据。
type Config interface {
	// Client 底层 koanf 实例，Reload 后需重新获取
	Client() *koanf.Koanf

	// Unmarshal 把 path 下的子树绑定到 target，path 为空绑定整个文档
	Unmarshal(path string, target any) error

	// Exists 判断 path 是否存在
	Exists(path string) bool

	// Reload 重新读取文件
	Reload() error

	Path() string
	Format() Format
}
