// Package xconf 基于 koanf 的配置加载。
//
// 支持 YAML / JSON（按扩展名识别），通过 [Config.Unmarshal] 把某个子树绑定到结构体，
// 结构体字段使用 koanf tag（可用 [WithTag] 修改）：
//
//	cfg, err := xconf.New("/etc/xcluster/config.yaml")
//	var lock xdlock.Config
//	err = cfg.Unmarshal("lock", &lock)
//
// [Watch] 基于 fsnotify 监听文件所在目录，变更经防抖后自动 Reload 并回调，
// 用于日志级别等参数的热更新。
package xconf
