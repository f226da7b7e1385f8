package xconf

// Options 加载选项。
type Options struct {
	// Delim 路径分隔符，默认 "."
	Delim string
	// Tag 结构体绑定使用的 tag，默认 "koanf"
	Tag string
}

// Option 配置 Options。
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{Delim: ".", Tag: "koanf"}
}

// WithDelim 设置路径分隔符。
func WithDelim(delim string) Option {
	return func(o *Options) {
		if delim != "" {
			o.Delim = delim
		}
	}
}

// WithTag 设置结构体 tag 名。
func WithTag(tag string) Option {
	return func(o *Options) {
		if tag != "" {
			o.Tag = tag
		}
	}
}
