package xdlock

import (
	_ "embed"
	"sync"

	"github.com/redis/go-redis/v9"
)

// scriptOK acquire.lua 加锁成功的返回值
const scriptOK = "OK"

var (
	//go:embed lua/acquire.lua
	acquireLuaSource string

	//go:embed lua/release.lua
	releaseLuaSource string
)

type scripts struct {
	acquire *redis.Script
	release *redis.Script
}

var (
	globalScripts     *scripts
	globalScriptsOnce sync.Once
)

func getScripts() *scripts {
	globalScriptsOnce.Do(func() {
		globalScripts = &scripts{
			acquire: redis.NewScript(acquireLuaSource),
			release: redis.NewScript(releaseLuaSource),
		}
	})
	return globalScripts
}
