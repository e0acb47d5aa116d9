// Package vote 好精投票计数, 计数以单个 JSON 对象整体持久化
package vote

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/ycvk/go-essence/global"
)

// Counter message_id -> 票数, 票数不会小于 0
type Counter struct {
	mu    sync.Mutex
	path  string
	tally map[string]int
}

// Open 读取 path 中已有的计数, 文件不存在时从空计数开始
func Open(path string) (*Counter, error) {
	c := &Counter{path: path, tally: make(map[string]int)}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read vote file error")
	}
	if len(data) == 0 {
		return c, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, errors.New("vote file is not valid json: " + path)
	}
	gjson.ParseBytes(data).ForEach(func(key, value gjson.Result) bool {
		n := int(value.Int())
		if n < 0 {
			n = 0
		}
		c.tally[key.String()] = n
		return true
	})
	log.Debugf("已载入 %v 条好精计数", len(c.tally))
	return c, nil
}

// Increment 票数加一并返回新值
func (c *Counter) Increment(id string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tally[id]++
	return c.tally[id], c.save()
}

// Decrement 票数减一并返回新值, 最低为 0
func (c *Counter) Decrement(id string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.tally[id] - 1
	if n < 0 {
		n = 0
	}
	c.tally[id] = n
	return n, c.save()
}

// Count 当前票数
func (c *Counter) Count(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tally[id]
}

// IsQualified 票数是否达到 threshold, 不会写入文件
func (c *Counter) IsQualified(id string, threshold int) bool {
	return c.Count(id) >= threshold
}

func (c *Counter) save() error {
	data, err := json.Marshal(c.tally)
	if err != nil {
		return errors.Wrap(err, "marshal vote tally error")
	}
	return errors.Wrap(global.WriteFileAtomic(c.path, data), "write vote file error")
}
