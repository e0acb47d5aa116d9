// Package download provide download utility functions
package download

import (
	"time"

	"github.com/RomiChan/syncx"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"github.com/ycvk/go-essence/global"
)

// ErrStatus 非 200 响应
var ErrStatus = errors.New("unexpected status code")

// ErrOverSize 响应体超过 Limit
var ErrOverSize = errors.New("oversize")

const (
	defaultTimeout = 30 * time.Second
	maxRedirects   = 5
)

var client = newClient(0)

// limited 按 Limit 缓存的客户端, 响应体超限时在读取过程中即中断
var limited syncx.Map[int64, *fasthttp.Client]

func newClient(limit int64) *fasthttp.Client {
	return &fasthttp.Client{
		Name:                "go-essence",
		MaxIdleConnDuration: time.Minute,
		MaxResponseBodySize: int(limit),
	}
}

func clientFor(limit int64) *fasthttp.Client {
	if limit <= 0 {
		return client
	}
	if c, ok := limited.Load(limit); ok {
		return c
	}
	c, _ := limited.LoadOrStore(limit, newClient(limit))
	return c
}

// Request is a file download request
type Request struct {
	URL     string
	Header  map[string]string
	Limit   int64
	Timeout time.Duration
}

func (r Request) do(resp *fasthttp.Response) error {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(r.URL)
	for k, v := range r.Header {
		req.Header.Set(k, v)
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := clientFor(r.Limit)
	var err error
	for i := 0; i <= maxRedirects; i++ {
		if err = c.DoTimeout(req, resp, timeout); err != nil {
			if errors.Is(err, fasthttp.ErrBodyTooLarge) {
				return errors.Wrap(ErrOverSize, r.URL)
			}
			return errors.Wrap(err, "request "+r.URL+" error")
		}
		if !fasthttp.StatusCodeIsRedirect(resp.StatusCode()) {
			break
		}
		loc := resp.Header.Peek(fasthttp.HeaderLocation)
		if len(loc) == 0 {
			break
		}
		req.URI().UpdateBytes(loc)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return errors.Wrapf(ErrStatus, "%v: %d", r.URL, code)
	}
	if r.Limit > 0 && int64(len(resp.Body())) > r.Limit {
		return errors.Wrap(ErrOverSize, r.URL)
	}
	return nil
}

// Bytes 对给定URL发送请求，返回响应主体
func (r Request) Bytes() ([]byte, error) {
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)
	if err := r.do(resp); err != nil {
		return nil, err
	}
	return append([]byte(nil), resp.Body()...), nil
}

// WriteToFile 下载到制定目录
func (r Request) WriteToFile(path string) error {
	data, err := r.Bytes()
	if err != nil {
		return err
	}
	return global.WriteFileAtomic(path, data)
}
