// Package mime 提供MIME检查功能
package mime

import (
	"bytes"
	"image/png"
	"net/http"

	"github.com/pkg/errors"
	"golang.org/x/image/webp"
)

// ErrNotImage 数据不是支持的图片格式
var ErrNotImage = errors.New("not an image")

// WebP webp 图片的 MIME
const WebP = "image/webp"

var imageTypes = map[string]struct{}{
	"image/bmp":  {},
	"image/gif":  {},
	"image/jpeg": {},
	"image/png":  {},
	WebP:         {},
}

func scan(data []byte) string {
	if len(data) > 512 {
		data = data[:512]
	}
	return http.DetectContentType(data)
}

// CheckImage 检查数据是否为图片, 返回识别出的 MIME
func CheckImage(data []byte) (t string, ok bool) {
	t = scan(data)
	_, ok = imageTypes[t]
	return
}

// ToPNG 将 webp 图片转换为 png
func ToPNG(data []byte) ([]byte, error) {
	if t, _ := CheckImage(data); t != WebP {
		return nil, errors.Wrap(ErrNotImage, "want webp, got "+t)
	}
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "decode webp error")
	}
	buf := new(bytes.Buffer)
	if err = png.Encode(buf, img); err != nil {
		return nil, errors.Wrap(err, "encode png error")
	}
	return buf.Bytes(), nil
}
