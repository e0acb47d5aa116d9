package global

import (
	"errors"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// PathExists 判断给定path是否存在
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || errors.Is(err, os.ErrExist)
}

// WriteFileAtomic 先写入同目录临时文件再改名
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err = f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Check 检测err是否为nil, 否则以 fatal 级别退出
func Check(err error, msg string) {
	if err != nil {
		log.Fatalf("%s: %+v", msg, err)
	}
}
