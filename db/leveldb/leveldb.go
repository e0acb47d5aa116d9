// Package leveldb 精华消息图片归档, 用于 saveall
package leveldb

import (
	"encoding/hex"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"golang.org/x/crypto/blake2b"
)

// DefaultPath 默认图片归档位置
const DefaultPath = "data/essence_message/images"

// Archive 按群归档的图片库, 相同内容只保存一次
type Archive struct {
	db *leveldb.DB
}

// Open 打开位于 path 的归档
func Open(path string) (*Archive, error) {
	d, err := leveldb.OpenFile(path, &opt.Options{WriteBuffer: 32 * opt.KiB})
	if err != nil {
		return nil, errors.Wrap(err, "open leveldb error")
	}
	return &Archive{db: d}, nil
}

// OpenMemory 打开仅存在于内存中的归档
func OpenMemory() (*Archive, error) {
	d, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "open leveldb error")
	}
	return &Archive{db: d}, nil
}

// Close 关闭归档
func (a *Archive) Close() error {
	return a.db.Close()
}

func groupPrefix(groupID int64) []byte {
	return []byte("g" + strconv.FormatInt(groupID, 10) + "/")
}

// Key 计算图片在归档中的键
func Key(groupID int64, data []byte) string {
	sum := blake2b.Sum256(data)
	return string(groupPrefix(groupID)) + hex.EncodeToString(sum[:])
}

// Save 保存图片, fresh 为 false 表示已存在
func (a *Archive) Save(groupID int64, mime string, data []byte) (key string, fresh bool, err error) {
	key = Key(groupID, data)
	ok, err := a.db.Has([]byte(key), nil)
	if err != nil {
		return "", false, errors.Wrap(err, "query leveldb error")
	}
	if ok {
		return key, false, nil
	}
	w := newWriter()
	w.writeArchivedImage(&ArchivedImage{
		Time:    time.Now().Unix(),
		GroupID: groupID,
		MIME:    mime,
		Data:    data,
	})
	if err = a.db.Put([]byte(key), w.buf, nil); err != nil {
		return "", false, errors.Wrap(err, "put leveldb error")
	}
	log.Debugf("已归档群 %v 的图片 %v (%v bytes)", groupID, key, len(data))
	return key, true, nil
}

// Load 读取图片, 不存在时返回 nil
func (a *Archive) Load(key string) (*ArchivedImage, error) {
	data, err := a.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get leveldb error")
	}
	r, err := newReader(data)
	if err != nil {
		return nil, err
	}
	x := r.readArchivedImage()
	if r.err != nil || x == nil {
		return nil, errCorrupted
	}
	return x, nil
}

// Count 群内已归档的图片数量
func (a *Archive) Count(groupID int64) (int, error) {
	iter := a.db.NewIterator(util.BytesPrefix(groupPrefix(groupID)), nil)
	defer iter.Release()
	n := 0
	for iter.Next() {
		n++
	}
	return n, iter.Error()
}
