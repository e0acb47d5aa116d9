package leveldb

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/ycvk/go-essence/utils"
)

type coder byte

const (
	coderNil coder = iota
	coderStruct
)

const dataVersion = 1

var errCorrupted = errors.New("leveldb: corrupted archive record")

type writer struct {
	buf []byte
}

func newWriter() *writer {
	return &writer{buf: []byte{dataVersion}}
}

func (w *writer) coder(c coder) { w.buf = append(w.buf, byte(c)) }
func (w *writer) nil()          { w.coder(coderNil) }

func (w *writer) int64(x int64) {
	w.buf = binary.AppendVarint(w.buf, x)
}

func (w *writer) bytes(b []byte) {
	w.buf = binary.AppendUvarint(w.buf, uint64(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) string(s string) { w.bytes(utils.S2B(s)) }

type reader struct {
	data []byte
	err  error
}

func newReader(data []byte) (*reader, error) {
	if len(data) == 0 || data[0] != dataVersion {
		return nil, errCorrupted
	}
	return &reader{data: data[1:]}, nil
}

func (r *reader) fail() {
	if r.err == nil {
		r.err = errCorrupted
	}
	r.data = nil
}

func (r *reader) coder() coder {
	if len(r.data) == 0 {
		r.fail()
		return coderNil
	}
	c := coder(r.data[0])
	r.data = r.data[1:]
	return c
}

func (r *reader) int64() int64 {
	x, n := binary.Varint(r.data)
	if n <= 0 {
		r.fail()
		return 0
	}
	r.data = r.data[n:]
	return x
}

func (r *reader) bytes() []byte {
	l, n := binary.Uvarint(r.data)
	if n <= 0 || uint64(len(r.data)-n) < l {
		r.fail()
		return nil
	}
	b := append([]byte(nil), r.data[n:n+int(l)]...)
	r.data = r.data[n+int(l):]
	return b
}

func (r *reader) string() string { return string(r.bytes()) }
