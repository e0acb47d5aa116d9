package leveldb

// ArchivedImage 归档的精华消息图片
type ArchivedImage struct {
	Time    int64
	GroupID int64
	MIME    string
	Data    []byte
}

func (w *writer) writeArchivedImage(x *ArchivedImage) {
	if x == nil {
		w.nil()
		return
	}
	w.coder(coderStruct)
	w.int64(x.Time)
	w.int64(x.GroupID)
	w.string(x.MIME)
	w.bytes(x.Data)
}

func (r *reader) readArchivedImage() *ArchivedImage {
	coder := r.coder()
	if coder == coderNil {
		return nil
	}
	x := &ArchivedImage{}
	x.Time = r.int64()
	x.GroupID = r.int64()
	x.MIME = r.string()
	x.Data = r.bytes()
	return x
}
