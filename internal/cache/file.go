package cache

import (
	"bytes"
	"strings"

	"github.com/gofiber/utils/v2"
)

// MIMEOctetStream 是未知扩展名时的兜底类型。
const MIMEOctetStream = "application/octet-stream"

// File 表示快照中的一个缓存文件，构造完成后不再修改，所有并发读者共享同一份 content。
type File struct {
	content    []byte
	compressed bool
	ext        string
	tag        string
	immutable  bool
}

// Content 返回共享的只读缓冲区，调用方不得修改。
func (f *File) Content() []byte { return f.content }

// Size 返回存储字节数（压缩后或原始）。
func (f *File) Size() int { return len(f.content) }

// Compressed 表示 content 是否为 gzip 数据。
func (f *File) Compressed() bool { return f.compressed }

// Ext 返回不带点的原始扩展名，可能为空。
func (f *File) Ext() string { return f.ext }

// Tag 返回基于 mtime（Unix 秒）的校验值，用作 ETag。
func (f *File) Tag() string { return f.tag }

// Immutable 表示加载时路径命中了 RegexImmutable。
func (f *File) Immutable() bool { return f.immutable }

// Reader 返回一个新的读游标，不复制底层缓冲区。
func (f *File) Reader() *bytes.Reader {
	return bytes.NewReader(f.content)
}

// MIME 仅根据扩展名推断内容类型。
func (f *File) MIME() string {
	return MIMEFromExt(f.ext)
}

// MIMEFromExt 将扩展名映射为 MIME，未知或缺失时返回 application/octet-stream。
func MIMEFromExt(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return MIMEOctetStream
	}
	if mime := utils.GetMIME(ext); mime != "" {
		return mime
	}
	return MIMEOctetStream
}
