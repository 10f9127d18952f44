package netclient

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"sort"
	"strings"
)

const (
	DefaultFileField   = "file"
	DefaultContentType = "audio/wav"
)

// UploadFile 待上传的文件
type UploadFile struct {
	// Name 文件名，写入 Content-Disposition 的 filename
	Name string

	// FieldName 表单字段名，默认 "file"
	FieldName string

	// ContentType 默认 audio/wav
	ContentType string

	Reader io.Reader
}

// Progress 上传进度
type Progress struct {
	Sent  int64
	Total int64
}

// Fraction 返回 [0,1] 的完成比例
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Sent) / float64(p.Total)
}

// UploadOption 上传选项
type UploadOption func(*uploadOptions)

type uploadOptions struct {
	progress chan<- Progress
}

// WithProgress 在请求体被传输层读取时向 ch 发送进度。发送不阻塞，
// 消费不及时的事件会被丢弃；重试会从 0 重新报告。客户端不会关闭 ch。
func WithProgress(ch chan<- Progress) UploadOption {
	return func(o *uploadOptions) {
		o.progress = ch
	}
}

// multipartBody 一次性编码的表单，重试时复用同一份字节
type multipartBody struct {
	data        []byte
	contentType string
}

// encodeMultipart 先写普通字段（按键排序），再写文件
func encodeMultipart(file UploadFile, fields map[string]string) (*multipartBody, error) {
	if file.Reader == nil {
		return nil, fmt.Errorf("upload file %q has no reader", file.Name)
	}
	if file.FieldName == "" {
		file.FieldName = DefaultFileField
	}
	if file.ContentType == "" {
		file.ContentType = DefaultContentType
	}
	if file.Name == "" {
		file.Name = file.FieldName
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, fields[k]); err != nil {
			return nil, err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(file.FieldName), escapeQuotes(filepath.Base(file.Name))))
	h.Set("Content-Type", file.ContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file.Reader); err != nil {
		return nil, fmt.Errorf("read upload file %q: %w", file.Name, err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return &multipartBody{data: buf.Bytes(), contentType: w.FormDataContentType()}, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// progressReader 在 Read 时累计字节并报告进度
type progressReader struct {
	r     io.Reader
	sent  int64
	total int64
	ch    chan<- Progress
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		select {
		case p.ch <- Progress{Sent: p.sent, Total: p.total}:
		default:
		}
	}
	return n, err
}
