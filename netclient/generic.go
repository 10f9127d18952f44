package netclient

import "context"

// GetAs 发起 GET 并解码为 T
func GetAs[T any](ctx context.Context, c Client, path string) (T, error) {
	var v T
	err := c.Get(ctx, path, &v)
	return v, err
}

// PostAs 发起 POST 并解码为 T
func PostAs[T any](ctx context.Context, c Client, path string, body any) (T, error) {
	var v T
	err := c.Post(ctx, path, body, &v)
	return v, err
}

// UploadAs 上传文件并解码为 T
func UploadAs[T any](ctx context.Context, c Client, path string, file UploadFile, fields map[string]string, opts ...UploadOption) (T, error) {
	var v T
	err := c.Upload(ctx, path, file, fields, &v, opts...)
	return v, err
}
