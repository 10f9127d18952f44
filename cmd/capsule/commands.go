package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ceyewan/capsule/auth"
	"github.com/ceyewan/capsule/netclient"
	"github.com/ceyewan/capsule/xerrors"
)

type rootFlags struct {
	configPaths  []string
	baseURL      string
	token        string
	refreshToken string
	logLevel     string
	assumeOnline bool
}

// apply 命令行参数覆盖配置文件与环境变量
func (f *rootFlags) apply(cfg *appConfig) {
	if f.baseURL != "" {
		cfg.Client.BaseURL = f.baseURL
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:   "capsule",
		Short: "Resilient API client with retry, caching and offline replay",
		Long: `capsule sends requests through the same pipeline the application uses:
request deduplication, response caching, retry with backoff, a circuit breaker
and an offline queue that replays GET requests once the network comes back.

Configuration is read from config.yaml (see --config) and CAPSULE_* environment
variables; flags take precedence over both.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringSliceVar(&f.configPaths, "config", nil, "directories searched for config.yaml")
	pf.StringVar(&f.baseURL, "base-url", "", "API base URL, e.g. https://api.example.com/v1")
	pf.StringVar(&f.token, "token", "", "bearer access token")
	pf.StringVar(&f.refreshToken, "refresh-token", "", "refresh token used when the access token is rejected")
	pf.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	pf.BoolVar(&f.assumeOnline, "assume-online", false, "skip the connectivity probe")

	root.AddCommand(
		createGetCommand(f),
		createPostCommand(f),
		createUploadCommand(f),
		createStatusCommand(f),
	)
	return root
}

// withApp 构建依赖并在执行后释放
func withApp(cmd *cobra.Command, f *rootFlags, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	// 同一次命令输出的日志带相同的 invocation_id
	ctx = context.WithValue(ctx, invocationKey{}, uuid.NewString())
	a, err := newApp(ctx, f)
	if err != nil {
		return err
	}
	return xerrors.Combine(fn(ctx, a), a.Close(ctx))
}

func createGetCommand(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "Send a GET request and print the JSON response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, f, func(ctx context.Context, a *app) error {
				var out json.RawMessage
				err := auth.RetryOnUnauthorized(ctx, a.session, func(ctx context.Context) error {
					return a.client.Get(ctx, args[0], &out)
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
}

func createPostCommand(f *rootFlags) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "post <path>",
		Short: "Send a POST request with a JSON body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readData(cmd.InOrStdin(), data)
			if err != nil {
				return err
			}
			return withApp(cmd, f, func(ctx context.Context, a *app) error {
				var out json.RawMessage
				err := auth.RetryOnUnauthorized(ctx, a.session, func(ctx context.Context) error {
					return a.client.Post(ctx, args[0], body, &out)
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body, '@file' to read a file or '-' for stdin")
	return cmd
}

func createUploadCommand(f *rootFlags) *cobra.Command {
	var (
		file        string
		fieldName   string
		contentType string
		fields      []string
	)
	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a file as multipart/form-data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form, err := parseFields(fields)
			if err != nil {
				return err
			}
			fh, err := os.Open(file)
			if err != nil {
				return xerrors.Wrap(err, "open upload file")
			}
			defer fh.Close()

			return withApp(cmd, f, func(ctx context.Context, a *app) error {
				progress := make(chan netclient.Progress, 16)
				done := make(chan struct{})
				go func() {
					defer close(done)
					for p := range progress {
						a.logger.Debug(fmt.Sprintf("upload %.0f%%", p.Fraction()*100))
					}
				}()

				var out json.RawMessage
				err := a.client.Upload(ctx, args[0], netclient.UploadFile{
					Name:        file,
					FieldName:   fieldName,
					ContentType: contentType,
					Reader:      fh,
				}, form, &out, netclient.WithProgress(progress))
				close(progress)
				<-done
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "file to upload")
	cmd.Flags().StringVar(&fieldName, "field-name", "", "multipart field name of the file (default \"file\")")
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type of the file (default \"audio/wav\")")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "extra form field key=value, repeatable")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func createStatusCommand(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, f, func(_ context.Context, a *app) error {
				st := a.monitor.Status()
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "connected:  %t\n", st.Connected)
				if st.Interface != "" {
					fmt.Fprintf(w, "interface:  %s\n", st.Interface)
				}
				fmt.Fprintf(w, "signed in:  %t\n", a.session.SignedIn())
				return nil
			})
		},
	}
}

// readData 解析 --data：字面量、@文件 或 - 表示标准输入
func readData(stdin io.Reader, data string) (json.RawMessage, error) {
	var raw []byte
	switch {
	case data == "":
		return nil, nil
	case data == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, xerrors.Wrap(err, "read stdin")
		}
		raw = b
	case strings.HasPrefix(data, "@"):
		b, err := os.ReadFile(data[1:])
		if err != nil {
			return nil, xerrors.Wrap(err, "read data file")
		}
		raw = b
	default:
		raw = []byte(data)
	}
	raw = bytes.TrimSpace(raw)
	if !json.Valid(raw) {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "--data is not valid JSON")
	}
	return raw, nil
}

func parseFields(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, xerrors.Wrapf(xerrors.ErrInvalidInput, "field %q must be key=value", p)
		}
		out[k] = v
	}
	return out, nil
}

func printJSON(w io.Writer, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, werr := w.Write(raw)
		return werr
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
