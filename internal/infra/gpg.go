package infra

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"gpg-expire-warner/internal/domain"
)

const tracerName = "gpg-expire-warner/infra"

// GPGClient は gpg バイナリをサブプロセスとして呼び出す。
// タイムアウトは設けない。パスフレーズ入力待ちなどはgpg側の挙動に従う。
type GPGClient struct {
	binary  string
	homedir string
	stdin   io.Reader
	stderr  io.Writer
	tracer  trace.Tracer
}

// GPGOption はGPGClientの設定を変更する。
type GPGOption func(*GPGClient)

// WithHomedir は --homedir に渡すディレクトリを指定する。
func WithHomedir(dir string) GPGOption {
	return func(c *GPGClient) { c.homedir = dir }
}

// WithTerminal は期限更新時にgpgへ接続する標準入力・標準エラーを指定する。
func WithTerminal(stdin io.Reader, stderr io.Writer) GPGOption {
	return func(c *GPGClient) {
		c.stdin = stdin
		c.stderr = stderr
	}
}

// NewGPGClient は新しいGPGClientを生成する。binaryが空の場合は "gpg" を使う。
func NewGPGClient(binary string, opts ...GPGOption) *GPGClient {
	if binary == "" {
		binary = "gpg"
	}
	c := &GPGClient{
		binary: binary,
		stdin:  os.Stdin,
		stderr: os.Stderr,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *GPGClient) baseArgs() []string {
	if c.homedir == "" {
		return nil
	}
	return []string{"--homedir", c.homedir}
}

// ListKeys は機械可読形式で鍵一覧を取得する。idsが空の場合はキーリング全体を対象とする。
func (c *GPGClient) ListKeys(ctx context.Context, ids []domain.KeyID) (string, error) {
	ctx, span := c.tracer.Start(ctx, "gpg.list_keys",
		trace.WithAttributes(attribute.Int("gpg.key_count", len(ids))))
	defer span.End()

	args := append(c.baseArgs(), "--batch", "--with-colons", "--fixed-list-mode", "--list-keys")
	for _, id := range ids {
		args = append(args, id.String())
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list keys failed")
		slog.ErrorContext(ctx, "failed to list keys",
			"operation", "list_keys",
			"binary", c.binary,
			"stderr", strings.TrimSpace(stderr.String()),
			"error", err,
		)
		return "", fmt.Errorf("%w: listing keys: %v: %s", domain.ErrGPGFailed, err, strings.TrimSpace(stderr.String()))
	}

	if !utf8.Valid(stdout.Bytes()) {
		span.RecordError(domain.ErrInvalidEncoding)
		span.SetStatus(codes.Error, "invalid encoding")
		slog.ErrorContext(ctx, "gpg key listing is not valid UTF-8",
			"operation", "list_keys",
			"binary", c.binary,
			"bytes", stdout.Len(),
			"error", domain.ErrInvalidEncoding,
		)
		return "", fmt.Errorf("%w: listing keys", domain.ErrInvalidEncoding)
	}

	span.SetAttributes(attribute.Int("gpg.output_bytes", stdout.Len()))
	return stdout.String(), nil
}

// QuickSetExpire は gpg --quick-set-expire で有効期限を更新する。
// subkeysが空の場合は主鍵自身、指定された場合は主鍵配下の副鍵を更新する。
func (c *GPGClient) QuickSetExpire(ctx context.Context, primary domain.KeyID, expire string, subkeys []domain.KeyID) error {
	ctx, span := c.tracer.Start(ctx, "gpg.quick_set_expire",
		trace.WithAttributes(
			attribute.String("gpg.primary", primary.String()),
			attribute.Int("gpg.subkey_count", len(subkeys)),
		))
	defer span.End()

	args := append(c.baseArgs(), "--quick-set-expire", primary.String(), expire)
	for _, id := range subkeys {
		args = append(args, id.String())
	}

	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Stdin = c.stdin
	cmd.Stdout = c.stderr
	cmd.Stderr = c.stderr

	if err := cmd.Run(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "quick set expire failed")
		slog.ErrorContext(ctx, "failed to set expiry",
			"operation", "quick_set_expire",
			"primary", primary.String(),
			"subkeys", len(subkeys),
			"error", err,
		)
		return fmt.Errorf("%w: %v", domain.ErrGPGFailed, err)
	}
	return nil
}
