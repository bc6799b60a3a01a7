// Package logging は slog ベースの構造化ロガーを提供します。
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/samber/oops"
)

// Setup はサービス名付きの slog.Logger を作成します。
// format が "text" 以外の場合は JSON で出力し、w が nil の場合は標準エラー出力に書き込みます。
func Setup(service, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With(slog.String("service", service))
}

// Error はエラーを構造化して出力します。
// oops のエラーであればコードとコンテキストも併せて出力します。
func Error(logger *slog.Logger, msg string, err error, attrs ...any) {
	if logger == nil {
		return
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		attrs = append(attrs, "error", oopsErr.Error())
		if code := oopsErr.Code(); code != nil {
			attrs = append(attrs, "code", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			attrs = append(attrs, "context", ctx)
		}
		logger.Error(msg, attrs...)
		return
	}
	logger.Error(msg, append(attrs, "error", err)...)
}
