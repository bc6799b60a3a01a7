package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"
)

// エラーコード。クライアントには公開せず、ログとメトリクスの分類にのみ使用します。
const (
	CodeInvalidInput        = "AUTH_INVALID_INPUT"
	CodeInvalidCredentials  = "AUTH_INVALID_CREDENTIALS"
	CodeInvalidToken        = "AUTH_INVALID_TOKEN"
	CodeUpstreamUnavailable = "AUTH_UPSTREAM_UNAVAILABLE"
)

// Kind は認証失敗の原因分類です。
type Kind string

const (
	KindInvalidInput        Kind = "invalid-input"
	KindInvalidCredentials  Kind = "invalid-credentials"
	KindInvalidToken        Kind = "invalid-token"
	KindUpstreamUnavailable Kind = "upstream-unavailable"
	KindUnknown             Kind = "unknown"
)

var (
	errMissingToken = oops.Code(CodeInvalidInput).Errorf("missing bearer token")
	errNoUser       = oops.Code(CodeInvalidToken).Errorf("token resolved to no user")
)

// Classify はエラーを原因分類に変換します。nil の場合は空文字を返します。
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindUpstreamUnavailable
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindUnknown
	}
	switch oopsErr.Code() {
	case CodeInvalidInput:
		return KindInvalidInput
	case CodeInvalidCredentials:
		return KindInvalidCredentials
	case CodeInvalidToken:
		return KindInvalidToken
	case CodeUpstreamUnavailable:
		return KindUpstreamUnavailable
	default:
		return KindUnknown
	}
}

func wrapInvalidInput(err error) error {
	return oops.Code(CodeInvalidInput).Wrap(err)
}
