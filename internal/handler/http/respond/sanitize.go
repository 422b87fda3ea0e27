package respond

import (
	"regexp"
)

// redaction は1つの機密パターンと置換文字列
type redaction struct {
	pattern *regexp.Regexp
	replace string
}

// 順序に意味がある: Bearer を先にマスクしてから裸の JWT を拾う
var redactions = []redaction{
	// DATABASE_URL / RATELIMIT_REDIS_URL のパスワード
	{regexp.MustCompile(`://([^:/@]*):([^@]+)@`), "://$1:****@"},
	// Authorization ヘッダー
	{regexp.MustCompile(`(?i)bearer\s+[a-z0-9\-_.=]+`), "Bearer ****"},
	// ログに紛れ込んだ JWT (header.payload.signature)
	{regexp.MustCompile(`eyJ[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+`), "****"},
	// libpq の key=value DSN と URL クエリ
	{regexp.MustCompile(`(?i)(password|secret)=[^\s&]+`), "$1=****"},
}

// SanitizeError は接続文字列やトークンをマスクしたエラーメッセージを返す
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, r := range redactions {
		msg = r.pattern.ReplaceAllString(msg, r.replace)
	}
	return msg
}
