// Package httpclient はencore APIを呼び出すJSONクライアントを提供する。
//
// inboxwatchが通知一覧の取得や既読化、削除を行う際に使用する。
// 2xx以外の応答は *StatusError として返り、404は apperror.ErrNotFound として
// errors.Is で判定できる。
package httpclient
