// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// JWT認証トークンの発行と検証、zerologによるリクエストログ、
// パニックリカバリ、CORS設定を含む。
package middleware
