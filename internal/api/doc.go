// Package api はencoreのHTTPエンドポイントを提供する。
//
// 公演イベントの登録はファンアウトを起動し、通知の一覧・既読化・削除と
// ユーザーのログインを扱う。/ws でプッシュチャネルを、/metrics で
// Prometheusのメトリクスを公開する。
package api
