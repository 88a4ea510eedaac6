// Package catalog は公演イベントとユーザーのレコードを保存する。
//
// 通知ファンアウトからは、イベントの保存先と「開催地に住むユーザー」の
// 検索元として使われる。ユーザーのパスワードはbcryptでハッシュ化して保存する。
package catalog
