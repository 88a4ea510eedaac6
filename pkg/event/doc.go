// Package event はファンアウトキューを流れるドメインイベントを定義する。
//
// 公演イベントの登録（EventPosted）と、受信者1人分の通知作成要求
// （NotificationRequested）をEnvelopeに包んでJSONで受け渡す。
package event
