// Package fanout は公演イベントの登録を受けて、開催地に住むユーザー全員へ通知を作成する。
//
// 既定のEngineはリクエスト内で受信者ごとに順番に通知を作成し、最後に
// プッシュで配信する。ある受信者での失敗はログに残すだけで、イベントや
// 他の受信者の通知は取り消さない。
//
// Queueはwatermillのgochannel上で同じ処理を非同期に行う。イベントの保存だけは
// リクエスト内で済ませ、受信者の展開と通知の作成はキューの購読側で行う。
// 受信者ごとに再試行されるが、プロセスの再起動をまたいだ配送は保証しない。
package fanout
