// Package inbox はクライアント側で1人分の通知一覧と未読件数を保持する。
//
// 状態を変える経路は3つある。
//
//   - ポーリング: マウント中は一定間隔で一覧を取り直す
//   - プッシュ: 新着通知の合図を受けたら一覧を取り直す（宛先は確認しない）
//   - 利用者の操作: 既読化と削除をその場で反映し、サーバーへは後から送る
//
// どの経路もStateのRunゴルーチンへ更新を送るだけで、状態を書き換えるのは
// Runだけである。未読件数は更新のたびに一覧から数え直す。
//
// 操作をサーバーがまだ反映していない時点で取得した一覧が後から届くと、
// 既読にした通知が未読に戻って見える。これを防ぐため、操作は一覧で確認できるか
// サーバー呼び出しが失敗するまで保留として覚えておき、届いた一覧に重ねて適用する。
// マウントし直す前に始まった取得や、後から始まった取得より遅れて届いた取得は捨てる。
package inbox
