// Package notification は通知レコードの永続化を提供する。
//
// 通知は公演イベントの登録時にファンアウトによってのみ作成される。
// 変更できるのは既読フラグ（false → true の一方向）だけで、
// それ以外は明示的な削除まで作成時の内容を保つ。
package notification
