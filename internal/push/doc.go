// Package push は新着通知をWebSocketで接続中の全クライアントへ配信する。
//
// 配信は宛先を区別しないベストエフォートで、確認応答も再送もない。
// 接続していなかったクライアントはこのチャネルでは何も受け取らないため、
// クライアントはポーリングで追いつく前提になっている。受け取った側は
// 内容を信用せず、自分宛ての一覧を取り直す合図としてだけ使う。
package push
