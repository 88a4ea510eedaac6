// Package badge は未読件数をバッジの表示文字列に変換する。
package badge

import "strconv"

// Render は未読件数を表示文字列にする。0以下なら空文字列で、上限による丸めは行わない。
func Render(count int) string {
	if count <= 0 {
		return ""
	}
	return strconv.Itoa(count)
}
