package main

import (
	"github.com/onbrandapp/stryp-comic-studio/cmd"
)

// main はコマンドの解析と実行を cmd パッケージに委ねるのだ。
func main() {
	cmd.Execute()
}
