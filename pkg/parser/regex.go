package parser

import "regexp"

var (
	// FenceRegex は ```json ... ``` 形式のコードブロックの中身をキャプチャします。
	FenceRegex = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")
)
