// Command capsule 是 netclient 的命令行前端，用于手工调用 API 与排查网络问题。
//
//	capsule get /recordings/42 --base-url https://api.example.com/v1 --token $TOKEN
//	capsule upload /recordings --file memo.wav --field title=memo
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
