package main

import (
	"fmt"
	"os"
)

// main 是发布 API 的入口函数。
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
