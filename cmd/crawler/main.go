package main

import (
	"fmt"
	"os"
)

// main 是爬虫的入口函数。
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
