package main

import (
	"fmt"
	"os"
)

// main 是发布流程的入口函数。
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
