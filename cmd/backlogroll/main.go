// Command backlogroll はゲームのバックログ推薦APIサーバーとワーカーを起動する。
//
//	backlogroll [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/backlogroll/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "backlogroll: %v\n", err)
		os.Exit(1)
	}
}
