// main is the entry point for the macindex CLI.
package main

import (
	"github.com/huangsam/macindex/cmd"
	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/internal/iocache"
)

func main() {
	cmd.SetCacheManager(iocache.Manager)
	defer iocache.CloseCaching()

	if err := cmd.Execute(); err != nil {
		iocache.CloseCaching()
		contract.LogFatal("macindex failed", err)
	}
	if err := cmd.StopProfiling(); err != nil {
		contract.LogWarn("Failed to stop profiling", err)
	}
}
