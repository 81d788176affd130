package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/lightstatic/lightstatic/internal/version"
)

// printVersion 输出注入的版本 + 提交信息。
func printVersion() {
	fmt.Fprintln(stdOut, version.Full())
}

// printUsage 输出命令行帮助。
func printUsage(fs *pflag.FlagSet) {
	fmt.Fprintf(stdOut, "%s\n\nUsage: lightstatic [flags] [path]\n\n", version.Full())
	if fs != nil {
		fmt.Fprint(stdOut, fs.FlagUsages())
	}
}
