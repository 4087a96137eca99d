package main

import (
	cipcmd "github.com/initializ/cip/cmd"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	cipcmd.SetVersionInfo(version, commit)
	cipcmd.Execute()
}
