package main

import "github.com/lakechat/lakechat/cmd"

func main() {
	cmd.Execute()
}
