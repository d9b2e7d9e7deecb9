package main

import "github.com/RikVolger/CaTE/cmd/cate/cmd"

func main() {
	cmd.Execute()
}
