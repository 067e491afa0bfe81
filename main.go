package main

import "github.com/Clau791/Document-proccesing-Video-sub-dub/cmd"

func main() {
	cmd.Execute()
}
