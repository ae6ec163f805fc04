package main

import "github.com/audiolibrelab/voicechanger/cmd"

func main() {
	cmd.Execute()
}
