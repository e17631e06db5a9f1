package main

import "github.com/KaramelBytes/gradecast/cmd"

func main() {
	cmd.Execute()
}
