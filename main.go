// ABOUTME: Entry point for the WSAudio player
// ABOUTME: Hands off to the cobra player command
package main

import "github.com/wsaudio/wsaudio-go/internal/cli"

func main() {
	cli.Execute(cli.NewPlayerCommand())
}
