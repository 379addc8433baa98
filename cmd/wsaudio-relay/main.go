// ABOUTME: Entry point for the WSAudio relay
// ABOUTME: Hands off to the cobra relay command
package main

import "github.com/wsaudio/wsaudio-go/internal/cli"

func main() {
	cli.Execute(cli.NewRelayCommand())
}
