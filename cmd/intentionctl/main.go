// intentionctl is the operator CLI for the intentiond cross-device
// interaction service. It talks to a running daemon over the Unix-socket
// control plane.
package main

import "github.com/dantte-lp/intentiond/cmd/intentionctl/commands"

func main() {
	commands.Execute()
}
