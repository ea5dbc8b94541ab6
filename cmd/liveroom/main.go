// Command liveroom is the terminal client for LMS live sessions.
package main

import "github.com/navikt/liveroom/internal/cli"

func main() {
	cli.Execute()
}
