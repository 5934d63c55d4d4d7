// Command ftpwalk walks directory trees on FTP servers.
package main

import "github.com/gonzalop/ftpwalk/internal/cli"

func main() {
	cli.Execute()
}
