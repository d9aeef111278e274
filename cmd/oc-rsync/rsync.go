// Tool oc-rsync is an rsync client/server/daemon Go implementation.
package main

import (
	"context"
	"log"
	"os"

	"github.com/oferchen/oc-rsync/internal/maincmd"
	"github.com/oferchen/oc-rsync/internal/rsyncos"
)

func main() {
	osenv := &rsyncos.Env{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	if _, err := maincmd.Main(context.Background(), osenv, os.Args, nil); err != nil {
		log.Fatal(err)
	}
}
