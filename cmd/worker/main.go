package main

import (
	"log"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: worker sweep | schedule | export <owner> <projectID> <zip|pdf>")
	}

	switch os.Args[1] {
	case "sweep":
		RunSweep(false)
	case "schedule":
		RunSweep(true)
	case "export":
		RunExport(os.Args[2:])
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}
