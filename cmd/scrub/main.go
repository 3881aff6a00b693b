// Package main is the entry point for the scrub CLI binary.
package main

import (
	"os"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver for source stores
	_ "github.com/mattn/go-sqlite3"    // sqlite driver for source stores and the metastore

	"scrub/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
