// Command migrate applies the embedded schema migrations outside of the
// distributor. Database settings come from the same environment as the
// distributor; -driver and -db override them.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"job_distributor/internal/config"
	"job_distributor/migrations"
)

const usage = `usage: migrate [-driver sqlite|postgres] [-db dsn] <command> [args]

commands: up, up-by-one, up-to VERSION, down, down-to VERSION, redo,
          reset, status, version
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	driver := flag.String("driver", cfg.DatabaseDriver, "database driver")
	dsn := flag.String("db", cfg.DatabaseURL, "database path or connection URL")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	sqlDriver := "sqlite"
	if *driver == migrations.Postgres {
		sqlDriver = "pgx"
	}
	db, err := sql.Open(sqlDriver, *dsn)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := migrations.Setup(*driver); err != nil {
		log.Fatalf("setup: %v", err)
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	if err := goose.RunContext(context.Background(), cmd, db, ".", args...); err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}
