package main

import (
	"os"

	"github.com/mazurov/supabase-keepalive/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
