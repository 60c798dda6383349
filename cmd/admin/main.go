package main

import (
	"context"
	"log"

	"github.com/devsoc/devsoc-backend/internal/admin/cli"
	"github.com/devsoc/devsoc-backend/internal/admin/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := cli.NewApp(cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)

}
