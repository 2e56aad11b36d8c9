package main

import (
	"log"

	"github.com/mapic/tilecube/internal/app"
	"github.com/mapic/tilecube/pkg/config"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalln("failed to load config: ", err)
	}

	app.Run(cfg)
}
