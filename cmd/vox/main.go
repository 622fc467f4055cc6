package main

import (
	"log"

	"github.com/joho/godotenv"

	"vox/cmd/internal/app"
)

func main() {
	// Missing .env is fine; real deployments set env directly.
	_ = godotenv.Load()

	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
