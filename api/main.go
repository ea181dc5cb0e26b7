package main

import (
	"github.com/joho/godotenv"

	"github.com/conductorhq/conductor/api/cmd/conductor"
)

func main() {
	_ = godotenv.Load()
	conductor.Execute()
}
