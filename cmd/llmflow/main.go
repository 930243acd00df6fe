package main

import (
	"github.com/joho/godotenv"
)

func main() {
	// credentials may live in a local .env file
	_ = godotenv.Load()
	Execute()
}
