package main

import (
	"log"

	"github.com/MrSnakeDoc/slotkeeper/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ slotkeeper failed: %v", err)
	}
}
