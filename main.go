package main

import (
	"os"

	"crm-tag-proxy/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		os.Exit(1)
	}
}
