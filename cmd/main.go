package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/mabquiz/mabquiz-backend/internal/app"
)

func main() {
	_ = godotenv.Load()

	application, err := app.New()
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	application.Start()

	addr := ":" + application.Cfg.Port
	application.Log.Info("Starting HTTP server", "addr", addr)
	if err := application.Run(addr); err != nil {
		application.Log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}
