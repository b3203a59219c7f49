package main

import "evidencebot/internal/app"

func main() {
	app.Main()
}
