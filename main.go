package main

import "chat-server/internal/app"

func main() {
	app.Run()
}
