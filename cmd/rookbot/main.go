package main

import "rookbot/internal/bot"

func main() {
	bot.Run()
}
