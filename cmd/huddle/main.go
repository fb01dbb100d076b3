// Command huddle serves group swipe sessions over websocket.
package main

import (
	"log"

	"huddle/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
