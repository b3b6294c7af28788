package main

import "github.com/stoik/inboxiq/services/lead-service/internal/app"

func main() {
	app.Execute()
}
