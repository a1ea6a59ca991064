package main

import (
	"bufio"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/hamed0406/pushrelay/internal/domain"
	"github.com/hamed0406/pushrelay/internal/relay"
)

// Sends one heartbeat to a relay's inbound /api/push/{id} route.
func main() {
	api := os.Getenv("RELAY_BASE")
	if api == "" {
		api = "http://127.0.0.1:8321"
	}

	reader := bufio.NewReader(os.Stdin)
	ask := func(prompt, def string) string {
		fmt.Printf("%s [%s]: ", prompt, def)
		s, _ := reader.ReadString('\n')
		if s = strings.TrimSpace(s); s == "" {
			return def
		}
		return s
	}

	id := ask("Push id", "")
	if id == "" {
		fmt.Println("A push id is required.")
		return
	}
	q := url.Values{
		"status": {ask("Status (up, down, degraded_performance, under_maintenance, limited_availability)", "up")},
		"ping":   {ask("Ping in ms", "0")},
		"msg":    {ask("Message", domain.DefaultMessage)},
	}
	if _, err := domain.HeartbeatFromQuery(q); err != nil {
		fmt.Println("Invalid heartbeat:", err)
		return
	}

	dest, err := relay.PushURL(api, id)
	if err != nil {
		fmt.Println("Invalid relay address:", err)
		return
	}
	resp, err := http.Post(dest+"?"+q.Encode(), "text/plain", nil)
	if err != nil {
		fmt.Println("Error contacting relay:", err)
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		fmt.Println("Relayed.")
	case http.StatusPreconditionFailed:
		fmt.Println("The relay has no upstream configured.")
	default:
		fmt.Println("Relay returned status:", resp.Status)
	}
}
