// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"

	"github.com/hamed0406/pushrelay/internal/config"
	"github.com/hamed0406/pushrelay/internal/domain"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	path := os.Getenv("CONFIGURATION_FILE_PATH")
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	if path == "" {
		warn("no configuration file given; checking defaults and RELAY_* environment only")
	}

	cfg, err := config.Load(path)
	if err != nil {
		fail(err.Error())
	}
	ok("configuration parsed: " + path)
	ok("classification=" + cfg.Policy().String())
	ok("region=" + cfg.Region)

	targets, _ := cfg.Targets()
	var nHTTP, nICMP int
	for _, t := range targets {
		if t.Kind == domain.KindHTTP {
			nHTTP++
		} else {
			nICMP++
		}
	}
	if len(targets) == 0 && cfg.DatabaseURL == "" {
		warn("no monitors configured — agent mode will idle.")
	} else {
		ok(fmt.Sprintf("monitors: %d HTTP, %d ICMP", nHTTP, nICMP))
	}
	if nICMP > 0 && !cfg.ICMPPrivileged {
		warn("ICMP monitors use unprivileged sockets; on Linux net.ipv4.ping_group_range must include this user.")
	}

	if cfg.DatabaseURL != "" {
		ok("database_url present (monitors table is read at startup)")
	}

	if cfg.Upstream.BaseURL == "" {
		warn("upstream.base_url empty — /api/push/{id} will answer 412.")
	} else {
		ok("upstream.base_url=" + cfg.Upstream.BaseURL)
	}

	if cfg.Server.ServesTLS() {
		ok("server listens with TLS on " + cfg.Server.ListenAddress)
	} else {
		ok("server listens on " + cfg.Server.ListenAddress)
	}

	if cfg.ErrorReporting.SentryDSN == "" && cfg.ErrorReporting.SlackWebhook == "" {
		warn("no error reporting configured — failures only reach the log.")
	}

	ok("preflight passed")
}
