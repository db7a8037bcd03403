// Command dashboard-links prints the private lead dashboard URL of every
// configured business. Businesses without an access token are skipped.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/boddenberg/leadchat-bfa-go/internal/business"
	"github.com/boddenberg/leadchat-bfa-go/internal/config"
	"github.com/boddenberg/leadchat-bfa-go/internal/domain"
	"github.com/boddenberg/leadchat-bfa-go/internal/infra/observability"
)

func main() {
	_ = config.LoadDotEnv(".env")

	path := flag.String("businesses", envOr("BUSINESSES_PATH", "businesses.json"), "business profile file (JSON or YAML)")
	base := flag.String("base-url", envOr("PUBLIC_BASE_URL", "http://localhost:3000"), "public URL of the leadchat server")
	flag.Parse()

	if _, err := os.Stat(*path); err != nil {
		fmt.Fprintf(os.Stderr, "business profiles not found: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger("warn")
	defer logger.Sync()

	store := business.Load(*path, ".", logger)
	if store.Len() == 0 {
		fmt.Fprintf(os.Stderr, "no business profiles loaded from %s\n", *path)
		os.Exit(1)
	}

	printLinks(os.Stdout, *base, store.All())
}

func printLinks(w io.Writer, base string, profiles []*domain.BusinessProfile) {
	fmt.Fprint(w, "\n=== Dashboard Links ===\n\n")
	for _, p := range profiles {
		if p.AccessToken == "" {
			fmt.Fprintf(w, "(Skipping %s - no token set)\n\n", p.SiteID)
			continue
		}
		fmt.Fprintf(w, "%s (%s):\n  %s\n\n", p.Name, p.SiteID, dashboardURL(base, p.SiteID, p.AccessToken))
	}
}

func dashboardURL(base, siteID, token string) string {
	q := url.Values{}
	q.Set("siteId", siteID)
	q.Set("token", token)
	return strings.TrimRight(base, "/") + "/admin/leads?" + q.Encode()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
