package main

import (
	"bytes"
	"testing"

	"github.com/boddenberg/leadchat-bfa-go/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestDashboardURL_EncodesQuery(t *testing.T) {
	got := dashboardURL("https://example.com/", "joe's plumbing", "a&b=c")
	assert.Equal(t, "https://example.com/admin/leads?siteId=joe%27s+plumbing&token=a%26b%3Dc", got)
}

func TestPrintLinks_SkipsTenantsWithoutToken(t *testing.T) {
	var buf bytes.Buffer
	printLinks(&buf, "http://localhost:3000", []*domain.BusinessProfile{
		{SiteID: "demo-plumber", Name: "Demo Plumbing", AccessToken: "secret"},
		{SiteID: "no-token", Name: "Quiet Co"},
	})

	out := buf.String()
	assert.Contains(t, out, "Demo Plumbing (demo-plumber):\n  http://localhost:3000/admin/leads?siteId=demo-plumber&token=secret")
	assert.Contains(t, out, "(Skipping no-token - no token set)")
	assert.NotContains(t, out, "Quiet Co")
}
