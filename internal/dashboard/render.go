// Package dashboard renders a tenant's lead ledger as an HTML page.
//
// All lead fields come from model output and are rendered through
// html/template, which escapes them for the HTML context.
package dashboard

import (
	"embed"
	"html/template"
	"io"
	"sync"
	"time"

	"github.com/boddenberg/leadchat-bfa-go/internal/domain"
)

// DateLayout is how lead timestamps are shown, e.g. "Mar 1, 2026, 7:05 AM".
const DateLayout = "Jan 2, 2006, 3:04 PM"

//go:embed templates/leads.html
var templateFS embed.FS

var leadsTemplate = template.Must(template.ParseFS(templateFS, "templates/leads.html"))

type pageData struct {
	BusinessName string
	SiteID       string
	Location     string
	Timezone     string
	Leads        []leadRow
}

type leadRow struct {
	Name  string
	Phone string
	Zip   string
	Issue string
	Date  string
}

// Renderer writes the lead dashboard page.
type Renderer struct {
	defaultZone string
	zones       sync.Map // name → *time.Location
}

// NewRenderer creates a renderer. defaultZone is used for tenants whose
// configured timezone is missing or cannot be loaded.
func NewRenderer(defaultZone string) *Renderer {
	if defaultZone == "" {
		defaultZone = domain.DefaultTimezone
	}
	return &Renderer{defaultZone: defaultZone}
}

// Render writes the dashboard for profile and its leads (oldest first) to w.
func (r *Renderer) Render(w io.Writer, profile *domain.BusinessProfile, leads []domain.Lead) error {
	zoneName, loc := r.location(profile.Timezone)

	rows := make([]leadRow, 0, len(leads))
	for _, l := range leads {
		rows = append(rows, leadRow{
			Name:  l.Name,
			Phone: l.Phone,
			Zip:   l.Zip,
			Issue: l.Issue,
			Date:  FormatDate(l.CreatedAt, loc),
		})
	}

	return leadsTemplate.Execute(w, pageData{
		BusinessName: profile.Name,
		SiteID:       profile.SiteID,
		Location:     profile.Location,
		Timezone:     zoneName,
		Leads:        rows,
	})
}

// FormatDate shows an ISO-8601 ledger timestamp in loc. A value that does
// not parse is returned as is; an empty value stays empty.
func FormatDate(createdAt string, loc *time.Location) string {
	if createdAt == "" {
		return ""
	}
	t, err := domain.ParseLeadTime(createdAt)
	if err != nil {
		return createdAt
	}
	return t.In(loc).Format(DateLayout)
}

// location resolves the tenant zone, falling back to the default zone and
// then to UTC.
func (r *Renderer) location(name string) (string, *time.Location) {
	if name != "" {
		if loc, ok := r.load(name); ok {
			return name, loc
		}
	}
	if loc, ok := r.load(r.defaultZone); ok {
		return r.defaultZone, loc
	}
	return "UTC", time.UTC
}

func (r *Renderer) load(name string) (*time.Location, bool) {
	if v, ok := r.zones.Load(name); ok {
		return v.(*time.Location), true
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, false
	}
	r.zones.Store(name, loc)
	return loc, true
}
