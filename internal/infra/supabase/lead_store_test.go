package supabase_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/leadchat-bfa-go/internal/domain"
	"github.com/boddenberg/leadchat-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/leadchat-bfa-go/internal/infra/supabase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type row struct {
	ID        string `json:"id"`
	SiteID    string `json:"site_id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	PhoneE164 string `json:"phone_e164,omitempty"`
	Zip       string `json:"zip,omitempty"`
	Issue     string `json:"issue,omitempty"`
	CreatedAt string `json:"created_at"`
}

// fakePostgREST serves a minimal leads table with a unique index on
// (site_id, created_at).
type fakePostgREST struct {
	mu        sync.Mutex
	rows      []row
	conflicts int // POSTs to answer with 409 before accepting
	posts     int
	status    int // forced status for every request when non-zero
}

func (f *fakePostgREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("apikey") != "anon" || r.Header.Get("Authorization") != "Bearer service" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}
	if r.URL.Path != "/rest/v1/leads" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodPost:
		f.posts++
		var in row
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if f.conflicts > 0 {
			f.conflicts--
			w.WriteHeader(http.StatusConflict)
			return
		}
		for _, existing := range f.rows {
			if existing.SiteID == in.SiteID && existing.CreatedAt == in.CreatedAt {
				w.WriteHeader(http.StatusConflict)
				return
			}
		}
		f.rows = append(f.rows, in)
		w.WriteHeader(http.StatusCreated)

	case http.MethodGet:
		q := r.URL.Query()
		site := strings.TrimPrefix(q.Get("site_id"), "eq.")
		out := []row{}
		for _, existing := range f.rows {
			if site == "" || existing.SiteID == site {
				out = append(out, existing)
			}
		}
		desc := q.Get("order") == "created_at.desc"
		sort.SliceStable(out, func(i, j int) bool {
			if desc {
				return out[i].CreatedAt > out[j].CreatedAt
			}
			return out[i].CreatedAt < out[j].CreatedAt
		})
		if q.Get("limit") == "1" && len(out) > 1 {
			out = out[:1]
		}
		json.NewEncoder(w).Encode(out)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newStore(t *testing.T, fake *fakePostgREST) *supabase.LeadStore {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := supabase.NewClient(
		srv.Client(), srv.URL, "anon", "service",
		resilience.NewCircuitBreaker("supabase-test"),
		resilience.Config{MaxRetries: 0},
		zap.NewNop(),
	)
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return supabase.NewLeadStore(client, zap.NewNop()).WithClock(func() time.Time { return frozen })
}

var plumber = &domain.BusinessProfile{SiteID: "demo-plumber", Name: "Demo Plumbing"}

func TestLeadStore_AppendAndList(t *testing.T) {
	fake := &fakePostgREST{}
	store := newStore(t, fake)
	ctx := context.Background()

	for _, name := range []string{"Ann", "Bob", "Cid"} {
		_, err := store.Append(ctx, plumber, domain.Lead{ID: "id-" + name, Name: name, Phone: "555"})
		require.NoError(t, err)
	}
	_, err := store.Append(ctx, &domain.BusinessProfile{SiteID: "other"}, domain.Lead{Name: "Zed", Phone: "1"})
	require.NoError(t, err)

	leads, err := store.List(ctx, plumber)
	require.NoError(t, err)
	require.Len(t, leads, 3)
	assert.Equal(t, "Ann", leads[0].Name)
	assert.Equal(t, "Cid", leads[2].Name)
	assert.Equal(t, "id-Bob", leads[1].ID)
	assert.Equal(t, "2026-03-01T12:00:00.000Z", leads[0].CreatedAt)
	assert.Equal(t, "2026-03-01T12:00:00.001Z", leads[1].CreatedAt)
	assert.Equal(t, "2026-03-01T12:00:00.002Z", leads[2].CreatedAt)
}

func TestLeadStore_ListEmpty(t *testing.T) {
	store := newStore(t, &fakePostgREST{})

	leads, err := store.List(context.Background(), plumber)
	require.NoError(t, err)
	assert.NotNil(t, leads)
	assert.Empty(t, leads)
}

func TestLeadStore_RetriesOnConflict(t *testing.T) {
	fake := &fakePostgREST{conflicts: 2}
	store := newStore(t, fake)

	got, err := store.Append(context.Background(), plumber, domain.Lead{Name: "Ann", Phone: "555"})
	require.NoError(t, err)
	assert.Equal(t, 3, fake.posts)
	assert.Equal(t, "2026-03-01T12:00:00.000Z", got.CreatedAt)
}

func TestLeadStore_GivesUpAfterRepeatedConflicts(t *testing.T) {
	fake := &fakePostgREST{conflicts: 100}
	store := newStore(t, fake)

	_, err := store.Append(context.Background(), plumber, domain.Lead{Name: "Ann", Phone: "555"})

	var pe *domain.ErrPersistence
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "write", pe.Op)
	assert.Equal(t, 5, fake.posts)
}

func TestLeadStore_BackendFailure(t *testing.T) {
	fake := &fakePostgREST{status: http.StatusInternalServerError}
	store := newStore(t, fake)

	_, err := store.Append(context.Background(), plumber, domain.Lead{Name: "Ann", Phone: "555"})
	var pe *domain.ErrPersistence
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "read", pe.Op)

	_, err = store.List(context.Background(), plumber)
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "demo-plumber", pe.SiteID)

	assert.Error(t, store.Ping(context.Background()))
}

func TestLeadStore_Ping(t *testing.T) {
	store := newStore(t, &fakePostgREST{})
	assert.NoError(t, store.Ping(context.Background()))
}
