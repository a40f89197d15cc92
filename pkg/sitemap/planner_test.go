package sitemap

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amosWeiskopf/auditsmith/internal/models"
)

func testPlanner(cap int) *Planner {
	return NewPlanner(Options{
		PageCap:           cap,
		PriorityPaths:     []string{"/pricing", "/blog", "/about"},
		RequestsPerSecond: 1000,
	}, zap.NewNop().Sugar())
}

func sitemapBody(urls []string) string {
	body := `<?xml version="1.0" encoding="UTF-8"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`
	for _, u := range urls {
		body += "<url><loc>" + u + "</loc></url>"
	}
	return body + "</urlset>"
}

func TestPlanSingleModeSkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	plan, err := testPlanner(15).Plan(context.Background(), server.URL+"/landing", models.ModeSingle)
	require.NoError(t, err)

	assert.Equal(t, []string{server.URL + "/landing"}, plan.URLs)
	assert.False(t, plan.DegradedToSingle)
	assert.Zero(t, hits.Load(), "single mode must not fetch anything")
}

func TestPlanFullModeCapsAtConfiguredLimit(t *testing.T) {
	var serverURL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sitemap.xml" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		urls := []string{serverURL + "/"}
		for i := 1; i < 30; i++ {
			urls = append(urls, fmt.Sprintf("%s/page-%d", serverURL, i))
		}
		fmt.Fprint(w, sitemapBody(urls))
	}))
	defer server.Close()
	serverURL = server.URL

	plan, err := testPlanner(15).Plan(context.Background(), server.URL, models.ModeFull)
	require.NoError(t, err)

	assert.Len(t, plan.URLs, 15)
	assert.False(t, plan.DegradedToSingle)
	assert.Equal(t, server.URL+"/", plan.URLs[0], "root always leads the plan")
}

func TestPlanPrefersPriorityPaths(t *testing.T) {
	var serverURL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sitemap.xml" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		urls := []string{}
		for i := 0; i < 10; i++ {
			urls = append(urls, fmt.Sprintf("%s/misc-%d", serverURL, i))
		}
		urls = append(urls, serverURL+"/pricing", serverURL+"/blog/launch")
		fmt.Fprint(w, sitemapBody(urls))
	}))
	defer server.Close()
	serverURL = server.URL

	plan, err := testPlanner(5).Plan(context.Background(), server.URL, models.ModeFull)
	require.NoError(t, err)

	require.Len(t, plan.URLs, 5)
	// Root first, then the two priority URLs despite appearing last in the
	// sitemap, then document order.
	assert.Equal(t, server.URL+"/", plan.URLs[0])
	assert.Equal(t, server.URL+"/pricing", plan.URLs[1])
	assert.Equal(t, server.URL+"/blog/launch", plan.URLs[2])
	assert.Equal(t, server.URL+"/misc-0", plan.URLs[3])
}

func TestPlanDegradesWhenSitemapMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	plan, err := testPlanner(15).Plan(context.Background(), server.URL+"/home", models.ModeFull)
	require.NoError(t, err, "missing sitemap is a degradation, not a failure")

	assert.Equal(t, []string{server.URL + "/home"}, plan.URLs)
	assert.True(t, plan.DegradedToSingle)
}

func TestPlanFollowsSitemapIndex(t *testing.T) {
	var serverURL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?><sitemapindex><sitemap><loc>%s/pages.xml</loc></sitemap></sitemapindex>`, serverURL)
		case "/pages.xml":
			fmt.Fprint(w, sitemapBody([]string{serverURL + "/", serverURL + "/docs", serverURL + "/about"}))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()
	serverURL = server.URL

	plan, err := testPlanner(15).Plan(context.Background(), server.URL, models.ModeFull)
	require.NoError(t, err)

	assert.Len(t, plan.URLs, 3)
	assert.Contains(t, plan.URLs, server.URL+"/docs")
}

func TestPlanDropsForeignHosts(t *testing.T) {
	var serverURL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sitemap.xml" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, sitemapBody([]string{
			serverURL + "/",
			serverURL + "/team",
			"https://cdn.example.net/asset",
		}))
	}))
	defer server.Close()
	serverURL = server.URL

	plan, err := testPlanner(15).Plan(context.Background(), server.URL, models.ModeFull)
	require.NoError(t, err)

	assert.Len(t, plan.URLs, 2)
	assert.NotContains(t, plan.URLs, "https://cdn.example.net/asset")
}

func TestPlanRejectsInvalidTarget(t *testing.T) {
	for _, target := range []string{"", "not-a-url", "://nope"} {
		_, err := testPlanner(15).Plan(context.Background(), target, models.ModeSingle)
		assert.Error(t, err, "target %q", target)
	}
}
