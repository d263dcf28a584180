package httpsession

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/law-makers/planscrape/internal/cache"
	"github.com/law-makers/planscrape/internal/retry"
)

func fastRetry(attempts int) *retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = attempts
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = time.Millisecond
	return &cfg
}

func newMockSession(t *testing.T, opts Options) (*Session, *httpmock.MockTransport) {
	t.Helper()
	mock := httpmock.NewMockTransport()
	opts.Transport = mock
	if opts.Retry == nil {
		opts.Retry = fastRetry(1)
	}
	s, err := New(opts)
	require.NoError(t, err)
	return s, mock
}

const searchForm = `<html><body>
<form id="search" action="/results" method="post">
  <input type="hidden" name="__VIEWSTATE" value="abc">
  <input type="text" name="dateFrom" value="">
  <input type="text" name="dateTo" value="">
  <input type="checkbox" name="decided" value="1">
  <input type="checkbox" name="valid" value="Y" checked>
  <select name="type"><option value="ALL">All</option><option value="FUL" selected>Full</option></select>
  <textarea name="notes">none</textarea>
  <input type="submit" name="btnSearch" value="Search">
  <input type="submit" name="btnClear" value="Clear">
</form>
<a href="/results?page=2">Next &gt;</a>
<a href="/help">Help with searching</a>
</body></html>`

func TestSession_SubmitFormPost(t *testing.T) {
	s, mock := newMockSession(t, Options{Authority: "MockA"})

	mock.RegisterResponder(http.MethodGet, "http://council.example/search",
		httpmock.NewStringResponder(200, searchForm))

	var got map[string][]string
	mock.RegisterResponder(http.MethodPost, "http://council.example/results",
		func(req *http.Request) (*http.Response, error) {
			if err := req.ParseForm(); err != nil {
				return nil, err
			}
			got = req.PostForm
			return httpmock.NewStringResponse(200, "<html><body>results</body></html>"), nil
		})

	ctx := context.Background()
	_, err := s.Open(ctx, "http://council.example/search")
	require.NoError(t, err)

	page, err := s.SubmitForm(ctx, "form#search", map[string]string{
		"dateFrom": "13/09/2012",
		"dateTo":   "19/09/2012",
	}, "btnSearch")
	require.NoError(t, err)
	assert.Contains(t, page.Text(), "results")

	assert.Equal(t, []string{"abc"}, got["__VIEWSTATE"])
	assert.Equal(t, []string{"13/09/2012"}, got["dateFrom"])
	assert.Equal(t, []string{"19/09/2012"}, got["dateTo"])
	assert.Equal(t, []string{"Y"}, got["valid"])
	assert.Equal(t, []string{"FUL"}, got["type"])
	assert.Equal(t, []string{"none"}, got["notes"])
	assert.Equal(t, []string{"Search"}, got["btnSearch"])
	assert.NotContains(t, got, "decided")
	assert.NotContains(t, got, "btnClear")
}

func TestSession_SubmitFormErrors(t *testing.T) {
	s, mock := newMockSession(t, Options{Authority: "MockA"})
	ctx := context.Background()

	_, err := s.SubmitForm(ctx, "form", nil, "")
	assert.ErrorIs(t, err, ErrNoPage)

	mock.RegisterResponder(http.MethodGet, "http://council.example/search",
		httpmock.NewStringResponder(200, searchForm))
	_, err = s.Open(ctx, "http://council.example/search")
	require.NoError(t, err)

	_, err = s.SubmitForm(ctx, "form#missing", nil, "")
	assert.Error(t, err)

	_, err = s.SubmitForm(ctx, "form#search", nil, "btnNope")
	assert.Error(t, err)
}

func TestSession_SubmitFormGet(t *testing.T) {
	s, mock := newMockSession(t, Options{Authority: "MockA"})
	ctx := context.Background()

	mock.RegisterResponder(http.MethodGet, "http://council.example/weekly",
		httpmock.NewStringResponder(200, `<form name="wk" action="list.asp"><input name="week" value="1"></form>`))
	mock.RegisterResponder(http.MethodGet, "http://council.example/list.asp",
		func(req *http.Request) (*http.Response, error) {
			return httpmock.NewStringResponse(200, "week="+req.URL.Query().Get("week")), nil
		})

	_, err := s.Open(ctx, "http://council.example/weekly")
	require.NoError(t, err)
	page, err := s.SubmitForm(ctx, `form[name="wk"]`, map[string]string{"week": "37"}, "")
	require.NoError(t, err)
	assert.Equal(t, "week=37", page.Text())
}

func TestSession_FollowLink(t *testing.T) {
	s, mock := newMockSession(t, Options{Authority: "MockA"})
	ctx := context.Background()

	mock.RegisterResponder(http.MethodGet, "http://council.example/search",
		httpmock.NewStringResponder(200, searchForm))
	mock.RegisterResponder(http.MethodGet, "http://council.example/results?page=2",
		httpmock.NewStringResponder(200, "page two"))
	mock.RegisterResponder(http.MethodGet, "http://council.example/help",
		httpmock.NewStringResponder(200, "help"))

	_, err := s.Open(ctx, "http://council.example/search")
	require.NoError(t, err)

	page, err := s.FollowLink(ctx, "Next >")
	require.NoError(t, err)
	assert.Equal(t, "page two", page.Text())

	_, err = s.Open(ctx, "http://council.example/search")
	require.NoError(t, err)
	page, err = s.FollowLink(ctx, "help")
	require.NoError(t, err)
	assert.Equal(t, "help", page.Text())

	_, err = s.FollowLink(ctx, "Previous")
	assert.Error(t, err)
}

func TestSession_HTTPErrorsAreTyped(t *testing.T) {
	s, mock := newMockSession(t, Options{Authority: "MockA", Retry: fastRetry(3)})
	mock.RegisterResponder(http.MethodGet, "http://council.example/missing",
		httpmock.NewStringResponder(404, "gone"))

	_, err := s.Open(context.Background(), "http://council.example/missing")
	require.Error(t, err)

	var coder retry.StatusCoder
	require.True(t, errors.As(err, &coder))
	assert.Equal(t, 404, coder.GetStatusCode())
	assert.Equal(t, 1, mock.GetTotalCallCount(), "404 must not be retried")
}

func TestSession_RetriesServerErrors(t *testing.T) {
	s, mock := newMockSession(t, Options{Authority: "MockA", Retry: fastRetry(3)})
	calls := 0
	mock.RegisterResponder(http.MethodGet, "http://council.example/flaky",
		func(*http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return httpmock.NewStringResponse(503, "busy"), nil
			}
			return httpmock.NewStringResponse(200, "ok"), nil
		})

	page, err := s.Open(context.Background(), "http://council.example/flaky")
	require.NoError(t, err)
	assert.Equal(t, "ok", page.Text())
	assert.Equal(t, 3, calls)
}

func TestSession_CacheServesRepeatGets(t *testing.T) {
	c := cache.NewPageCache(8, time.Minute)
	s, mock := newMockSession(t, Options{Authority: "MockA", Cache: c})
	mock.RegisterResponder(http.MethodGet, "http://council.example/app/1",
		httpmock.NewStringResponder(200, "detail"))

	ctx := context.Background()
	first, err := s.Open(ctx, "http://council.example/app/1")
	require.NoError(t, err)
	second, err := s.Open(ctx, "http://council.example/app/1")
	require.NoError(t, err)

	assert.False(t, first.FromCache)
	assert.True(t, second.FromCache)
	assert.Equal(t, 1, mock.GetTotalCallCount())

	_, err = s.OpenFresh(ctx, "http://council.example/app/1")
	require.NoError(t, err)
	assert.Equal(t, 2, mock.GetTotalCallCount())
}

func TestSession_CookiesPersistAcrossRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/disclaimer":
			http.SetCookie(w, &http.Cookie{Name: "accepted", Value: "yes", Path: "/"})
			fmt.Fprint(w, "ok")
		default:
			c, err := r.Cookie("accepted")
			if err != nil {
				http.Error(w, "disclaimer not accepted", http.StatusForbidden)
				return
			}
			fmt.Fprintf(w, "accepted=%s;token=", c.Value)
			if t, err := r.Cookie("token"); err == nil {
				fmt.Fprint(w, t.Value)
			}
		}
	}))
	defer srv.Close()

	s, err := New(Options{Authority: "MockA", Retry: fastRetry(1)})
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	_, err = s.Open(ctx, srv.URL+"/search")
	require.Error(t, err)

	_, err = s.Open(ctx, srv.URL+"/disclaimer")
	require.NoError(t, err)
	require.NoError(t, s.SetCookie(srv.URL, &http.Cookie{Name: "token", Value: "t1", Path: "/"}))

	page, err := s.OpenFresh(ctx, srv.URL+"/search")
	require.NoError(t, err)
	assert.Equal(t, "accepted=yes;token=t1", page.Text())
	assert.Len(t, s.Cookies(srv.URL), 2)
}

func TestSession_InsecureIsPerSession(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "secure")
	}))
	defer srv.Close()

	strict, err := New(Options{Authority: "Strict", Retry: fastRetry(1)})
	require.NoError(t, err)
	_, err = strict.Open(context.Background(), srv.URL)
	assert.Error(t, err, "self-signed certificate must be rejected by default")

	lax, err := New(Options{Authority: "Lax", Insecure: true, Retry: fastRetry(1)})
	require.NoError(t, err)
	page, err := lax.Open(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "secure", page.Text())
}

func TestPage_JSONAndCharset(t *testing.T) {
	p := &Page{URL: "http://x/api", ContentType: "application/json", Body: []byte(`{"id": 12345678901, "name":"a"}`)}
	assert.True(t, p.IsJSON())
	v, err := p.JSON()
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, "12345678901", fmt.Sprint(m["id"]))

	latin1 := &Page{URL: "http://x/", ContentType: "text/html; charset=iso-8859-1", Body: []byte("<p>Caf\xe9</p>")}
	doc, err := latin1.Doc()
	require.NoError(t, err)
	assert.Equal(t, "Café", strings.TrimSpace(doc.Find("p").Text()))
}
