package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlatform is a minimal alarm platform. Tokens are "tok-<n>" where n is
// the sign-in count; only the latest token is accepted.
type fakePlatform struct {
	t       *testing.T
	signins atomic.Int32
	failing atomic.Bool

	mu        sync.Mutex
	lastQuery url.Values
	rejectAll bool
}

func (f *fakePlatform) current() string {
	return "tok-" + string(rune('0'+f.signins.Load()))
}

func (f *fakePlatform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case signinPath:
		if f.failing.Load() || r.URL.Query().Get("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"bad credentials"}`))
			return
		}
		f.signins.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"token": f.current()})
	case alarmsPath, selfPath:
		f.mu.Lock()
		f.lastQuery = r.URL.Query()
		reject := f.rejectAll
		f.mu.Unlock()
		if reject || r.Header.Get("Authorization") != "Bearer "+f.current() {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"expired"}`))
			return
		}
		if r.URL.Path == selfPath {
			w.Write([]byte(`{"username":"s_mhamdia_az4","id":"c04533bd"}`))
			return
		}
		w.Write([]byte(`[{"id":"a1"},{"id":"a2"}]`))
	default:
		f.t.Errorf("unexpected path %s", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, h http.Handler, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts.BaseURL = srv.URL + "/"
	c := New(opts)
	t.Cleanup(c.Close)
	return c
}

func TestAuthenticate(t *testing.T) {
	fake := &fakePlatform{t: t}
	c := newTestClient(t, fake, Options{})

	token, err := c.Authenticate(context.Background(), "user", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, "tok-1", c.Token())

	_, err = c.Authenticate(context.Background(), "user", "wrong")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, "tok-1", c.Token())
}

func TestCallsWithoutTokenFail(t *testing.T) {
	c := newTestClient(t, &fakePlatform{t: t}, Options{})

	_, err := c.Alarms(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoToken)
	_, err = c.Self(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestAlarmsForwardsQueryAndToken(t *testing.T) {
	fake := &fakePlatform{t: t}
	c := newTestClient(t, fake, Options{})
	_, err := c.Authenticate(context.Background(), "user", "secret")
	require.NoError(t, err)

	q := url.Values{}
	q.Set("Page", "2")
	q.Set("PageSize", "50")
	q.Set("search", "tunis")
	body, err := c.Alarms(context.Background(), q)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a1"},{"id":"a2"}]`, string(body))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, "2", fake.lastQuery.Get("Page"))
	assert.Equal(t, "50", fake.lastQuery.Get("PageSize"))
	assert.Equal(t, "tunis", fake.lastQuery.Get("search"))
}

func TestAlarmsRejectedToken(t *testing.T) {
	fake := &fakePlatform{t: t, rejectAll: true}
	c := newTestClient(t, fake, Options{})
	_, err := c.Authenticate(context.Background(), "user", "secret")
	require.NoError(t, err)

	_, err = c.Alarms(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.JSONEq(t, `{"message":"expired"}`, string(se.Body))
}

func TestSelfReauthenticatesOnce(t *testing.T) {
	fake := &fakePlatform{t: t}
	c := newTestClient(t, fake, Options{})
	_, err := c.Authenticate(context.Background(), "user", "secret")
	require.NoError(t, err)

	// Another sign-in elsewhere invalidates the stored token.
	fake.signins.Add(1)

	name, err := c.Self(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s_mhamdia_az4", name)
	assert.EqualValues(t, 3, fake.signins.Load())
	assert.Equal(t, "tok-3", c.Token())
}

func TestSelfGivesUpAfterOneRetry(t *testing.T) {
	fake := &fakePlatform{t: t, rejectAll: true}
	c := newTestClient(t, fake, Options{})
	_, err := c.Authenticate(context.Background(), "user", "secret")
	require.NoError(t, err)

	_, err = c.Self(context.Background())
	assert.True(t, IsUnauthorized(err))
	assert.EqualValues(t, 2, fake.signins.Load())
}

func TestTokenRefresh(t *testing.T) {
	fake := &fakePlatform{t: t}
	c := newTestClient(t, fake, Options{
		RefreshInterval: 20 * time.Millisecond,
		RetryInterval:   10 * time.Millisecond,
	})
	_, err := c.Authenticate(context.Background(), "user", "secret")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return fake.signins.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	// Failed refreshes keep the old token and keep retrying.
	fake.failing.Store(true)
	token := c.Token()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, token, c.Token())

	fake.failing.Store(false)
	require.Eventually(t, func() bool { return c.Token() != token }, 2*time.Second, 5*time.Millisecond)

	c.Close()
	stopped := fake.signins.Load()
	time.Sleep(60 * time.Millisecond)
	assert.LessOrEqual(t, fake.signins.Load(), stopped+1)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"token":"ok"}`))
	})
	c := newTestClient(t, h, Options{RetryMax: 3})

	token, err := c.Authenticate(context.Background(), "user", "secret")
	require.NoError(t, err)
	assert.Equal(t, "ok", token)
	assert.EqualValues(t, 3, calls.Load())
}

func TestServerErrorAfterRetries(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("down"))
	})
	c := newTestClient(t, h, Options{RetryMax: 1})

	_, err := c.Authenticate(context.Background(), "user", "secret")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, "down", string(se.Body))
}
