package fetch

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"

	"github.com/TobiSchelling/newsrank/internal/logging"
)

// robotsCache holds one parsed robots.txt per scheme+host. A host whose
// robots.txt cannot be retrieved is treated as allowing everything.
type robotsCache struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration

	loads singleflight.Group

	mu    sync.Mutex
	hosts map[string]*robotstxt.Group
}

func newRobotsCache(client *http.Client, userAgent string, timeout time.Duration) *robotsCache {
	return &robotsCache{
		client:    client,
		userAgent: userAgent,
		timeout:   timeout,
		hosts:     make(map[string]*robotstxt.Group),
	}
}

func (c *robotsCache) allowed(ctx context.Context, u *url.URL) bool {
	key := u.Scheme + "://" + u.Host

	group, ok := c.cached(key)
	if !ok {
		// Workers hitting a new host together share one robots.txt request.
		v, _, _ := c.loads.Do(key, func() (any, error) {
			if g, ok := c.cached(key); ok {
				return g, nil
			}
			g := c.load(ctx, key)
			if ctx.Err() == nil {
				c.mu.Lock()
				c.hosts[key] = g
				c.mu.Unlock()
			}
			return g, nil
		})
		group = v.(*robotstxt.Group)
	}

	if group == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

func (c *robotsCache) cached(key string) (*robotstxt.Group, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.hosts[key]
	return g, ok
}

func (c *robotsCache) load(ctx context.Context, origin string) *robotstxt.Group {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		logging.Debug().Err(err).Str("origin", origin).Msg("robots.txt unavailable, allowing all")
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		logging.Debug().Err(err).Str("origin", origin).Msg("robots.txt unparsable, allowing all")
		return nil
	}
	return data.FindGroup(c.userAgent)
}
