package remote

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/roach88/morgisync/internal/model"
)

// Endpoints builds store addresses that are not request/response calls.
type Endpoints struct {
	Base string
}

// SafeFileURL is the address serving an archived file.
func (e Endpoints) SafeFileURL(path string) string {
	return e.Base + "/safe-file?path=" + url.QueryEscape(path)
}

// ProxyURL is the relay address for an original URL that failed to load.
func (e Endpoints) ProxyURL(original string) string {
	return e.Base + "/proxy/image?url=" + url.QueryEscape(original)
}

// Href turns a display locator into a loadable URL.
func (e Endpoints) Href(loc model.Locator) string {
	if loc.Kind == model.SourceArchived {
		return e.SafeFileURL(loc.Ref)
	}
	return loc.Ref
}

// LiveURL returns the websocket address for path on the same host.
func (e Endpoints) LiveURL(path string) (string, error) {
	u, err := url.Parse(e.Base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("server url %q: unsupported scheme", e.Base)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}
