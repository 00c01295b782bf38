package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"stock-cache/src/helpers"
	"stock-cache/src/interfaces"
	"stock-cache/src/logger"
	"stock-cache/src/models"
)

type AsyncNetworkManager struct {
	Config       *models.MConfig
	ProxyManager interfaces.IProxyManager
	Logger       *logger.Logger

	mu     sync.Mutex
	client *http.Client
	// streamClient has no overall timeout; captures take minutes to download.
	streamClient *http.Client
}

// -----------------------------------------------------------------------------

func NewAsyncNetworkManager(cfg *models.MConfig, log *logger.Logger) *AsyncNetworkManager {
	var proxies []string
	if cfg.Network.Enabled {
		proxies = cfg.Network.Proxies
	}

	nm := &AsyncNetworkManager{
		Config:       cfg,
		ProxyManager: helpers.NewProxyManager(proxies, cfg.Network.UserAgent, log),
		Logger:       log,
	}
	nm.client = nm.createClient(time.Duration(cfg.Network.RequestTimeout) * time.Second)
	nm.streamClient = nm.createClient(0)
	return nm
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) createClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if nm.ProxyManager.HasProxies() {
		proxyStr, err := nm.ProxyManager.GetCurrentProxy()
		if err == nil && proxyStr != "" {
			proxyURL, err := url.Parse(proxyStr)
			if err == nil {
				transport.Proxy = http.ProxyURL(proxyURL)
			}
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) rotateProxy() {
	if !nm.ProxyManager.HasProxies() {
		return
	}

	nm.ProxyManager.RotateProxy()
	nm.mu.Lock()
	nm.client = nm.createClient(time.Duration(nm.Config.Network.RequestTimeout) * time.Second)
	nm.mu.Unlock()
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) currentClient() *http.Client {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	return nm.client
}

// -----------------------------------------------------------------------------

// Get performs a GET request with retries and proxy rotation.
func (nm *AsyncNetworkManager) Get(ctx context.Context, urlStr string, params map[string]string) ([]byte, error) {
	reqURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, helpers.NewNetworkError("invalid url", err)
	}

	q := reqURL.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	reqURL.RawQuery = q.Encode()
	finalURL := reqURL.String()

	attempt := 0
	body, err := helpers.RetryWithBackoff(ctx, nm.Logger, "GET "+reqURL.Path, nm.Config.Network.MaxRetries, time.Second, func() ([]byte, error) {
		if attempt > 0 {
			nm.rotateProxy()
		}
		attempt++
		return nm.getOnce(ctx, finalURL)
	})
	if err != nil {
		return nil, helpers.NewNetworkError(fmt.Sprintf("GET %s failed", reqURL.Path), err)
	}
	return body, nil
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) getOnce(ctx context.Context, finalURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", nm.ProxyManager.GetUserAgent())
	req.Header.Set("Accept", "application/json")

	resp, err := nm.currentClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// -----------------------------------------------------------------------------

// Stream opens the body of urlStr for a single forward-only read.
func (nm *AsyncNetworkManager) Stream(ctx context.Context, urlStr string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, 0, helpers.NewNetworkError("invalid url", err)
	}
	req.Header.Set("User-Agent", nm.ProxyManager.GetUserAgent())

	resp, err := nm.streamClient.Do(req)
	if err != nil {
		return nil, 0, helpers.NewNetworkError("stream request failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, helpers.NewNetworkError(fmt.Sprintf("stream bad status: %d", resp.StatusCode), nil)
	}

	return resp.Body, resp.ContentLength, nil
}
