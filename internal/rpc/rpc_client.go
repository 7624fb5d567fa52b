package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"tunnel-keeper/internal/logger"

	"github.com/cenkalti/backoff"
)

// httpClient HTTP客户端实现
type httpClient struct {
	config    *HTTPConfig
	client    *http.Client
	transport *http.Transport
	mu        sync.Mutex
}

/**
 * Create new HTTP client talking to the keeper server
 * @param {HTTPConfig} config - HTTP client configuration, nil for DefaultHTTPConfig()
 * @returns {HTTPClient} HTTP client interface
 * @description
 * - Every connection is dialed to config.Address over config.Network, the URL host is ignored
 * - Failed dials are retried with exponential backoff, requests that reached the server are not
 * @example
 * client := NewHTTPClient(nil)
 * defer client.Close()
 * resp, err := client.Get("/api/v1/tunnels", nil)
 */
func NewHTTPClient(config *HTTPConfig) HTTPClient {
	if config == nil {
		config = DefaultHTTPConfig()
	}

	c := &httpClient{config: config}
	dialer := &net.Dialer{Timeout: config.Timeout}
	c.transport = &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, config.Network, config.Address)
		},
	}
	c.client = &http.Client{
		Transport: c.transport,
		Timeout:   config.Timeout,
	}
	return c
}

func (c *httpClient) Get(path string, params map[string]interface{}) (*HTTPResponse, error) {
	return c.do(http.MethodGet, path, params, nil)
}

func (c *httpClient) Post(path string, data interface{}) (*HTTPResponse, error) {
	return c.do(http.MethodPost, path, nil, data)
}

func (c *httpClient) Delete(path string, params map[string]interface{}) (*HTTPResponse, error) {
	return c.do(http.MethodDelete, path, params, nil)
}

/**
 * Send one request
 * @param {string} method - HTTP method
 * @param {string} path - API endpoint path
 * @param {map[string]interface{}} params - Query parameters
 * @param {interface{}} data - JSON body, nil for none
 * @returns {(*HTTPResponse, error)} Response, non-2xx statuses are returned with Error filled
 * @throws
 * - URL construction and serialization errors
 * - Connection errors after all retries
 */
func (c *httpClient) do(method, path string, params map[string]interface{}, data interface{}) (*HTTPResponse, error) {
	url, err := buildURL(c.config.BaseURL, path, params)
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}
	body, err := serializeData(data)
	if err != nil {
		return nil, err
	}

	var httpResp *HTTPResponse
	var final error
	permanent := func(err error) error {
		final = err
		return backoff.Permanent(err)
	}
	operation := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader(body))
		if err != nil {
			return permanent(fmt.Errorf("failed to create request: %w", err))
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		logger.Debugf("Sending %s request to %s via %s:%s", method, url, c.config.Network, c.config.Address)

		resp, err := c.client.Do(req)
		if err != nil {
			if isDialError(err) {
				return err
			}
			return permanent(fmt.Errorf("request failed: %w", err))
		}
		httpResp, err = deserializeResponse(resp)
		if err != nil {
			return permanent(fmt.Errorf("failed to deserialize response: %w", err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	if err := backoff.Retry(operation, backoff.WithMaxRetries(b, c.config.Retries)); err != nil {
		if final != nil {
			return nil, final
		}
		return nil, fmt.Errorf("cannot connect to tunnel-keeper at %s:%s: %w", c.config.Network, c.config.Address, err)
	}
	return httpResp, nil
}

// isDialError 请求未送达服务端，可以安全重试
func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// Close 关闭客户端连接
func (c *httpClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.client.CloseIdleConnections()
	logger.Debugf("HTTP client connection closed")
	return nil
}
