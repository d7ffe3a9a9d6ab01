package registry

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ecotrace-srl/rentri-client/interfaces"
)

// Services are the RENTRI service roots exposing a /status endpoint.
var Services = []string{
	"formulari",
	"vidimazione-formulari",
	"dati-registri",
	"codifiche",
	"ca-rentri",
	"anagrafiche",
}

// CheckReachability measures whether the registry base URL answers at
// all: a timed HEAD request, falling back to GET when HEAD is refused at
// the transport level. Unauthenticated and exempt from rate accounting.
func (c *Client) CheckReachability(ctx context.Context) interfaces.Reachability {
	start := time.Now()
	var notes []string

	code, err := c.timedProbe(ctx, http.MethodHead, c.baseURL)
	if err != nil {
		notes = append(notes, fmt.Sprintf("HEAD_FAIL:%v", err))
		code, err = c.timedProbe(ctx, http.MethodGet, c.baseURL)
	}
	latency := time.Since(start)

	if err != nil {
		notes = append(notes, fmt.Sprintf("HTTP_FAIL:%v", err))
		return interfaces.Reachability{
			Reachable: false,
			Latency:   latency,
			Note:      strings.Join(notes, ","),
		}
	}

	// Any of these codes proves a live endpoint behind the base URL,
	// even when the root path itself is not a served resource.
	upCodes := map[int]bool{
		200: true, 301: true, 302: true,
		400: true, 401: true, 403: true, 404: true, 405: true,
	}

	reachable := upCodes[code]
	if reachable {
		notes = append(notes, "HTTP_OK")
	} else {
		notes = append(notes, fmt.Sprintf("HTTP_CODE:%d", code))
	}

	return interfaces.Reachability{
		Reachable: reachable,
		HTTPCode:  code,
		Latency:   latency,
		Note:      strings.Join(notes, ","),
	}
}

// ServiceStatuses probes the /status endpoint of every RENTRI service.
// The endpoints are unauthenticated and exempt from rate accounting;
// each probe is individually timed and bounded by StatusTimeout.
func (c *Client) ServiceStatuses(ctx context.Context) map[string]interfaces.ServiceStatus {
	out := make(map[string]interfaces.ServiceStatus, len(Services))
	for _, name := range Services {
		out[name] = c.statusProbe(ctx, fmt.Sprintf("%s/%s/v1.0/status", c.baseURL, name))
	}
	return out
}

func (c *Client) statusProbe(ctx context.Context, url string) interfaces.ServiceStatus {
	start := time.Now()
	code, err := c.timedProbe(ctx, http.MethodGet, url)
	latency := time.Since(start)

	if err != nil {
		return interfaces.ServiceStatus{Latency: latency, Err: err.Error()}
	}
	return interfaces.ServiceStatus{
		Code:    code,
		Latency: latency,
		OK:      code >= 200 && code < 300,
	}
}

func (c *Client) timedProbe(ctx context.Context, method, url string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.statusTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
