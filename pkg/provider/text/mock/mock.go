// Package mock provides a test double for the text.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/resona-ai/resona/pkg/provider/text"
)

var _ text.Provider = (*Provider)(nil)

// Provider is a mock implementation of text.Provider.
type Provider struct {
	mu sync.Mutex

	// Response is returned by Generate.
	Response string

	// Err, if non-nil, is returned as the error from Generate.
	Err error

	// Requests records every Generate call in order.
	Requests []text.Request
}

// Generate records the call and returns Response, Err.
func (p *Provider) Generate(_ context.Context, req text.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return "", p.Err
	}
	return p.Response, nil
}
