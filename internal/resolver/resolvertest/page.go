// Package resolvertest provides a scripted browser page for resolver tests.
package resolvertest

import (
	"context"
	"sync"

	"NewYorkCrimes/internal/ports"
)

// Response is what the page renders after loading a target. An empty Final
// means the target did not redirect.
type Response struct {
	Final   string
	Text    string
	Link    string
	TextErr error
}

// Page serves scripted responses. Each Load of a target consumes the next
// response in its sequence; the last one repeats. Targets without a route
// never finish loading, like a transport failure.
type Page struct {
	mu       sync.Mutex
	routes   map[string][]Response
	loads    []string
	current  string
	text     string
	textErr  error
	link     string
	delegate ports.NavigationDelegate
}

var _ ports.Page = (*Page)(nil)

// NewPage builds a page from routes keyed by target URL.
func NewPage(routes map[string][]Response) *Page {
	copied := make(map[string][]Response, len(routes))
	for k, v := range routes {
		copied[k] = append([]Response(nil), v...)
	}
	return &Page{routes: copied}
}

// Load implements ports.Page.
func (p *Page) Load(_ context.Context, target string) {
	p.mu.Lock()
	p.loads = append(p.loads, target)
	seq, ok := p.routes[target]
	if !ok || len(seq) == 0 {
		p.mu.Unlock()
		return
	}
	resp := seq[0]
	if len(seq) > 1 {
		p.routes[target] = seq[1:]
	}
	delegate := p.delegate
	p.mu.Unlock()

	go func() {
		p.mu.Lock()
		p.current = target
		if resp.Final != "" {
			p.current = resp.Final
		}
		p.text = resp.Text
		p.textErr = resp.TextErr
		p.link = resp.Link
		p.mu.Unlock()
		if delegate != nil {
			delegate.NavigationFinished()
		}
	}()
}

// CurrentURL implements ports.Page.
func (p *Page) CurrentURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// InnerText implements ports.Page.
func (p *Page) InnerText(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.text, p.textErr
}

// FindLink implements ports.Page against the single scripted link.
func (p *Page) FindLink(_ context.Context, match func(string) bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.link != "" && match(p.link) {
		return p.link, nil
	}
	return "", nil
}

// SetDelegate implements ports.Page.
func (p *Page) SetDelegate(d ports.NavigationDelegate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delegate = d
}

// SetRendered replaces the current page without going through Load.
func (p *Page) SetRendered(current, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = current
	p.text = text
}

// Loads returns every target passed to Load, in order.
func (p *Page) Loads() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.loads...)
}

// Factory hands out pages built from the same routes.
type Factory struct {
	mu     sync.Mutex
	routes map[string][]Response
	pages  []*Page
}

var _ ports.PageFactory = (*Factory)(nil)

// NewFactory builds a page factory.
func NewFactory(routes map[string][]Response) *Factory {
	return &Factory{routes: routes}
}

// NewPage implements ports.PageFactory.
func (f *Factory) NewPage() ports.Page {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := NewPage(f.routes)
	f.pages = append(f.pages, p)
	return p
}

// Opened reports how many pages were handed out.
func (f *Factory) Opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pages)
}
