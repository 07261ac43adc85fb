// Package pool implements the process-wide constant pool and function
// table. Both tables are append-only — a pool index, once
// handed out, names the same string or the same function template for the
// life of the process.
package pool

import "sync"

// Template is a function template: a lowered, not-yet-closed function body.
// The JIT driver fills in Entry once the backend has resolved the
// template's compiled native entry point; closing a template over an
// environment (createFunction) copies these fields into a runtime function
// record (see internal/value).
type Template struct {
	Index  int
	Params []string
	// Body is an *ir.Function, held as interface{} so that this package
	// imports nothing from the compiler packages. Callers type-assert to
	// *ir.Function.
	Body interface{}
	// Entry is the resolved native entry point, set once by the JIT driver.
	// nil until compiled.
	Entry interface{}
	// Bitcode is the opaque, debug-only handle; set by the JIT driver
	// alongside Entry to the lowered *ir.Function, and left nil unless the
	// driver retains modules.
	Bitcode interface{}
	// Record is the unclosed *value.Function template record built around
	// Entry, created once per template and alive for the rest of the
	// process. Held as interface{} for the same reason as Body.
	Record interface{}
}

// Pool is the process-wide intern table plus function table.
// A single Pool is created per running Rift instance; tests construct
// their own instances for isolation.
type Pool struct {
	mu        sync.Mutex
	strings   []string
	byString  map[string]int
	templates []*Template
}

func New() *Pool {
	return &Pool{byString: make(map[string]int)}
}

// Intern returns the stable pool index for s, appending a new entry only if
// s has not been interned before.
func (p *Pool) Intern(s string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx, ok := p.byString[s]; ok {
		return idx
	}
	idx := len(p.strings)
	p.strings = append(p.strings, s)
	p.byString[s] = idx
	return idx
}

// String returns the interned string at idx.
func (p *Pool) String(idx int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.strings[idx]
}

// NewTemplate appends a fresh, unbound function template and returns its
// stable pool index.
func (p *Pool) NewTemplate(params []string) *Template {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := &Template{Index: len(p.templates), Params: params}
	p.templates = append(p.templates, t)
	return t
}

// Template returns the template record at idx.
func (p *Pool) Template(idx int) *Template {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.templates[idx]
}

// NumTemplates reports how many function templates have been registered.
func (p *Pool) NumTemplates() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.templates)
}
