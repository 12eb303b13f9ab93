// Package exprcache compiles and LRU-caches expr-lang programs used by
// the memtable backend for filter predicates and formula expressions
// (polars_code does not use it). A single compiled
// program is shared across every row of a compute call and across
// repeated runs, so compilation cost is paid once per distinct
// expression text.
package exprcache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Cache is a thread-safe LRU cache of compiled expr-lang programs.
type Cache struct {
	capacity int
	entries  map[string]*list.Element
	order    *list.List
	mu       sync.RWMutex
}

type entry struct {
	key     string
	program *vm.Program
}

// New creates a cache with the given capacity. A non-positive capacity
// defaults to 256.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 256
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *Cache) get(key string) (*vm.Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*entry).program, true
	}
	return nil, false
}

func (c *Cache) put(key string, program *vm.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		el.Value.(*entry).program = program
		return
	}
	el := c.order.PushFront(&entry{key: key, program: program})
	c.entries[key] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*entry).key)
		}
	}
}

// Len reports the number of cached programs.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order = list.New()
}

// compileKey distinguishes cache entries by expression text plus the
// shape of options passed to expr.Compile, since the same text can be
// compiled as a bool-predicate or a value-producing expression.
func compileKey(text string, asBool bool) string {
	if asBool {
		return "bool:" + text
	}
	return "val:" + text
}

// CompilePredicate compiles text as a boolean-returning expression
// against env's fields, using the cache.
func (c *Cache) CompilePredicate(text string, env any) (*vm.Program, error) {
	key := compileKey(text, true)
	if p, ok := c.get(key); ok {
		return p, nil
	}
	p, err := expr.Compile(text, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile predicate %q: %w", text, err)
	}
	c.put(key, p)
	return p, nil
}

// CompileExpr compiles text as a value-producing expression against
// env's fields, using the cache.
func (c *Cache) CompileExpr(text string, env any) (*vm.Program, error) {
	key := compileKey(text, false)
	if p, ok := c.get(key); ok {
		return p, nil
	}
	p, err := expr.Compile(text, expr.Env(env))
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", text, err)
	}
	c.put(key, p)
	return p, nil
}

// EvalPredicate compiles (if needed) and runs text against row,
// returning its boolean result.
func (c *Cache) EvalPredicate(text string, row map[string]any) (bool, error) {
	program, err := c.CompilePredicate(text, row)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, row)
	if err != nil {
		return false, fmt.Errorf("evaluate predicate %q: %w", text, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("predicate %q must return bool, got %T", text, out)
	}
	return b, nil
}

// EvalExpr compiles (if needed) and runs text against row, returning its
// result value.
func (c *Cache) EvalExpr(text string, row map[string]any) (any, error) {
	program, err := c.CompileExpr(text, row)
	if err != nil {
		return nil, err
	}
	out, err := expr.Run(program, row)
	if err != nil {
		return nil, fmt.Errorf("evaluate expression %q: %w", text, err)
	}
	return out, nil
}
