package asm

import (
	"strconv"

	"github.com/patrickmn/go-cache"
)

// Cache memoises assembled blocks by base address and source text.
type Cache struct {
	a *Assembler
	c *cache.Cache
}

// NewCache wraps a. Failed assemblies are not cached.
func NewCache(a *Assembler) *Cache {
	return &Cache{a: a, c: cache.New(cache.NoExpiration, 0)}
}

// Assemble is like Assembler.Assemble. The returned slice is owned by the
// caller.
func (c *Cache) Assemble(src string) ([]byte, error) {
	return c.AssembleAt(src, c.a.Base)
}

// AssembleAt is like Assembler.AssembleAt.
func (c *Cache) AssembleAt(src string, base uint32) ([]byte, error) {
	key := strconv.FormatUint(uint64(base), 16) + "\x00" + src
	if v, ok := c.c.Get(key); ok {
		return append([]byte(nil), v.([]byte)...), nil
	}
	buf, err := c.a.AssembleAt(src, base)
	if err != nil {
		return nil, err
	}
	c.c.Set(key, append([]byte(nil), buf...), cache.NoExpiration)
	return buf, nil
}

// NOP is like Assembler.NOP.
func (c *Cache) NOP(n int) ([]byte, error) {
	return c.a.NOP(n)
}

// Len returns the number of cached blocks.
func (c *Cache) Len() int {
	return c.c.ItemCount()
}
