package asm

import "sort"

// Symbol is one resolved label.
type Symbol struct {
	Name    string
	Address uint32
	File    string
	Global  bool
	Data    bool // defined in a data segment rather than text
}

// SymbolTable maps label names to addresses. Labels are file-local
// unless promoted by .globl; lookups consult the defining file's local
// scope first, then the global scope. Read-only after assembly completes.
type SymbolTable struct {
	global map[string]*Symbol
	local  map[string]map[string]*Symbol // file -> name -> symbol
}

// NewSymbolTable creates an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		global: make(map[string]*Symbol),
		local:  make(map[string]map[string]*Symbol),
	}
}

// Define records a label definition. Redefinition within the same scope
// is reported by the false return.
func (t *SymbolTable) Define(name string, address uint32, file string, data bool) bool {
	if _, exists := t.global[name]; exists {
		return false
	}
	scope, ok := t.local[file]
	if !ok {
		scope = make(map[string]*Symbol)
		t.local[file] = scope
	}
	if _, exists := scope[name]; exists {
		return false
	}
	scope[name] = &Symbol{Name: name, Address: address, File: file, Data: data}
	return true
}

// Promote moves a file-local symbol into the global scope. It returns
// false when the name collides with an existing global from another file.
func (t *SymbolTable) Promote(name, file string) bool {
	if existing, ok := t.global[name]; ok {
		return existing.File == file
	}
	scope, ok := t.local[file]
	if !ok {
		return true // .globl before definition; promoted when defined
	}
	sym, ok := scope[name]
	if !ok {
		return true
	}
	sym.Global = true
	t.global[name] = sym
	delete(scope, name)
	return true
}

// Lookup resolves name as seen from file: file-local first, then global.
func (t *SymbolTable) Lookup(name, file string) (*Symbol, bool) {
	if scope, ok := t.local[file]; ok {
		if sym, ok := scope[name]; ok {
			return sym, true
		}
	}
	sym, ok := t.global[name]
	return sym, ok
}

// LookupGlobal resolves name in the global scope only.
func (t *SymbolTable) LookupGlobal(name string) (*Symbol, bool) {
	sym, ok := t.global[name]
	return sym, ok
}

// All returns every symbol ordered by address, for display surfaces.
func (t *SymbolTable) All() []*Symbol {
	var out []*Symbol
	for _, s := range t.global {
		out = append(out, s)
	}
	for _, scope := range t.local {
		for _, s := range scope {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
