// Package scan extracts descriptor manifests from Go packages. The
// manifest lists everything a registry could bind at runtime: exported
// functions, types with their pointer-receiver methods and fields, and
// package variables, each annotated with its accessor width code.
package scan

// PackageManifest is the in-memory inventory of a Go package's
// bindable API.
type PackageManifest struct {
	ImportPath string     `json:"import_path"`
	Name       string     `json:"name"` // short package name (e.g., "json")
	Funcs      []FuncInfo `json:"funcs,omitempty"`
	Types      []TypeInfo `json:"types,omitempty"`
	Vars       []VarInfo  `json:"vars,omitempty"`
}

// TypeInfo describes an exported named type.
type TypeInfo struct {
	Name    string      `json:"name"`
	Struct  bool        `json:"struct,omitempty"`
	Methods []FuncInfo  `json:"methods,omitempty"` // pointer-receiver methods
	Fields  []FieldInfo `json:"fields,omitempty"`
}

// FuncInfo describes an exported function or method. Params and
// Results carry accessor width codes, not Go type names.
type FuncInfo struct {
	Name     string   `json:"name"`
	Params   []string `json:"params,omitempty"`
	Results  []string `json:"results,omitempty"`
	Variadic bool     `json:"variadic,omitempty"` // not bindable as a descriptor
}

// FieldInfo describes an exported struct field.
type FieldInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`  // Go type string
	Width    string `json:"width"` // accessor width code
	ReadOnly bool   `json:"read_only,omitempty"`
}

// VarInfo describes an exported package variable, bindable as a
// static field.
type VarInfo struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Width string `json:"width"`
}
