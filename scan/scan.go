package scan

import (
	"fmt"
	"go/types"
	"reflect"
	"strconv"
	"strings"

	"golang.org/x/tools/go/packages"

	"github.com/chazu/mirror/accessor"
)

// Package loads a Go package by import path and returns its descriptor
// manifest. The includeFilter, if non-nil, restricts which exported
// names are included.
func Package(importPath string, includeFilter map[string]bool) (*PackageManifest, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedTypes,
	}

	pkgs, err := packages.Load(cfg, importPath)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", importPath, err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages found for %s", importPath)
	}
	if len(pkgs[0].Errors) > 0 {
		return nil, fmt.Errorf("package errors: %v", pkgs[0].Errors)
	}

	pkg := pkgs[0]
	if pkg.Types == nil {
		return nil, fmt.Errorf("type information not available for %s", importPath)
	}

	man := &PackageManifest{
		ImportPath: importPath,
		Name:       pkg.Name,
	}

	scope := pkg.Types.Scope()

	for _, name := range scope.Names() {
		if includeFilter != nil && !includeFilter[name] {
			continue
		}

		obj := scope.Lookup(name)
		if !obj.Exported() {
			continue
		}

		switch o := obj.(type) {
		case *types.Func:
			man.Funcs = append(man.Funcs, extractFunc(o.Name(), o.Type().(*types.Signature)))

		case *types.TypeName:
			ti := extractType(o, pkg.Types)
			if ti != nil {
				man.Types = append(man.Types, *ti)
			}

		case *types.Var:
			man.Vars = append(man.Vars, VarInfo{
				Name:  o.Name(),
				Type:  types.TypeString(o.Type(), qualifier(pkg.Types)),
				Width: widthOf(o.Type()).String(),
			})
		}
	}

	return man, nil
}

func extractFunc(name string, sig *types.Signature) FuncInfo {
	fi := FuncInfo{
		Name:     name,
		Variadic: sig.Variadic(),
	}

	params := sig.Params()
	for i := 0; i < params.Len(); i++ {
		fi.Params = append(fi.Params, widthOf(params.At(i).Type()).String())
	}
	results := sig.Results()
	for i := 0; i < results.Len(); i++ {
		fi.Results = append(fi.Results, widthOf(results.At(i).Type()).String())
	}
	return fi
}

func extractType(tn *types.TypeName, pkg *types.Package) *TypeInfo {
	named, ok := tn.Type().(*types.Named)
	if !ok {
		return nil
	}

	ti := &TypeInfo{Name: tn.Name()}

	if st, ok := named.Underlying().(*types.Struct); ok {
		ti.Struct = true
		for i := 0; i < st.NumFields(); i++ {
			f := st.Field(i)
			if !f.Exported() || f.Anonymous() {
				continue
			}
			ti.Fields = append(ti.Fields, FieldInfo{
				Name:     f.Name(),
				Type:     types.TypeString(f.Type(), qualifier(pkg)),
				Width:    widthOf(f.Type()).String(),
				ReadOnly: tagReadOnly(st.Tag(i)),
			})
		}
	}

	// Collect pointer-receiver methods directly defined on this type
	// (not promoted from embedded fields).
	ptrType := types.NewPointer(named)
	mset := types.NewMethodSet(ptrType)
	for i := 0; i < mset.Len(); i++ {
		sel := mset.At(i)
		fn, ok := sel.Obj().(*types.Func)
		if !ok || !fn.Exported() {
			continue
		}
		if sel.Index() != nil && len(sel.Index()) > 1 {
			continue
		}
		ti.Methods = append(ti.Methods, extractFunc(fn.Name(), fn.Type().(*types.Signature)))
	}

	return ti
}

// widthOf maps a Go type to its accessor width, matching the runtime
// classification: named types take the width of their underlying
// basic kind, everything non-primitive is Ref.
func widthOf(t types.Type) accessor.TypeCode {
	b, ok := t.Underlying().(*types.Basic)
	if !ok {
		return accessor.Ref
	}
	switch b.Kind() {
	case types.Bool:
		return accessor.Bool
	case types.Int8:
		return accessor.Int8
	case types.Int16:
		return accessor.Int16
	case types.Uint16:
		return accessor.Char
	case types.Int32:
		return accessor.Int32
	case types.Int64:
		return accessor.Int64
	case types.Int:
		if strconv.IntSize == 32 {
			return accessor.Int32
		}
		return accessor.Int64
	case types.Float32:
		return accessor.Float32
	case types.Float64:
		return accessor.Float64
	default:
		return accessor.Ref
	}
}

func tagReadOnly(tag string) bool {
	val, ok := reflect.StructTag(tag).Lookup("mirror")
	if !ok {
		return false
	}
	for _, part := range strings.Split(val, ",") {
		if strings.TrimSpace(part) == "readonly" {
			return true
		}
	}
	return false
}

func qualifier(pkg *types.Package) types.Qualifier {
	return func(other *types.Package) string {
		if other == pkg {
			return ""
		}
		return other.Name()
	}
}
