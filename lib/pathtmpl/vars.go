package pathtmpl

import (
	"path/filepath"
	"strings"
)

// Vars maps variable names to their values for one changed path.
type Vars map[string]string

// NewVars computes the builtin variables of an absolute path. Relative
// variants are relative to pwd.
func NewVars(path, pwd string) Vars {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	name, ext := SplitExt(base)
	rdir := relative(pwd, dir)

	return Vars{
		"path":     path,
		"rpath":    relative(pwd, path),
		"dir":      dir,
		"rdir":     rdir,
		"name":     name,
		"ext":      ext,
		"name.ext": base,
		"pwd":      pwd,
		"rname":    rdir + string(filepath.Separator) + base,
	}
}

// SplitExt splits a file name on its last dot. The extension never includes
// the dot. Dotfiles without a second dot have no extension.
func SplitExt(base string) (name, ext string) {
	i := strings.LastIndexByte(base, '.')
	if i <= 0 {
		return base, ""
	}
	return base[:i], base[i+1:]
}

func relative(base, target string) string {
	if base == "" {
		return target
	}
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return target
	}
	return rel
}

// With returns a copy of v overlaid with extra.
func (v Vars) With(extra map[string]string) Vars {
	res := make(Vars, len(v)+len(extra))
	for k, val := range v {
		res[k] = val
	}
	for k, val := range extra {
		res[k] = val
	}
	return res
}
