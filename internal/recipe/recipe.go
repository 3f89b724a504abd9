// Package recipe evaluates sfx.lua build recipes.
//
// A recipe is a sandboxed Lua script that assigns a global "sfx" table:
//
//	sfx = {
//	  app      = "Invoices",
//	  tool     = platform.is_windows and "bin/rcc.exe" or "bin/rcc",
//	  project  = "robot",
//	  env      = platform.when(platform.is_linux, "/opt/rcc_home"),
//	  output   = "dist/invoices" .. platform.exe_suffix,
//	}
//
// Relative paths are resolved against the directory holding the recipe.
package recipe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"

	"github.com/ZebulonRouseFrantzich/sfx/internal/platform"
)

// MaxRecipeSize bounds the recipe file read into memory.
const MaxRecipeSize = 1 << 20

// Recipe is the build description read from a script. Empty fields were not
// set by the script.
type Recipe struct {
	App      string
	Tool     string
	Project  string
	Env      string
	Output   string
	Launcher string
}

// ParseError is a recipe error with a friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Raw Lua or validation detail
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// Parser evaluates recipes with a platform table from detector.
type Parser struct {
	detector platform.Detector
}

// NewParser returns a parser. A nil detector leaves "platform" undefined.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector}
}

// ParseFile reads and evaluates the recipe at path.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Recipe, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat recipe: %w", err)
	}
	if info.Size() > MaxRecipeSize {
		return nil, &ParseError{
			Message: "recipe too large",
			Detail:  fmt.Sprintf("%s is %d bytes, limit is %d", path, info.Size(), MaxRecipeSize),
		}
	}

	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recipe: %w", err)
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolve recipe dir: %w", err)
	}
	return p.ParseString(ctx, string(code), dir)
}

// ParseString evaluates code, resolving relative paths against baseDir.
func (p *Parser) ParseString(ctx context.Context, code, baseDir string) (*Recipe, error) {
	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	if p.detector != nil {
		info, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		platform.InjectPlatformTable(L, info)
	}

	if err := L.DoString(code); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("context cancelled: %w", ctxErr)
		}
		return nil, &ParseError{
			Message: "Lua error",
			Detail:  err.Error(),
		}
	}

	r, err := extractRecipe(L)
	if err != nil {
		return nil, err
	}
	r.resolve(baseDir)
	return r, nil
}

// extractRecipe reads the global "sfx" table.
func extractRecipe(L *lua.LState) (*Recipe, error) {
	v := L.GetGlobal("sfx")
	table, ok := v.(*lua.LTable)
	if !ok {
		return nil, &ParseError{
			Message: "missing or invalid 'sfx' table",
			Detail:  fmt.Sprintf("expected table, got %s", v.Type()),
		}
	}

	r := &Recipe{}
	fields := []struct {
		key string
		dst *string
	}{
		{"app", &r.App},
		{"tool", &r.Tool},
		{"project", &r.Project},
		{"env", &r.Env},
		{"output", &r.Output},
		{"launcher", &r.Launcher},
	}
	for _, f := range fields {
		val := table.RawGetString(f.key)
		switch val.Type() {
		case lua.LTNil:
		case lua.LTString:
			*f.dst = val.String()
		default:
			return nil, &ParseError{
				Message: "invalid recipe field",
				Detail:  fmt.Sprintf("sfx.%s must be a string, got %s", f.key, val.Type()),
			}
		}
	}
	return r, nil
}

func (r *Recipe) resolve(baseDir string) {
	for _, p := range []*string{&r.Tool, &r.Project, &r.Env, &r.Output, &r.Launcher} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(baseDir, filepath.FromSlash(*p))
		}
	}
}
