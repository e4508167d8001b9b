package host

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineComment  = regexp.MustCompile(`//[^\n]*`)
	kernelDecl   = regexp.MustCompile(`(?:__)?kernel\s+void\s+([A-Za-z_]\w*)\s*\(([^)]*)\)`)
)

const sourceName = "<kernel source>"

// compile checks OpenCL C source and links every __kernel entry point to a
// native implementation. It returns the linked entries, or a non-empty build
// log when the program is invalid.
func compile(source string, natives map[string]NativeKernel) (map[string]NativeKernel, string) {
	var diags []string
	errorf := func(offset int, format string, args ...any) {
		line, col := position(source, offset)
		diags = append(diags, fmt.Sprintf("%s:%d:%d: error: %s", sourceName, line, col, fmt.Sprintf(format, args...)))
	}

	code := stripComments(source)
	if strings.TrimSpace(code) == "" {
		errorf(0, "program source is empty")
		return nil, strings.Join(diags, "\n")
	}

	checkBraces(code, errorf)

	matches := kernelDecl.FindAllStringSubmatchIndex(code, -1)
	if len(matches) == 0 {
		errorf(0, "no __kernel functions found in program")
	}

	entries := make(map[string]NativeKernel, len(matches))
	for _, m := range matches {
		name := code[m[2]:m[3]]
		params := splitParams(code[m[4]:m[5]])

		if _, dup := entries[name]; dup {
			errorf(m[2], "redefinition of '%s'", name)
			continue
		}
		native, ok := natives[name]
		if !ok {
			errorf(m[2], "kernel '%s' has no native implementation on this device", name)
			continue
		}
		if len(params) != len(native.Params) {
			errorf(m[4], "kernel '%s' declares %d parameters, native implementation takes %d", name, len(params), len(native.Params))
			continue
		}
		mismatch := false
		for i, p := range params {
			if kind, ok := paramKind(p); !ok || kind != native.Params[i] {
				errorf(m[4], "parameter %d of '%s' is '%s', expected %s", i+1, name, p, native.Params[i])
				mismatch = true
			}
		}
		if mismatch {
			continue
		}
		entries[name] = native
	}

	if len(diags) > 0 {
		return nil, strings.Join(diags, "\n")
	}
	return entries, ""
}

// stripComments blanks comments while keeping offsets and line numbers.
func stripComments(src string) string {
	blank := func(s string) string {
		return strings.Map(func(r rune) rune {
			if r == '\n' {
				return r
			}
			return ' '
		}, s)
	}
	src = blockComment.ReplaceAllStringFunc(src, blank)
	return lineComment.ReplaceAllStringFunc(src, blank)
}

func checkBraces(code string, errorf func(int, string, ...any)) {
	var open []int
	for i, r := range code {
		switch r {
		case '{':
			open = append(open, i)
		case '}':
			if len(open) == 0 {
				errorf(i, "extraneous closing brace ('}')")
				continue
			}
			open = open[:len(open)-1]
		}
	}
	for _, i := range open {
		errorf(i, "expected '}' to match this '{'")
	}
}

func splitParams(list string) []string {
	list = strings.TrimSpace(list)
	if list == "" || list == "void" {
		return nil
	}
	parts := strings.Split(list, ",")
	for i, p := range parts {
		parts[i] = strings.Join(strings.Fields(p), " ")
	}
	return parts
}

func paramKind(decl string) (ArgKind, bool) {
	fields := strings.Fields(decl)
	has := func(tok ...string) bool {
		for _, f := range fields {
			for _, t := range tok {
				if f == t {
					return true
				}
			}
		}
		return false
	}
	switch {
	case has("image2d_t"):
		if has("__write_only", "write_only") {
			return ArgWriteImage, true
		}
		// Images default to read_only.
		return ArgReadImage, !has("__read_write", "read_write")
	case has("sampler_t"):
		return ArgSampler, true
	case has("int"):
		return ArgInt32, true
	}
	return 0, false
}

func position(src string, offset int) (line, col int) {
	if offset > len(src) {
		offset = len(src)
	}
	before := src[:offset]
	line = strings.Count(before, "\n") + 1
	col = offset - strings.LastIndex(before, "\n")
	return line, col
}
