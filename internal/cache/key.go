package cache

import (
	"fmt"
	"strconv"
	"strings"
)

// Key identifies a cached result by operation name and argument values.
// Keys are comparable and built deterministically by NewKey.
type Key struct {
	Op   string
	Args string
}

// NewKey builds a key from an operation name and its arguments.
// Strings are quoted so that ("a,b") and ("a", "b") never collide.
func NewKey(op string, args ...any) Key {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = formatArg(arg)
	}
	return Key{Op: op, Args: strings.Join(parts, ",")}
}

// String renders the key as op(arg1,arg2,...).
func (k Key) String() string {
	return k.Op + "(" + k.Args + ")"
}

func formatArg(arg any) string {
	switch v := arg.(type) {
	case string:
		return strconv.Quote(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%#v", v)
	}
}
