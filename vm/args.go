package vm

import "fmt"

// ArgType says how a call instruction finds its arguments on the stack.
type ArgType byte

const (
	ArgsNone ArgType = iota
	// N positional values.
	ArgsFromStack
	// N/2 key/value pairs; a null key is positional, a text key is named.
	ArgsFromStackKeyed
	// A single list; associative entries bind by name.
	ArgsFromArgumentList
	// The current frame's own arguments, passed through unchanged.
	ArgsFromProcArguments
	argTypeCount
)

var argTypeNames = [...]string{
	ArgsNone:              "None",
	ArgsFromStack:         "FromStack",
	ArgsFromStackKeyed:    "FromStackKeyed",
	ArgsFromArgumentList:  "FromArgumentList",
	ArgsFromProcArguments: "FromProcArguments",
}

func (a ArgType) String() string {
	if a < argTypeCount {
		return argTypeNames[a]
	}
	return fmt.Sprintf("ArgType(%d)", byte(a))
}

func (a ArgType) Valid() bool {
	return a < argTypeCount
}

func ArgTypeByName(name string) (ArgType, bool) {
	for i, n := range argTypeNames {
		if n == name {
			return ArgType(i), true
		}
	}
	return 0, false
}
