package rsyncopts

import (
	"fmt"
	"strconv"
	"strings"
)

// poptArgType mirrors the small subset of popt(3)'s POPT_ARG_* argument
// kinds this package's option tables actually use.
type poptArgType int

const (
	POPT_ARG_NONE poptArgType = iota
	POPT_ARG_STRING
	POPT_ARG_INT
	POPT_ARG_VAL
	POPT_BIT_SET
)

// poptOption is one entry of an option table: long name (without leading
// "--"), an optional single-character short name, its argument kind, an
// optional pointer to store directly into (*int or *string, matching
// argInfo), and a val either returned to the caller as a special-case
// opcode (when non-zero, or when arg is nil) or otherwise unused.
type poptOption struct {
	longName  string
	shortName string
	argInfo   poptArgType
	arg       interface{}
	val       int
}

// PoptError reports a command-line parsing failure, with enough detail for
// callers to special-case "unknown --gokr.* flag" the way internal/maincmd
// does.
type PoptError struct {
	Errno      int
	Option     string
	DaemonMode bool
}

func (e *PoptError) Error() string {
	switch e.Errno {
	case POPT_ERROR_NOARG:
		return fmt.Sprintf("option %q requires an argument", e.Option)
	case POPT_ERROR_BADOPT:
		return fmt.Sprintf("unknown option %q", e.Option)
	default:
		return fmt.Sprintf("invalid option %q", e.Option)
	}
}

const (
	POPT_ERROR_BADOPT = -10
	POPT_ERROR_NOARG  = -11
)

// Context holds the parsing state for one table's worth of arguments,
// mirroring popt's poptContext handle.
type Context struct {
	Options *Options

	table []poptOption
	args  []string

	// RemainingArgs holds the non-option arguments (source/destination
	// paths) once poptGetNextOpt first encounters one.
	RemainingArgs []string

	pos    int
	optArg string
	done   bool
}

// poptGetOptArg returns the string value consumed by the most recently
// returned option, for table entries with arg == nil (the caller is
// expected to parse/store it itself, e.g. OPT_INFO/OPT_DEBUG).
func (pc *Context) poptGetOptArg() string {
	return pc.optArg
}

func (pc *Context) findLong(name string) (*poptOption, bool) {
	for i := range pc.table {
		if pc.table[i].longName == name {
			return &pc.table[i], true
		}
	}
	return nil, false
}

func (pc *Context) findShort(name string) (*poptOption, bool) {
	for i := range pc.table {
		if pc.table[i].shortName == name {
			return &pc.table[i], true
		}
	}
	return nil, false
}

// poptGetNextOpt returns the next special-case opcode (an option's val, or
// the rune of a short option declared with a nil arg), -1 once every
// option has been consumed (with RemainingArgs populated), or a *PoptError
// on a malformed/unknown option (rsync/options.c:parse_arguments's driving
// loop via popt's poptGetNextOpt).
func (pc *Context) poptGetNextOpt() (int, error) {
	pc.optArg = ""

	for pc.pos < len(pc.args) {
		arg := pc.args[pc.pos]

		if arg == "--" {
			pc.pos++
			pc.RemainingArgs = append(pc.RemainingArgs, pc.args[pc.pos:]...)
			pc.pos = len(pc.args)
			return -1, nil
		}

		if !strings.HasPrefix(arg, "-") || arg == "-" {
			pc.RemainingArgs = append(pc.RemainingArgs, pc.args[pc.pos:]...)
			pc.pos = len(pc.args)
			return -1, nil
		}

		if strings.HasPrefix(arg, "--") {
			pc.pos++
			return pc.handleLong(arg[2:])
		}

		// Short option cluster, e.g. "-av" or "-essh".
		cluster := arg[1:]
		pc.pos++
		opt, remainder, err := pc.handleShortCluster(cluster)
		if err != nil {
			return 0, err
		}
		if opt != -2 { // -2 means "fully consumed, keep scanning"
			_ = remainder
			return opt, nil
		}
	}

	return -1, nil
}

func (pc *Context) handleLong(rest string) (int, error) {
	name := rest
	var inlineVal string
	hasInline := false
	if idx := strings.IndexByte(rest, '='); idx > -1 {
		name = rest[:idx]
		inlineVal = rest[idx+1:]
		hasInline = true
	}

	opt, ok := pc.findLong(name)
	if !ok {
		return 0, &PoptError{Errno: POPT_ERROR_BADOPT, Option: "--" + name}
	}

	return pc.apply(opt, "--"+name, inlineVal, hasInline)
}

// handleShortCluster processes one "-xyz"-style cluster. It returns
// (-2, "", nil) when every flag in the cluster was a direct-store option
// and scanning should continue with the next argv token; otherwise it
// returns the first special-case opcode encountered.
func (pc *Context) handleShortCluster(cluster string) (int, string, error) {
	for i := 0; i < len(cluster); i++ {
		name := string(cluster[i])
		opt, ok := pc.findShort(name)
		if !ok {
			return 0, "", &PoptError{Errno: POPT_ERROR_BADOPT, Option: "-" + name}
		}

		if opt.argInfo == POPT_ARG_STRING || opt.argInfo == POPT_ARG_INT {
			rest := cluster[i+1:]
			if rest != "" {
				code, err := pc.apply(opt, "-"+name, rest, true)
				return code, "", err
			}
			code, err := pc.apply(opt, "-"+name, "", false)
			return code, "", err
		}

		code, err := pc.apply(opt, "-"+name, "", false)
		if err != nil {
			return 0, "", err
		}
		if code != noReturnCode {
			return code, "", nil
		}
	}
	return -2, "", nil
}

// noReturnCode is an internal sentinel distinct from any rune or OPT_*
// constant this package defines (all of which are non-negative).
const noReturnCode = -999

// apply stores/consumes one matched option's value and decides whether to
// return a special-case opcode to the caller.
func (pc *Context) apply(opt *poptOption, display, inlineVal string, hasInline bool) (int, error) {
	switch opt.argInfo {
	case POPT_ARG_NONE:
		if opt.arg != nil {
			if p, ok := opt.arg.(*int); ok {
				*p++
			}
		}
		if opt.arg == nil || opt.val != 0 {
			return opt.val, nil
		}
		return noReturnCode, nil

	case POPT_ARG_VAL:
		if p, ok := opt.arg.(*int); ok {
			*p = opt.val
		}
		return noReturnCode, nil

	case POPT_BIT_SET:
		if p, ok := opt.arg.(*int); ok {
			*p |= opt.val
		}
		return noReturnCode, nil

	case POPT_ARG_STRING, POPT_ARG_INT:
		val, err := pc.consumeValue(display, inlineVal, hasInline)
		if err != nil {
			return 0, err
		}
		pc.optArg = val
		if opt.argInfo == POPT_ARG_INT {
			if p, ok := opt.arg.(*int); ok {
				n, err := strconv.Atoi(val)
				if err != nil {
					return 0, &PoptError{Errno: POPT_ERROR_BADOPT, Option: display}
				}
				*p = n
			}
		} else if p, ok := opt.arg.(*string); ok {
			*p = val
		}
		if opt.arg == nil || opt.val != 0 {
			return opt.val, nil
		}
		return noReturnCode, nil
	}

	return noReturnCode, nil
}

func (pc *Context) consumeValue(display, inlineVal string, hasInline bool) (string, error) {
	if hasInline {
		return inlineVal, nil
	}
	if pc.pos >= len(pc.args) {
		return "", &PoptError{Errno: POPT_ERROR_NOARG, Option: display}
	}
	val := pc.args[pc.pos]
	pc.pos++
	return val, nil
}
