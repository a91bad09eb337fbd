package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"

	"github.com/Godsmith/hatch/pkg/ctxlog"
)

// DefaultBuildScript is the file the custom hook evaluates when no path is
// configured.
const DefaultBuildScript = "build_hook.star"

type hookCtx struct {
	ctx  context.Context
	root string
	path string
	data *BuildData
}

func getHookCtx(thread *starlark.Thread) *hookCtx {
	return thread.Local("hookCtx").(*hookCtx)
}

// runCustomHook evaluates a Starlark build script. The script contributes
// artifact patterns and force-include entries through builtins instead of
// returning values.
func runCustomHook(ctx context.Context, root, target, version string, options map[string]interface{}, data *BuildData) error {
	path := DefaultBuildScript
	if value, ok := options["path"]; ok {
		str, ok := value.(string)
		if !ok {
			return eris.New("option `path` for build hook `custom` must be a string")
		}
		if str == "" {
			return eris.New("option `path` for build hook `custom` must not be empty if defined")
		}

		path = str
	}

	scriptPath := path
	if !filepath.IsAbs(scriptPath) {
		scriptPath = filepath.Join(root, scriptPath)
	}

	script, err := os.ReadFile(scriptPath)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return eris.Errorf("build script does not exist: %s", path)
		}
		return eris.Wrapf(err, "failed to read build script %s", path)
	}

	builtins := starlark.StringDict{
		"OS":            starlark.String(runtime.GOOS),
		"ARCH":          starlark.String(runtime.GOARCH),
		"ROOT":          starlark.String(root),
		"TARGET":        starlark.String(target),
		"VERSION":       starlark.String(version),
		"getenv":        starlark.NewBuiltin("getenv", hookGetenv),
		"info":          starlark.NewBuiltin("info", hookInfo),
		"warn":          starlark.NewBuiltin("warn", hookWarn),
		"error":         starlark.NewBuiltin("error", hookError),
		"artifacts":     starlark.NewBuiltin("artifacts", hookArtifacts),
		"force_include": starlark.NewBuiltin("force_include", hookForceInclude),
	}

	thread := &starlark.Thread{
		Name: "build_hook",
		Print: func(thread *starlark.Thread, msg string) {
			ctxlog.From(ctx).Info().Str("thread", thread.Name).Msg(msg)
		},
	}
	thread.SetLocal("hookCtx", &hookCtx{
		ctx:  ctx,
		root: root,
		path: path,
		data: data,
	})

	_, err = starlark.ExecFile(thread, path, script, builtins)
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return eris.Errorf("failed to execute %s:\n%s", path, evalError.Backtrace())
		}
		return eris.Wrapf(err, "failed to execute %s", path)
	}

	return nil
}

func hookGetenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &key)
	if err != nil {
		return nil, err
	}

	return starlark.String(os.Getenv(key)), nil
}

func hookInfo(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return hookLog(thread, fn, args, kwargs, false)
}

func hookWarn(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return hookLog(thread, fn, args, kwargs, true)
}

func hookLog(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple, warn bool) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	hctx := getHookCtx(thread)
	pos := thread.CallFrame(1).Pos
	formatted := fmt.Sprintf("%s:%d:%d: %s", hctx.path, pos.Line, pos.Col, message)

	if warn {
		ctxlog.From(hctx.ctx).Warn().Msg(formatted)
	} else {
		ctxlog.From(hctx.ctx).Info().Msg(formatted)
	}

	return starlark.None, nil
}

func hookError(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	return nil, eris.New(message)
}

// hookArtifacts appends artifact patterns to the build data.
func hookArtifacts(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) == 0 {
		return nil, eris.New("expects at least one argument")
	}

	hctx := getHookCtx(thread)
	for idx, arg := range args {
		pattern, ok := arg.(starlark.String)
		if !ok {
			return nil, eris.Errorf("only accepts string arguments but argument %d was a %s", idx+1, arg.Type())
		}

		hctx.data.Artifacts = append(hctx.data.Artifacts, pattern.GoString())
	}

	return starlark.None, nil
}

// hookForceInclude records a source path to ship at the given relative
// distribution path.
func hookForceInclude(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var source string
	var relative string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &source, &relative)
	if err != nil {
		return nil, err
	}

	if source == "" || relative == "" {
		return nil, eris.New("source and destination cannot be empty strings")
	}

	getHookCtx(thread).data.ForceInclude[source] = relative
	return starlark.None, nil
}
