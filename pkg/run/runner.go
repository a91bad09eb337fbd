// Package run executes resolved environment scripts with an in-process
// POSIX shell interpreter.
package run

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/Godsmith/hatch/pkg/ctxlog"
	"github.com/Godsmith/hatch/pkg/envs"
)

// ActiveEnvVar is set to the environment name for every executed command.
const ActiveEnvVar = "HATCH_ENV_ACTIVE"

// MatrixEnvPrefix prefixes the env vars that expose matrix variable values.
const MatrixEnvPrefix = "HATCH_MATRIX_"

// Options control script execution.
type Options struct {
	// Dir is the working directory for the commands, usually the project
	// root.
	Dir string
	// DryRun only prints the commands without executing anything.
	DryRun bool
	// Overrides are extra env vars that win over the environment's own.
	Overrides map[string]string

	Stdout io.Writer
	Stderr io.Writer
}

// Script resolves the named script of the environment and runs it.
func Script(ctx context.Context, env *envs.Environment, name string, args []string, opts Options) error {
	commands, err := env.ResolveScript(name, args)
	if err != nil {
		return err
	}

	return Commands(ctx, env, commands, opts)
}

// Commands runs an already resolved command list in the environment.
func Commands(ctx context.Context, env *envs.Environment, commands []envs.Command, opts Options) error {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	runner, err := interp.New(
		interp.Dir(opts.Dir),
		interp.Env(environ(env, opts.Overrides)),
		interp.ExecHandlers(rerouteExec),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, opts.Stdout, opts.Stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return eris.Wrap(err, "failed to initialize runner")
	}

	parser := syntax.NewParser()
	printer := syntax.NewPrinter(syntax.Minify(true))
	strBuffer := strings.Builder{}

	for idx, command := range commands {
		if err = ctx.Err(); err != nil {
			return err
		}

		parsed, err := parser.Parse(strings.NewReader(command.Text), fmt.Sprintf("%s:%d", env.Name, idx))
		if err != nil {
			return eris.Wrapf(err, "failed to parse command %s", command.Text)
		}

		for _, stmt := range parsed.Stmts {
			strBuffer.Reset()
			printer.Print(&strBuffer, stmt)
			ctxlog.From(ctx).Info().
				Str("env", env.Name).
				Bool("command", true).
				Msg(strBuffer.String())

			if opts.DryRun {
				continue
			}

			err = runner.Run(ctx, stmt)
			if err != nil {
				if command.IgnoreErrors {
					ctxlog.From(ctx).Warn().
						Str("env", env.Name).
						Err(err).
						Msg("command failed, continuing")
					break
				}

				return err
			}

			if runner.Exited() {
				return nil
			}
		}
	}

	return nil
}

// environ layers the environment definition over the OS environment. Matrix
// variables are exposed with the MatrixEnvPrefix and overrides win over
// everything.
func environ(env *envs.Environment, overrides map[string]string) expand.Environ {
	envVars := os.Environ()

	names := make([]string, 0, len(env.EnvVars))
	for name := range env.EnvVars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		envVars = append(envVars, fmt.Sprintf("%s=%s", name, env.EnvVars[name]))
	}

	variables := make([]string, 0, len(env.Variables))
	for name := range env.Variables {
		variables = append(variables, name)
	}
	sort.Strings(variables)
	for _, name := range variables {
		envVars = append(envVars, fmt.Sprintf("%s%s=%s", MatrixEnvPrefix, strings.ToUpper(name), env.Variables[name]))
	}

	envVars = append(envVars, fmt.Sprintf("%s=%s", ActiveEnvVar, env.Name))

	oNames := make([]string, 0, len(overrides))
	for name := range overrides {
		oNames = append(oNames, name)
	}
	sort.Strings(oNames)
	for _, name := range oNames {
		envVars = append(envVars, fmt.Sprintf("%s=%s", name, overrides[name]))
	}

	return expand.ListEnviron(envVars...)
}

// rerouteExec redirects mv, rm and mkdir to our own cross-platform
// implementations to make sure they behave consistently on every OS.
func rerouteExec(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		if len(args) > 0 {
			switch args[0] {
			case "mv", "rm", "mkdir":
				args = append([]string{selfExecutable(), "tool"}, args...)
			}
		}

		return next(ctx, args)
	}
}

func selfExecutable() string {
	path, err := os.Executable()
	if err != nil {
		return "hatch"
	}

	return path
}

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return interp.DefaultOpenHandler()(ctx, path, flag, perm)
}
