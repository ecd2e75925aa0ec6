// Package launcher builds the compiler invocation for a materialized
// script: executable resolution, runtime-jar classpath probing, and the
// per-OS launch shape.
package launcher

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// InstallRootEnv names a Kotlin installation whose lib directory holds
// the runtime jars.
const InstallRootEnv = "KOTLIN_HOME"

// Options select the executable and the classpath sources.
type Options struct {
	// Executable overrides the compiler binary (name or path). Empty
	// uses the platform default.
	Executable string
	// InstallRoot overrides installation-root probing.
	InstallRoot string
	// ExtraArgs are inserted before the trailing -script pair.
	ExtraArgs []string
	// Env entries are added to the child environment.
	Env []string
}

// Invocation is a ready-to-spawn command line.
type Invocation struct {
	Argv []string
	Env  []string
}

// Command renders the argv for display and history.
func (inv Invocation) Command() string {
	return strings.Join(inv.Argv, " ")
}

// Build assembles `<kotlinc> [-cp <jars>] [extra...] -script <path>`.
// The -script pair always comes last; anything after it would belong to
// the script, not the compiler. The script path is absolutized so the
// invocation survives working-directory changes.
func Build(scriptPath string, opts Options) (Invocation, error) {
	if scriptPath == "" {
		return Invocation{}, errors.New("script path is required")
	}
	abs, err := filepath.Abs(scriptPath)
	if err != nil {
		return Invocation{}, fmt.Errorf("resolve script path: %w", err)
	}

	exe := opts.Executable
	if exe == "" {
		exe = defaultExecutableFor(runtime.GOOS)
	}

	argv := []string{exe}
	if jars := probeRuntimeJars(exe, opts.InstallRoot); len(jars) > 0 {
		argv = append(argv, "-cp", strings.Join(jars, string(filepath.ListSeparator)))
	}
	argv = append(argv, opts.ExtraArgs...)
	argv = append(argv, "-script", abs)

	return Invocation{Argv: wrapFor(runtime.GOOS, argv), Env: opts.Env}, nil
}

// Resolve locates the compiler binary on PATH.
func Resolve(opts Options) (string, error) {
	exe := opts.Executable
	if exe == "" {
		exe = defaultExecutableFor(runtime.GOOS)
	}
	path, err := exec.LookPath(exe)
	if err != nil {
		return "", fmt.Errorf("locate %s: %w", exe, err)
	}
	return path, nil
}

// RuntimeJars reports the jars Build would place on the classpath.
func RuntimeJars(opts Options) []string {
	exe := opts.Executable
	if exe == "" {
		exe = defaultExecutableFor(runtime.GOOS)
	}
	return probeRuntimeJars(exe, opts.InstallRoot)
}

// probeRuntimeJars collects the jars for -cp. Roots are tried in order:
// the explicit install root, KOTLIN_HOME, then the installation holding
// the resolved executable (<root>/bin/kotlinc). No jars found degrades
// to running without -cp.
func probeRuntimeJars(exe, installRoot string) []string {
	for _, root := range installRoots(exe, installRoot) {
		if jars := jarsIn(filepath.Join(root, "lib")); len(jars) > 0 {
			return jars
		}
	}
	return nil
}

func installRoots(exe, override string) []string {
	var roots []string
	if override != "" {
		roots = append(roots, override)
	}
	if env := os.Getenv(InstallRootEnv); env != "" {
		roots = append(roots, env)
	}
	if path, err := exec.LookPath(exe); err == nil {
		// Distributions symlink bin/kotlinc into PATH; follow it back
		// to the real installation.
		if resolved, err := filepath.EvalSymlinks(path); err == nil {
			path = resolved
		}
		roots = append(roots, filepath.Dir(filepath.Dir(path)))
	}
	return roots
}

func jarsIn(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var jars []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jar") {
			continue
		}
		jars = append(jars, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(jars)
	return jars
}

func defaultExecutableFor(goos string) string {
	if goos == "windows" {
		return "kotlinc.bat"
	}
	return "kotlinc"
}

// wrapFor applies the platform launch shape: the Windows compiler is a
// batch script and runs through cmd /C; unix execs the argv directly.
func wrapFor(goos string, argv []string) []string {
	if goos == "windows" {
		return append([]string{"cmd", "/C"}, argv...)
	}
	return argv
}
