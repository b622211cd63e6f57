package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// resourceDirEnv overrides resource directory resolution, mainly for development builds
const resourceDirEnv = "BACKEND_LAUNCHER_RESOURCE_DIR"

// ErrResourceDir is returned when the bundled resource directory cannot be located
var ErrResourceDir = errors.New("failed to get resource dir")

// ResourceResolver returns the absolute path of the bundled resource directory
type ResourceResolver func() (string, error)

// NewResourceResolver returns a resolver honoring, in order: an explicit
// directory, the BACKEND_LAUNCHER_RESOURCE_DIR environment variable, and the
// platform location relative to the running executable.
func NewResourceResolver(explicit string) ResourceResolver {
	return func() (string, error) {
		if explicit != "" {
			return checkResourceDir(explicit)
		}
		if dir := os.Getenv(resourceDirEnv); dir != "" {
			return checkResourceDir(dir)
		}

		exe, err := os.Executable()
		if err != nil {
			return "", err
		}
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		return checkResourceDir(platformResourceDir(runtime.GOOS, exe))
	}
}

// platformResourceDir maps an executable path to its bundled resource directory.
// Inside a macOS app bundle resources live in Contents/Resources next to
// Contents/MacOS; everywhere else they sit beside the executable.
func platformResourceDir(goos, exe string) string {
	exeDir := filepath.Dir(exe)
	if goos == "darwin" && filepath.Base(exeDir) == "MacOS" {
		return filepath.Join(filepath.Dir(exeDir), "Resources")
	}
	return exeDir
}

func checkResourceDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}
