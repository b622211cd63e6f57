//go:build windows

package main

import (
	"errors"
	"path/filepath"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

// backendPIDs lists running processes whose executable basename matches exeName (case-insensitive)
func backendPIDs(exeName string) ([]uint32, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(snap)

	var pe windows.ProcessEntry32
	pe.Size = uint32(unsafe.Sizeof(pe))

	if err := windows.Process32First(snap, &pe); err != nil {
		return nil, err
	}

	want := strings.ToLower(exeName)
	var pids []uint32
	for {
		name := strings.ToLower(filepath.Base(windows.UTF16ToString(pe.ExeFile[:])))
		if name == want {
			pids = append(pids, pe.ProcessID)
		}

		if err := windows.Process32Next(snap, &pe); err != nil {
			if errors.Is(err, windows.ERROR_NO_MORE_FILES) {
				return pids, nil
			}
			return pids, err
		}
	}
}

func countProcessesByExeBasename(exeName string) (int, error) {
	pids, err := backendPIDs(exeName)
	return len(pids), err
}
