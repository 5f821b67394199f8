package common

import (
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"
)

// SetupDataDir creates the data directory and its sub-directories
func SetupDataDir(dataDir string, paths []string, perms fs.FileMode) error {
	if err := CreateDirSafe(dataDir, perms); err != nil {
		return fmt.Errorf("failed to create data dir: (%s): %w", dataDir, err)
	}

	for _, path := range paths {
		path := filepath.Join(dataDir, path)
		if err := CreateDirSafe(path, perms); err != nil {
			return fmt.Errorf("failed to create path: (%s): %w", path, err)
		}
	}

	return nil
}

// CreateDirSafe creates a directory at path with perms permissions.
// An existing directory must be owned by the current user or its group with the same permissions.
func CreateDirSafe(path string, perms fs.FileMode) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return os.MkdirAll(path, perms)
	} else if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}

	return verifyOwnerAndPermissions(path, info, perms)
}

func verifyOwnerAndPermissions(path string, info fs.FileInfo, expectedPerms fs.FileMode) error {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if stat == nil || !ok {
		return fmt.Errorf("failed to get stats of %s", path)
	}

	currUser, err := user.Current()
	if err != nil {
		return fmt.Errorf("failed to get current user: %w", err)
	}

	if currUser.Uid == strconv.FormatUint(uint64(stat.Uid), 10) {
		return nil
	}

	if currUser.Gid != strconv.FormatUint(uint64(stat.Gid), 10) {
		return fmt.Errorf("directory created by a user from a different group: %s", path)
	}

	if info.Mode().Perm() != expectedPerms.Perm() {
		return fmt.Errorf("permissions of the directory '%s' are set incorrectly by another user", path)
	}

	return nil
}
