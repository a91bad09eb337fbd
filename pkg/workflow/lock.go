package workflow

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Lock guards a concurrency group for the duration of a run.
type Lock struct {
	file  string
	runID string
}

// AcquireLock claims the given concurrency group. If another run already
// holds it and steal is false, an error names the holder. With steal set
// the existing lock is taken over instead.
func AcquireLock(root, group, runID string, steal bool) (*Lock, error) {
	dir := filepath.Join(root, ".hatch", "locks")
	err := os.MkdirAll(dir, 0770)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to create %s", dir)
	}

	lock := &Lock{
		file:  filepath.Join(dir, sanitizeGroup(group)+".lock"),
		runID: runID,
	}

	err = lock.acquire()
	if err == nil {
		return lock, nil
	}

	if !os.IsExist(err) {
		return nil, eris.Wrapf(err, "failed to create %s", lock.file)
	}

	holder, readErr := os.ReadFile(lock.file)
	if !steal {
		if readErr != nil {
			return nil, eris.Errorf("group %s is locked by another run", group)
		}

		return nil, eris.Errorf("group %s is locked by run %s", group, strings.TrimSpace(string(holder)))
	}

	err = os.Remove(lock.file)
	if err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrapf(err, "failed to remove stale lock %s", lock.file)
	}

	err = lock.acquire()
	if err != nil {
		return nil, eris.Wrapf(err, "failed to take over lock %s", lock.file)
	}

	return lock, nil
}

func (l *Lock) acquire() error {
	hdl, err := os.OpenFile(l.file, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0660)
	if err != nil {
		return err
	}

	_, err = hdl.WriteString(l.runID + "\n")
	if err != nil {
		hdl.Close()
		os.Remove(l.file)
		return err
	}

	return hdl.Close()
}

// Release frees the group. Safe to call if the lock was stolen in the
// meantime; a lock now held by a different run is left alone.
func (l *Lock) Release() error {
	holder, err := os.ReadFile(l.file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return eris.Wrapf(err, "failed to read %s", l.file)
	}

	if strings.TrimSpace(string(holder)) != l.runID {
		return nil
	}

	err = os.Remove(l.file)
	if err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "failed to remove %s", l.file)
	}

	return nil
}

func sanitizeGroup(group string) string {
	return strings.Map(func(char rune) rune {
		switch {
		case char >= 'a' && char <= 'z':
			return char
		case char >= 'A' && char <= 'Z':
			return char
		case char >= '0' && char <= '9':
			return char
		case char == '-' || char == '_' || char == '.':
			return char
		default:
			return '_'
		}
	}, group)
}
