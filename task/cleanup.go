package task

import (
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const cleanupAttempts = 5

// transientFSError reports lock-style failures worth another attempt.
func transientFSError(err error) bool {
	return errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.EACCES)
}

// removeAll deletes dir, retrying on transient lock errors. It never fails;
// anything left behind is logged.
func removeAll(dir string, delay time.Duration, log logrus.FieldLogger) {
	op := func() error {
		err := os.RemoveAll(dir)
		if err != nil && !transientFSError(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), cleanupAttempts-1)
	if err := backoff.Retry(op, b); err != nil {
		log.WithField("dir", dir).WithError(err).Error("failed to remove working directory")
		return
	}
	log.WithField("dir", dir).Debug("removed working directory")
}
