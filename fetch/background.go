package fetch

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"quranvideo/apperr"

	"github.com/sirupsen/logrus"
)

// DefaultBackground asks for the bundled clip instead of a download.
const DefaultBackground = "default"

// Background places a usable background clip at destination. An empty or
// "default" source copies fallback directly; a failed download of an explicit
// source also falls back. Without a fallback on disk the call fails with a
// file error.
func (c *Client) Background(ctx context.Context, source, fallback, destination string) error {
	source = strings.TrimSpace(source)
	if source == "" || source == DefaultBackground {
		return copyFile(fallback, destination)
	}

	err := c.Download(ctx, source, destination)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	c.log.WithFields(logrus.Fields{
		"source":   source,
		"fallback": fallback,
	}).WithError(err).Warn("background download failed, using bundled clip")

	if cerr := copyFile(fallback, destination); cerr != nil {
		return errors.Join(cerr, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return apperr.File("open", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return apperr.File("create", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return apperr.File("copy", dst, err)
	}
	if err := out.Close(); err != nil {
		return apperr.File("close", dst, err)
	}
	return nil
}
