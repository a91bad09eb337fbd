// Package publish uploads build artifacts to a package index.
package publish

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"

	"github.com/Godsmith/hatch/pkg/ctxlog"
	"github.com/Godsmith/hatch/pkg/project"
)

// Options control an upload session.
type Options struct {
	// SkipExisting turns "file already exists" answers from the index into
	// a warning instead of an error.
	SkipExisting bool
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// Digester computes the checksum field sent along with each artifact.
type Digester func(path string) (string, error)

// Artifacts uploads the given files to the configured index. The credential
// is read from the environment variable named by the publish config.
func Artifacts(ctx context.Context, cfg *project.Config, files []string, digest Digester, opts Options) error {
	if cfg.Publish.URL == "" {
		return eris.New("field `publish.index.url` is not configured")
	}

	token := os.Getenv(cfg.Publish.Auth)
	if token == "" {
		return eris.Errorf("no credential found, set the %s environment variable", cfg.Publish.Auth)
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: time.Minute * 30,
		}
	}

	for _, file := range files {
		err := uploadFile(ctx, client, cfg, file, digest, opts)
		if err != nil {
			return err
		}
	}

	return nil
}

func uploadFile(ctx context.Context, client *http.Client, cfg *project.Config, file string, digest Digester, opts Options) error {
	sum, err := digest(file)
	if err != nil {
		return err
	}

	info, err := os.Stat(file)
	if err != nil {
		return eris.Wrapf(err, "failed to check %s", file)
	}

	handle, err := os.Open(file)
	if err != nil {
		return eris.Wrapf(err, "failed to open %s", file)
	}
	defer handle.Close()

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)

	err = form.WriteField("sha256_digest", sum)
	if err != nil {
		return eris.Wrap(err, "failed to encode the request")
	}

	part, err := form.CreateFormFile("content", filepath.Base(file))
	if err != nil {
		return eris.Wrap(err, "failed to encode the request")
	}

	bar := uploadBar(info.Size(), filepath.Base(file))
	_, err = io.Copy(io.MultiWriter(part, bar), handle)
	if err != nil {
		return eris.Wrapf(err, "failed to read %s", file)
	}

	err = form.Close()
	if err != nil {
		return eris.Wrap(err, "failed to encode the request")
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Publish.URL, body)
	if err != nil {
		return eris.Wrap(err, "failed to build the upload request")
	}

	request.Header.Set("Content-Type", form.FormDataContentType())
	request.SetBasicAuth(cfg.Publish.User, os.Getenv(cfg.Publish.Auth))

	response, err := client.Do(request)
	if err != nil {
		return eris.Wrapf(err, "upload of %s failed", filepath.Base(file))
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusOK || response.StatusCode == http.StatusCreated:
		ctxlog.From(ctx).Info().
			Str("file", filepath.Base(file)).
			Str("sha256", sum).
			Msg("uploaded")
		return nil
	case response.StatusCode == http.StatusConflict:
		if opts.SkipExisting {
			ctxlog.From(ctx).Warn().
				Str("file", filepath.Base(file)).
				Msg("already published, skipping")
			return nil
		}

		return eris.Errorf("%s already exists on the index", filepath.Base(file))
	default:
		detail, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		return eris.Errorf("the index rejected %s: %s (%s)", filepath.Base(file), response.Status, bytes.TrimSpace(detail))
	}
}

// SHA256 is the default Digester.
func SHA256(path string) (string, error) {
	hdl, err := os.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "could not open %s", path)
	}
	defer hdl.Close()

	hasher := sha256.New()
	_, err = io.Copy(hasher, hdl)
	if err != nil {
		return "", eris.Wrapf(err, "failed to read %s", path)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func uploadBar(length int64, desc string) *progressbar.ProgressBar {
	if os.Getenv("CI") == "true" {
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.DefaultBytes(length, "    upload "+desc)
}
