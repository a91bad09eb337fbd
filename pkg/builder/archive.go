package builder

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/ulikunitz/xz"
)

// entry is a single file scheduled for the archive: where it lives on disk
// and the path it gets inside the distribution.
type entry struct {
	Source string
	Dist   string
}

// reproducibleTimestamp is what archive entries are stamped with in
// reproducible mode. SOURCE_DATE_EPOCH wins when set.
func reproducibleTimestamp() time.Time {
	if raw := os.Getenv("SOURCE_DATE_EPOCH"); raw != "" {
		epoch, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			return time.Unix(epoch, 0).UTC()
		}
	}

	return time.Unix(1580601600, 0).UTC()
}

func sortEntries(entries []entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Dist < entries[j].Dist })
}

func totalSize(entries []entry) int64 {
	var total int64
	for _, item := range entries {
		info, err := os.Stat(item.Source)
		if err == nil {
			total += info.Size()
		}
	}

	return total
}

// progress returns a byte progress bar, invisible on CI where the control
// sequences only clutter the logs.
func progress(length int64, desc string) *progressbar.ProgressBar {
	if os.Getenv("CI") == "true" {
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.DefaultBytes(length, desc)
}

// writeTar writes the entries to a compressed tar archive. The compression
// is one of gz, xz and br.
func writeTar(dest string, entries []entry, compression string, reproducible bool) error {
	handle, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", dest)
	}
	defer handle.Close()

	var compressor io.WriteCloser
	switch compression {
	case "gz":
		compressor = gzip.NewWriter(handle)
	case "xz":
		compressor, err = xz.NewWriter(handle)
		if err != nil {
			return eris.Wrap(err, "failed to initialize xz writer")
		}
	case "br":
		compressor = brotli.NewWriterLevel(handle, brotli.BestCompression)
	default:
		return eris.Errorf("unsupported compression %s", compression)
	}

	sortEntries(entries)
	stamp := reproducibleTimestamp()
	bar := progress(totalSize(entries), "   archive")

	archive := tar.NewWriter(compressor)
	for _, item := range entries {
		info, err := os.Stat(item.Source)
		if err != nil {
			return eris.Wrapf(err, "failed to check %s", item.Source)
		}

		header := &tar.Header{
			Name:    item.Dist,
			Size:    info.Size(),
			Mode:    normalizeMode(info.Mode()),
			ModTime: info.ModTime(),
			Format:  tar.FormatPAX,
		}
		if reproducible {
			header.ModTime = stamp
		}

		err = archive.WriteHeader(header)
		if err != nil {
			return eris.Wrapf(err, "failed to write header for %s", item.Dist)
		}

		err = copyEntry(archive, bar, item)
		if err != nil {
			return err
		}
	}

	err = archive.Close()
	if err != nil {
		return eris.Wrap(err, "failed to finish archive")
	}

	err = compressor.Close()
	if err != nil {
		return eris.Wrap(err, "failed to finish compression")
	}

	return nil
}

// writeZip writes the entries to a zip archive.
func writeZip(dest string, entries []entry, reproducible bool) error {
	handle, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", dest)
	}
	defer handle.Close()

	sortEntries(entries)
	stamp := reproducibleTimestamp()
	bar := progress(totalSize(entries), "   archive")

	archive := zip.NewWriter(handle)
	for _, item := range entries {
		info, err := os.Stat(item.Source)
		if err != nil {
			return eris.Wrapf(err, "failed to check %s", item.Source)
		}

		header := &zip.FileHeader{
			Name:     item.Dist,
			Method:   zip.Deflate,
			Modified: info.ModTime(),
		}
		if reproducible {
			header.Modified = stamp
		}
		header.SetMode(os.FileMode(normalizeMode(info.Mode())))

		writer, err := archive.CreateHeader(header)
		if err != nil {
			return eris.Wrapf(err, "failed to write header for %s", item.Dist)
		}

		err = copyEntryTo(writer, bar, item)
		if err != nil {
			return err
		}
	}

	err = archive.Close()
	if err != nil {
		return eris.Wrap(err, "failed to finish archive")
	}

	return nil
}

func copyEntry(archive *tar.Writer, bar *progressbar.ProgressBar, item entry) error {
	return copyEntryTo(archive, bar, item)
}

func copyEntryTo(writer io.Writer, bar *progressbar.ProgressBar, item entry) error {
	source, err := os.Open(item.Source)
	if err != nil {
		return eris.Wrapf(err, "failed to open %s", item.Source)
	}
	defer source.Close()

	_, err = io.Copy(io.MultiWriter(writer, bar), source)
	if err != nil {
		return eris.Wrapf(err, "failed to archive %s", item.Source)
	}

	return nil
}

// normalizeMode keeps only the executable decision so archives do not leak
// umask differences between machines.
func normalizeMode(mode os.FileMode) int64 {
	if mode&0111 != 0 {
		return 0755
	}

	return 0644
}

// hashFile computes the hex sha256 digest of a file.
func hashFile(path string) (string, error) {
	handle, err := os.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "failed to open %s", path)
	}
	defer handle.Close()

	hash := sha256.New()
	_, err = io.Copy(hash, handle)
	if err != nil {
		return "", eris.Wrapf(err, "failed to hash %s", path)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
