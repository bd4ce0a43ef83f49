package fetcher

import (
	"archive/zip"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/rotisserie/eris"
)

// openLocal opens a plain file or a member of a local ZIP archive.
func openLocal(source string) (*Handle, error) {
	if isZIP(source) {
		archive, member, _ := splitMember(source)
		return openZIPMember(source, archive, member, nil)
	}

	file, err := os.Open(source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Source: source}
		}
		return nil, eris.Wrapf(err, "fetcher: open %s", source)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, eris.Wrapf(err, "fetcher: stat %s", source)
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, eris.Errorf("fetcher: %s is a directory", source)
	}
	return &Handle{ReadCloser: file, Name: path.Base(strings.ReplaceAll(source, "\\", "/"))}, nil
}

// zipMemberReader closes the member, the archive, and any cleanup hook
// (e.g. removing a downloaded temp file) together.
type zipMemberReader struct {
	io.ReadCloser
	archive *zip.ReadCloser
	cleanup func()
}

func (z *zipMemberReader) Close() error {
	memberErr := z.ReadCloser.Close()
	archiveErr := z.archive.Close()
	if z.cleanup != nil {
		z.cleanup()
	}
	if memberErr != nil {
		return eris.Wrap(memberErr, "zip: close member")
	}
	if archiveErr != nil {
		return eris.Wrap(archiveErr, "zip: close archive")
	}
	return nil
}

// openZIPMember opens member inside the archive at archivePath. An empty
// member selects the archive's only file. cleanup runs when the handle is
// closed or on failure.
func openZIPMember(source, archivePath, member string, cleanup func()) (*Handle, error) {
	fail := func(err error) (*Handle, error) {
		if cleanup != nil {
			cleanup()
		}
		return nil, err
	}

	r, err := zip.OpenReader(archivePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fail(&NotFoundError{Source: source})
		}
		return fail(eris.Wrapf(err, "zip: open archive %s", archivePath))
	}

	entry, err := findZIPEntry(r, member)
	if err != nil {
		_ = r.Close()
		if errors.Is(err, fs.ErrNotExist) {
			return fail(&NotFoundError{Source: source, Detail: err.Error()})
		}
		return fail(err)
	}

	rc, err := entry.Open()
	if err != nil {
		_ = r.Close()
		return fail(eris.Wrapf(err, "zip: open member %s", entry.Name))
	}

	return &Handle{
		ReadCloser: &zipMemberReader{ReadCloser: rc, archive: r, cleanup: cleanup},
		Name:       path.Base(entry.Name),
	}, nil
}

func findZIPEntry(r *zip.ReadCloser, member string) (*zip.File, error) {
	var files []*zip.File
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if member != "" && f.Name == strings.TrimPrefix(member, "/") {
			return f, nil
		}
		files = append(files, f)
	}

	if member != "" {
		return nil, &fs.PathError{Op: "open", Path: member, Err: fs.ErrNotExist}
	}
	if len(files) != 1 {
		return nil, eris.Errorf("zip: archive has %d files; select one with archive.zip%smember", len(files), ZIPMemberSep)
	}
	return files[0], nil
}
