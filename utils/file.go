package utils

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	_ "github.com/viant/afsc/s3"
)

var FileSystem = afs.New()

func FileExists(filename string) (bool, error) {
	return FileSystem.Exists(context.Background(), filename)
}

func ReadFileBytes(filename string) (outBytes []byte, err error) {
	file, err := FileSystem.OpenURL(context.Background(), filename)
	if err != nil {
		return nil, err
	}
	defer func(file io.Closer) {
		err = errors.Join(err, CloseFile(file))
	}(file)

	outBytes, err = io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return outBytes, nil
}

func CloseFile(file io.Closer) error {
	return file.Close()
}

// Walk visits every file below URL.
func Walk(ctx context.Context, URL string, handler storage.OnVisit) error {
	return FileSystem.Walk(ctx, URL, handler)
}

// NewFileWriter opens filename for writing, creating parent folders as needed.
func NewFileWriter(ctx context.Context, filename string) (io.WriteCloser, error) {
	return FileSystem.NewWriter(ctx, filename, os.ModePerm)
}

func GetPathType(path string) string {
	if strings.HasPrefix(path, "s3://") {
		return "S3"
	}
	return "os"
}

// PathJoinSafe wrapper around filepath.Join to ensure that paths are correctly constructed
// if the path is a normal OS path, just use filepath.Join
// if the path is S3, trim any trailing slashes and construct it manually from the components
// so that double slashes (e.g. s3://) are preserved.
func PathJoinSafe(elem ...string) string {
	var path string

	switch GetPathType(elem[0]) {
	case "S3":
		basePath := strings.TrimSuffix(elem[0], "/")
		path = basePath + "/" + filepath.ToSlash(filepath.Join(elem[1:]...))
	default:
		path = filepath.Join(elem...)
	}
	return path
}
