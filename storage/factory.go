package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ecotrace-srl/rentri-client/interfaces"
)

// StoreFor creates an artifact store from a location URI.
//
// Supported schemes:
//   - file:///path/to/folder (local filesystem storage)
//   - s3://[KEY:SECRET@]bucket/prefix?region=...&endpoint=... (object storage)
//
// A plain path with no scheme is treated as a local folder.
func StoreFor(locationURI string, log *slog.Logger) (interfaces.ArtifactStore, error) {
	if !strings.Contains(locationURI, "://") {
		return NewFileStore(locationURI, log)
	}

	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return createFileStore(u, log)
	case "s3":
		return createS3Store(u, log)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidLocationURI, u.Scheme)
	}
}

func createFileStore(u *url.URL, log *slog.Logger) (interfaces.ArtifactStore, error) {
	path := u.Path
	if u.Host != "" {
		// file://./relative/path parses the first segment as host.
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in %q", interfaces.ErrInvalidLocationURI, u.String())
	}
	return NewFileStore(path, log)
}

func createS3Store(u *url.URL, log *slog.Logger) (interfaces.ArtifactStore, error) {
	bucket := u.Host
	if bucket == "" {
		return nil, fmt.Errorf("%w: missing bucket in %q", interfaces.ErrInvalidLocationURI, u.String())
	}

	prefix := strings.TrimPrefix(u.Path, "/")

	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "eu-south-1"
	}
	endpoint := query.Get("endpoint")

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
	} else {
		log.Debug("No credentials in S3 URI, relying on ambient AWS configuration")
	}

	return NewS3Store(bucket, prefix, region, endpoint, accessKey, secretKey, log)
}
