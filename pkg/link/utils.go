package link

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

var reSCPURI = regexp.MustCompile(`^(\S+?)@(\S+?):(\S+)$`)

// AddSSHScheme rewrites an SCP-like "user@host:path" URI, as git accepts,
// into an explicit "ssh://user@host/path" URL.  URIs that already carry a
// scheme are returned unchanged.
func AddSSHScheme(uri string) string {
	if strings.Contains(uri, "://") {
		return uri
	}
	if m := reSCPURI.FindStringSubmatch(uri); m != nil {
		return "ssh://" + m[1] + "@" + m[2] + "/" + m[3]
	}
	return "ssh://" + uri
}

// PathToURL converts a local path to a file: URL; the path is made absolute
// first.
func PathToURL(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String()
}

// URLToPath converts a file: URL to a local path.
func URLToPath(fileURL string) string {
	parsed, err := url.Parse(fileURL)
	if err != nil || parsed.Scheme != "file" {
		return fileURL
	}
	p := parsed.Path
	if parsed.Host != "" && parsed.Host != "localhost" {
		p = "//" + parsed.Host + p
	}
	return filepath.FromSlash(p)
}

// CompareURLs compares two URLs ignoring percent-encoding differences and a
// trailing slash.
func CompareURLs(left, right string) bool {
	unquote := func(s string) string {
		if u, err := url.PathUnescape(s); err == nil {
			return u
		}
		return s
	}
	return strings.TrimRight(unquote(left), "/") == strings.TrimRight(unquote(right), "/")
}

// Splitext is like path.Ext/path.Base splitting, but keeps a ".tar" part
// with the extension, so "pkg-1.0.tar.gz" splits into ("pkg-1.0", ".tar.gz").
func Splitext(name string) (base, ext string) {
	ext = filepath.Ext(name)
	base = strings.TrimSuffix(name, ext)
	if strings.HasSuffix(strings.ToLower(base), ".tar") {
		ext = base[len(base)-4:] + ext
		base = base[:len(base)-4]
	}
	return base, ext
}

// ArchiveExtensions are the recognized distributable archive extensions.
var ArchiveExtensions = []string{
	".zip", ".whl",
	".tar.bz2", ".tbz",
	".tar.xz", ".txz", ".tlz", ".tar.lz", ".tar.lzma",
	".tar.gz", ".tgz", ".tar",
}

// IsArchiveFile returns whether the filename looks like a distributable
// archive.
func IsArchiveFile(name string) bool {
	_, ext := Splitext(name)
	ext = strings.ToLower(ext)
	for _, known := range ArchiveExtensions {
		if ext == known {
			return true
		}
	}
	return false
}
