package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/san-kum/fluidhost/internal/compute"
)

// maxImageSize caps how much of a remote image is read.
const maxImageSize = 256 << 20

// Source fetches a module image.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	String() string
}

// SourceFor picks a source from a reference: "" or "builtin" for the bundled
// kernel, an http(s) URL, or a file path.
func SourceFor(ref string, client *http.Client) Source {
	switch {
	case ref == "" || ref == "builtin":
		return Builtin{}
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return URL{URL: ref, Client: client}
	default:
		return File{Path: ref}
	}
}

type Builtin struct{}

func (Builtin) Fetch(ctx context.Context) ([]byte, error) {
	return compute.KernelImage, ctx.Err()
}

func (Builtin) String() string { return "builtin" }

type File struct {
	Path string
}

func (f File) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(f.Path)
}

func (f File) String() string { return f.Path }

type URL struct {
	URL    string
	Client *http.Client
}

func (u URL) Fetch(ctx context.Context) ([]byte, error) {
	client := u.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %s", u.URL, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxImageSize {
		return nil, fmt.Errorf("fetch %s: image larger than %d bytes", u.URL, maxImageSize)
	}
	return body, nil
}

func (u URL) String() string { return u.URL }
