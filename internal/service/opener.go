package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

var ErrInvalidOpenRequest = errors.New("exactly one of path or url is required")

// OpenRequest names the thing to open; exactly one field is set.
type OpenRequest struct {
	Path string `json:"path,omitempty"`
	URL  string `json:"url,omitempty"`
}

func (r OpenRequest) Validate() error {
	if (r.Path == "") == (r.URL == "") {
		return ErrInvalidOpenRequest
	}
	if r.URL != "" {
		u, err := url.Parse(r.URL)
		if err != nil || u.Scheme == "" {
			return fmt.Errorf("%w: bad url %q", ErrInvalidOpenRequest, r.URL)
		}
	}
	return nil
}

func (r OpenRequest) target() string {
	if r.URL != "" {
		return r.URL
	}
	return r.Path
}

type OpenerService struct {
	goos string
	run  func(ctx context.Context, name string, args ...string) error
}

func NewOpenerService() *OpenerService {
	return &OpenerService{
		goos: runtime.GOOS,
		// not bound to ctx: the opened application outlives the request
		run: func(_ context.Context, name string, args ...string) error {
			cmd := exec.Command(name, args...)
			if err := cmd.Start(); err != nil {
				return err
			}
			go func() { _ = cmd.Wait() }()
			return nil
		},
	}
}

// Open hands the target to the platform's default handler without waiting for it.
func (s *OpenerService) Open(ctx context.Context, req OpenRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	name, args := openCommand(s.goos, req.target())
	if err := s.run(ctx, name, args...); err != nil {
		return fmt.Errorf("open %q: %w", req.target(), err)
	}
	return nil
}

func openCommand(goos, target string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{target}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}
	default:
		return "xdg-open", []string{target}
	}
}
