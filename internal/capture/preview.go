package capture

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/murshidmujeeb/MedEase-App/internal/imaging"
)

// ErrPreviewReleased is returned when waiting on a preview that was dropped
var ErrPreviewReleased = errors.New("preview released")

// Preview is a preview URI derived in the background from an image
type Preview struct {
	done     chan struct{}
	released atomic.Bool
	uri      string
	err      error
}

func derivePreview(img Image) *Preview {
	p := &Preview{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		if p.released.Load() {
			p.err = ErrPreviewReleased
			return
		}
		p.uri, p.err = imaging.PreviewURI(img.Data, img.ContentType)
	}()
	return p
}

// Wait blocks until the preview is ready, released, or ctx is done
func (p *Preview) Wait(ctx context.Context) (string, error) {
	if p.released.Load() {
		return "", ErrPreviewReleased
	}
	select {
	case <-p.done:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if p.released.Load() {
		return "", ErrPreviewReleased
	}
	return p.uri, p.err
}

// Released reports whether the preview has been dropped
func (p *Preview) Released() bool {
	return p.released.Load()
}

func (p *Preview) release() {
	if p != nil {
		p.released.Store(true)
	}
}
