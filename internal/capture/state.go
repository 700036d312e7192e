package capture

import "context"

// Image is a finalized image ready for analysis
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the image size in bytes
func (i Image) Size() int {
	return len(i.Data)
}

// Kind names the active capture state
type Kind int

const (
	KindEmpty Kind = iota
	KindCameraActive
	KindFilePreview
	KindSubmitting
)

func (k Kind) String() string {
	switch k {
	case KindCameraActive:
		return "camera active"
	case KindFilePreview:
		return "file preview"
	case KindSubmitting:
		return "submitting"
	default:
		return "empty"
	}
}

// State is the capture state. Exactly one variant is active at a time:
// Empty, CameraActive, FilePreview or Submitting.
type State interface {
	Kind() Kind
	isState()
}

// Empty holds no resources
type Empty struct{}

func (Empty) Kind() Kind { return KindEmpty }
func (Empty) isState()   {}

// CameraActive owns a live camera stream. The stream stays private to the manager.
type CameraActive struct {
	Device DeviceInfo
	stream Stream
}

func (CameraActive) Kind() Kind { return KindCameraActive }
func (CameraActive) isState()   {}

// FilePreview holds a selected or captured image and its preview
type FilePreview struct {
	Image   Image
	preview *Preview
}

func (FilePreview) Kind() Kind { return KindFilePreview }
func (FilePreview) isState()   {}

// PreviewURI waits for the asynchronously derived preview
func (f FilePreview) PreviewURI(ctx context.Context) (string, error) {
	return f.preview.Wait(ctx)
}

// Preview returns the preview handle
func (f FilePreview) Preview() *Preview {
	return f.preview
}

// Submitting holds the image while it is being analysed
type Submitting struct {
	Image   Image
	preview *Preview
}

func (Submitting) Kind() Kind { return KindSubmitting }
func (Submitting) isState()   {}
