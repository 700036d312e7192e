package capture

import (
	"bytes"
	"context"
	"image/png"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("ParseSnapshotCameras", func() {
	It("should parse facing=url pairs", func() {
		cameras, err := ParseSnapshotCameras("rear=http://10.0.0.5:8080/shot.jpg, front=http://10.0.0.6/shot.jpg")
		Expect(err).NotTo(HaveOccurred())
		Expect(cameras).To(HaveLen(2))
		Expect(cameras[0].Facing).To(Equal(FacingEnvironment))
		Expect(cameras[0].URL).To(Equal("http://10.0.0.5:8080/shot.jpg"))
		Expect(cameras[1].Facing).To(Equal(FacingUser))
	})

	It("should accept a bare URL with a query string", func() {
		cameras, err := ParseSnapshotCameras("http://cam.local/snap?size=large")
		Expect(err).NotTo(HaveOccurred())
		Expect(cameras).To(HaveLen(1))
		Expect(cameras[0].Facing).To(Equal(FacingUnknown))
		Expect(cameras[0].URL).To(Equal("http://cam.local/snap?size=large"))
	})

	It("should skip empty entries", func() {
		cameras, err := ParseSnapshotCameras("")
		Expect(err).NotTo(HaveOccurred())
		Expect(cameras).To(BeEmpty())
	})

	It("returns an error for non-http URLs", func() {
		_, err := ParseSnapshotCameras("rear=/dev/video0")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("SnapshotDevices", func() {
	var (
		server  *ghttp.Server
		devices *SnapshotDevices
		device  DeviceInfo
		ctx     context.Context
		frame   []byte
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		ctx = context.Background()
		var buf bytes.Buffer
		Expect(png.Encode(&buf, testFrame())).To(Succeed())
		frame = buf.Bytes()

		devices = NewSnapshotDevices([]SnapshotCamera{
			{ID: "rear", Facing: FacingEnvironment, URL: server.URL() + "/shot.png"},
		})
		list, err := devices.Devices(ctx)
		Expect(err).NotTo(HaveOccurred())
		device = list[0]
	})

	AfterEach(func() {
		server.Close()
	})

	When("the camera answers", func() {
		BeforeEach(func() {
			server.RouteToHandler("GET", "/shot.png", ghttp.RespondWith(http.StatusOK, frame, http.Header{
				"Content-Type": []string{"image/png"},
			}))
		})

		It("should open a stream that serves frames", func() {
			stream, err := devices.Open(ctx, device)
			Expect(err).NotTo(HaveOccurred())
			defer stream.Stop()

			img, err := stream.Frame(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(img.Bounds().Dx()).To(Equal(8))
		})

		It("should refuse frames after Stop", func() {
			stream, err := devices.Open(ctx, device)
			Expect(err).NotTo(HaveOccurred())
			Expect(stream.Stop()).To(Succeed())
			Expect(stream.Stop()).To(Succeed())

			_, err = stream.Frame(ctx)
			Expect(err).To(MatchError(ErrStreamStopped))
		})
	})

	When("the camera refuses access", func() {
		BeforeEach(func() {
			server.RouteToHandler("GET", "/shot.png", ghttp.RespondWith(http.StatusForbidden, "no"))
		})

		It("returns ErrCameraPermission", func() {
			_, err := devices.Open(ctx, device)
			Expect(err).To(MatchError(ErrCameraPermission))
		})
	})

	When("the camera is missing", func() {
		BeforeEach(func() {
			server.RouteToHandler("GET", "/shot.png", ghttp.RespondWith(http.StatusNotFound, "gone"))
		})

		It("returns ErrNoCamera", func() {
			_, err := devices.Open(ctx, device)
			Expect(err).To(MatchError(ErrNoCamera))
		})
	})

	When("the device is unknown", func() {
		It("returns ErrNoCamera", func() {
			_, err := devices.Open(ctx, DeviceInfo{ID: "side"})
			Expect(err).To(MatchError(ErrNoCamera))
		})
	})

	It("should drive a manager from camera to preview", func() {
		server.RouteToHandler("GET", "/shot.png", ghttp.RespondWith(http.StatusOK, frame))
		manager := NewManager(devices)
		defer manager.Close()

		Expect(manager.BeginCameraCapture(ctx)).To(Succeed())
		Expect(manager.CaptureFrame(ctx)).To(Succeed())
		Expect(manager.State().Kind()).To(Equal(KindFilePreview))
	})
})
