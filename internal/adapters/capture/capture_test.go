package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/calmcare/moodlens/internal/domain/clip"
	"github.com/calmcare/moodlens/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func TestRecorderLifecycle(t *testing.T) {
	Convey("Given a recorder", t, func() {
		ctx := context.Background()
		r := NewRecorder()
		defer func() { _ = r.Close() }()

		Convey("When recording chunks and stopping", func() {
			So(r.Start(ctx, "sess-1"), ShouldBeNil)
			So(r.Active("sess-1"), ShouldBeTrue)

			So(r.Append(ctx, "sess-1", []byte("abc")), ShouldBeNil)
			So(r.Append(ctx, "sess-1", []byte("def")), ShouldBeNil)

			h, err := r.Stop(ctx, "sess-1")

			Convey("Then the chunks should be concatenated in order", func() {
				So(err, ShouldBeNil)
				So(h.Name, ShouldEqual, clip.MicrophoneFileName)
				So(h.MIME, ShouldEqual, clip.MicrophoneMIME)
				So(bytes.Equal(h.Data, []byte("abcdef")), ShouldBeTrue)
			})

			Convey("And the capture resource should be released", func() {
				So(r.Active("sess-1"), ShouldBeFalse)
			})
		})

		Convey("When stopping with no chunks", func() {
			So(r.Start(ctx, "sess-2"), ShouldBeNil)
			h, err := r.Stop(ctx, "sess-2")

			Convey("Then the payload should be empty but well-formed", func() {
				So(err, ShouldBeNil)
				So(h.Data, ShouldBeEmpty)
				So(h.Name, ShouldEqual, clip.MicrophoneFileName)
			})
		})

		Convey("When aborting a recording", func() {
			So(r.Start(ctx, "sess-3"), ShouldBeNil)
			So(r.Append(ctx, "sess-3", []byte("discarded")), ShouldBeNil)
			So(r.Abort(ctx, "sess-3"), ShouldBeNil)

			Convey("Then the resource should be released", func() {
				So(r.Active("sess-3"), ShouldBeFalse)
			})

			Convey("And a new recording can start for the session", func() {
				So(r.Start(ctx, "sess-3"), ShouldBeNil)
			})
		})
	})
}

func TestRecorderErrors(t *testing.T) {
	Convey("Given a recorder", t, func() {
		ctx := context.Background()
		r := NewRecorder()
		defer func() { _ = r.Close() }()

		Convey("When starting twice for the same session", func() {
			So(r.Start(ctx, "sess-1"), ShouldBeNil)
			err := r.Start(ctx, "sess-1")

			Convey("Then the second start should be rejected", func() {
				So(errors.Is(err, ErrAlreadyRecording), ShouldBeTrue)
			})
		})

		Convey("When operating without an open recording", func() {
			So(errors.Is(r.Append(ctx, "ghost", []byte{0x01}), ErrNotRecording), ShouldBeTrue)

			_, err := r.Stop(ctx, "ghost")
			So(errors.Is(err, ErrNotRecording), ShouldBeTrue)

			So(errors.Is(r.Abort(ctx, "ghost"), ErrNotRecording), ShouldBeTrue)
		})

		Convey("When appending after stop", func() {
			So(r.Start(ctx, "sess-2"), ShouldBeNil)
			_, err := r.Stop(ctx, "sess-2")
			So(err, ShouldBeNil)

			Convey("Then the append should be rejected", func() {
				So(errors.Is(r.Append(ctx, "sess-2", []byte{0x01}), ErrNotRecording), ShouldBeTrue)
			})
		})
	})
}

func TestRecorderByteCap(t *testing.T) {
	Convey("Given a recorder with a small byte cap", t, func() {
		ctx := context.Background()
		r := NewRecorder(WithMaxRecordingBytes(8))
		defer func() { _ = r.Close() }()

		So(r.Start(ctx, "sess-1"), ShouldBeNil)

		Convey("When appending within the cap", func() {
			So(r.Append(ctx, "sess-1", []byte("12345678")), ShouldBeNil)

			Convey("Then the next byte should push it over", func() {
				err := r.Append(ctx, "sess-1", []byte("9"))
				So(errors.Is(err, ErrRecordingTooLarge), ShouldBeTrue)
			})

			Convey("And the recording should still be stoppable", func() {
				_ = r.Append(ctx, "sess-1", []byte("overflow"))
				h, err := r.Stop(ctx, "sess-1")
				So(err, ShouldBeNil)
				So(h.Data, ShouldHaveLength, 8)
			})
		})
	})
}

func TestRecorderDisabled(t *testing.T) {
	Convey("Given a recorder with capture disabled", t, func() {
		ctx := context.Background()
		r := NewRecorder(WithCaptureEnabled(false))
		defer func() { _ = r.Close() }()

		Convey("When starting a recording", func() {
			err := r.Start(ctx, "sess-1")

			Convey("Then it should be denied with the permission message", func() {
				So(errors.Is(err, ErrCaptureDenied), ShouldBeTrue)
				So(err.Error(), ShouldEqual, "Microphone access was denied. Check permissions and try again.")
				So(r.Active("sess-1"), ShouldBeFalse)
			})
		})
	})
}

func TestRecorderClose(t *testing.T) {
	Convey("Given a recorder with open recordings", t, func() {
		ctx := context.Background()
		r := NewRecorder()

		So(r.Start(ctx, "sess-1"), ShouldBeNil)
		So(r.Start(ctx, "sess-2"), ShouldBeNil)

		Convey("When closing the recorder", func() {
			So(r.Close(), ShouldBeNil)

			Convey("Then every recording should be released", func() {
				So(r.Active("sess-1"), ShouldBeFalse)
				So(r.Active("sess-2"), ShouldBeFalse)
			})
		})
	})
}

func TestRecorderConcurrentSessions(t *testing.T) {
	Convey("Given chunks arriving across many sessions at once", t, func() {
		ctx := context.Background()
		r := NewRecorder()
		defer func() { _ = r.Close() }()

		const sessions = 8
		var wg sync.WaitGroup
		wg.Add(sessions)

		errs := make(chan error, sessions)
		for i := 0; i < sessions; i++ {
			go func(n int) {
				defer wg.Done()
				id := fmt.Sprintf("sess-%d", n)
				if err := r.Start(ctx, id); err != nil {
					errs <- err
					return
				}
				for j := 0; j < 10; j++ {
					if err := r.Append(ctx, id, []byte{byte(n)}); err != nil {
						errs <- err
						return
					}
				}
				h, err := r.Stop(ctx, id)
				if err != nil {
					errs <- err
					return
				}
				if len(h.Data) != 10 {
					errs <- fmt.Errorf("session %d: got %d bytes", n, len(h.Data))
				}
			}(i)
		}
		wg.Wait()
		close(errs)

		Convey("Then every recording should aggregate independently", func() {
			for err := range errs {
				So(err, ShouldBeNil)
			}
		})
	})
}

func TestRecorderAppendStopRace(t *testing.T) {
	Convey("Given appends racing a concurrent stop", t, func() {
		ctx := context.Background()
		r := NewRecorder()
		defer func() { _ = r.Close() }()

		const (
			rounds    = 25
			appenders = 4
		)

		stopErrs := make([]error, 0, rounds)
		appendErrs := make(chan error, rounds*appenders)

		for i := 0; i < rounds; i++ {
			id := fmt.Sprintf("race-%d", i)
			So(r.Start(ctx, id), ShouldBeNil)

			var wg sync.WaitGroup
			wg.Add(appenders)
			for g := 0; g < appenders; g++ {
				go func() {
					defer wg.Done()
					chunk := []byte("pcm-frame")
					for {
						if err := r.Append(ctx, id, chunk); err != nil {
							appendErrs <- err
							return
						}
					}
				}()
			}

			_, err := r.Stop(ctx, id)
			stopErrs = append(stopErrs, err)
			wg.Wait()
		}
		close(appendErrs)

		Convey("Then every stop should succeed without a panic", func() {
			for _, err := range stopErrs {
				So(err, ShouldBeNil)
			}
		})

		Convey("And appends arriving after the stop should be rejected cleanly", func() {
			for err := range appendErrs {
				So(errors.Is(err, ErrNotRecording), ShouldBeTrue)
			}
		})
	})
}
