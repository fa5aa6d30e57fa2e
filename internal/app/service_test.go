package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/calmcare/moodlens/internal/adapters/capture"
	"github.com/calmcare/moodlens/internal/adapters/playback"
	"github.com/calmcare/moodlens/internal/adapters/repository"
	service "github.com/calmcare/moodlens/internal/app"
	"github.com/calmcare/moodlens/internal/domain/clip"
	"github.com/calmcare/moodlens/internal/domain/emotion"
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

// waitForState polls until the session leaves the loading state.
func waitForState(ctx context.Context, svc *service.Service, id string, want repository.State) (repository.Session, bool) {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		sess, err := svc.GetSession(ctx, id)
		if err == nil && sess.State == want {
			return sess, true
		}
		time.Sleep(10 * time.Millisecond)
	}
	sess, _ := svc.GetSession(ctx, id)
	return sess, false
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithWorkerCount(8),
			service.WithQueueSize(512),
			service.WithDedupeSize(1_000),
			service.WithShardCount(2),
			service.WithAnalysisLatency(10*time.Millisecond),
			service.WithScoreJitter(0.01),
			service.WithScoreFloor(0.02),
			service.WithMaxRecordingBytes(1<<20),
			service.WithCaptureEnabled(false),
		)

		Convey("Then it should be created successfully", func() {
			So(svc, ShouldNotBeNil)
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithWorkerCount(1), service.WithAnalysisLatency(0))

		Convey("When starting it", func() {
			err := svc.Start(ctx)
			defer svc.Stop()

			Convey("Then it should start cleanly", func() {
				So(err, ShouldBeNil)

				stats := svc.GetStats()
				So(stats["started"], ShouldBeTrue)
			})

			Convey("And starting again should be a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})
		})
	})
}

func TestService_Sessions(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithWorkerCount(1), service.WithAnalysisLatency(0))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When creating a session", func() {
			sess, err := svc.CreateSession(ctx)

			Convey("Then it should start idle", func() {
				So(err, ShouldBeNil)
				So(sess.ID, ShouldNotBeEmpty)
				So(sess.State, ShouldEqual, repository.StateIdle)
			})

			Convey("And it should be retrievable", func() {
				got, err := svc.GetSession(ctx, sess.ID)
				So(err, ShouldBeNil)
				So(got.ID, ShouldEqual, sess.ID)
			})
		})

		Convey("When fetching an unknown session", func() {
			_, err := svc.GetSession(ctx, "nope")

			Convey("Then it should report not found", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestService_AnalyzeClip(t *testing.T) {
	Convey("Given a started service with instant analysis", t, func() {
		ctx := context.Background()
		svc := service.New(
			service.WithWorkerCount(1),
			service.WithAnalysisLatency(0),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		sess, err := svc.CreateSession(ctx)
		So(err, ShouldBeNil)

		Convey("When submitting an audio clip", func() {
			duplicate, err := svc.AnalyzeClip(ctx, sess.ID, "req-1", "clip5.wav", "audio/wav", []byte{0x01})

			Convey("Then it should be accepted and complete", func() {
				So(err, ShouldBeNil)
				So(duplicate, ShouldBeFalse)

				done, ok := waitForState(ctx, svc, sess.ID, repository.StateDone)
				So(ok, ShouldBeTrue)
				So(done.DisplayName, ShouldEqual, "clip5.wav")
				So(done.FileName, ShouldEqual, "clip5.wav")
				So(done.ErrorMessage, ShouldBeEmpty)
				So(done.Results, ShouldHaveLength, emotion.Count())
				So(done.PlaybackToken, ShouldNotBeEmpty)

				// Sorted descending
				for i := 1; i < len(done.Results); i++ {
					So(done.Results[i].Confidence, ShouldBeLessThanOrEqualTo, done.Results[i-1].Confidence)
				}
			})
		})

		Convey("When submitting a clip with no name", func() {
			_, err := svc.AnalyzeClip(ctx, sess.ID, "req-noname", "", "audio/wav", []byte{0x01})

			Convey("Then the fallback display name should be used", func() {
				So(err, ShouldBeNil)

				done, ok := waitForState(ctx, svc, sess.ID, repository.StateDone)
				So(ok, ShouldBeTrue)
				So(done.DisplayName, ShouldEqual, clip.FallbackName)
			})
		})

		Convey("When submitting a non-audio file", func() {
			duplicate, err := svc.AnalyzeClip(ctx, sess.ID, "req-2", "photo.png", "image/png", []byte{0x01})

			Convey("Then it should be rejected and the session stays idle", func() {
				So(duplicate, ShouldBeFalse)
				So(errors.Is(err, clip.ErrNotAudio), ShouldBeTrue)

				got, gerr := svc.GetSession(ctx, sess.ID)
				So(gerr, ShouldBeNil)
				So(got.State, ShouldEqual, repository.StateIdle)
				So(got.ErrorMessage, ShouldEqual, "Please upload an audio file (wav, m4a, mp3).")
				So(got.Results, ShouldBeEmpty)
			})
		})

		Convey("When retrying with the same request ID", func() {
			first, err1 := svc.AnalyzeClip(ctx, sess.ID, "req-3", "a.wav", "audio/wav", []byte{0x01})
			second, err2 := svc.AnalyzeClip(ctx, sess.ID, "req-3", "a.wav", "audio/wav", []byte{0x01})

			Convey("Then the retry should be acknowledged as duplicate", func() {
				So(err1, ShouldBeNil)
				So(first, ShouldBeFalse)
				So(err2, ShouldBeNil)
				So(second, ShouldBeTrue)
			})
		})

		Convey("When submitting to an unknown session", func() {
			_, err := svc.AnalyzeClip(ctx, "missing", "req-4", "a.wav", "audio/wav", []byte{0x01})

			Convey("Then it should report not found", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestService_Backpressure(t *testing.T) {
	Convey("Given a service with a tiny queue and slow analysis", t, func() {
		ctx := context.Background()
		svc := service.New(
			service.WithWorkerCount(1),
			service.WithQueueSize(1),
			service.WithAnalysisLatency(500*time.Millisecond),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When submitting more clips than the queue holds", func() {
			var backpressured bool
			var rejectedSession string
			for i := 0; i < 8; i++ {
				sess, err := svc.CreateSession(ctx)
				So(err, ShouldBeNil)

				_, err = svc.AnalyzeClip(ctx, sess.ID, "", "burst.wav", "audio/wav", []byte{0x01})
				if errors.Is(err, service.ErrBackpressure) {
					backpressured = true
					rejectedSession = sess.ID
					break
				}
			}

			Convey("Then a submission should be rejected with the retry message", func() {
				So(backpressured, ShouldBeTrue)

				got, err := svc.GetSession(ctx, rejectedSession)
				So(err, ShouldBeNil)
				So(got.State, ShouldEqual, repository.StateIdle)
				So(got.ErrorMessage, ShouldEqual, "Could not analyze. Please try again.")
			})
		})
	})
}

func TestService_Recording(t *testing.T) {
	Convey("Given a started service with capture enabled", t, func() {
		ctx := context.Background()
		svc := service.New(
			service.WithWorkerCount(1),
			service.WithAnalysisLatency(0),
			service.WithCaptureEnabled(true),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		sess, err := svc.CreateSession(ctx)
		So(err, ShouldBeNil)

		Convey("When recording and stopping", func() {
			So(svc.StartRecording(ctx, sess.ID), ShouldBeNil)
			So(svc.Recording(sess.ID), ShouldBeTrue)

			So(svc.AppendChunk(ctx, sess.ID, []byte{0x01, 0x02}), ShouldBeNil)
			So(svc.AppendChunk(ctx, sess.ID, []byte{0x03}), ShouldBeNil)

			duplicate, err := svc.StopRecording(ctx, sess.ID, "rec-req-1")

			Convey("Then the recording should be analyzed under the live display name", func() {
				So(err, ShouldBeNil)
				So(duplicate, ShouldBeFalse)
				So(svc.Recording(sess.ID), ShouldBeFalse)

				done, ok := waitForState(ctx, svc, sess.ID, repository.StateDone)
				So(ok, ShouldBeTrue)
				So(done.DisplayName, ShouldEqual, clip.RecordingDisplayName)
				So(done.FileName, ShouldEqual, clip.MicrophoneFileName)
				So(done.Results, ShouldHaveLength, emotion.Count())
			})
		})

		Convey("When starting a recording over finished results", func() {
			_, err := svc.AnalyzeClip(ctx, sess.ID, "req-pre", "before.wav", "audio/wav", []byte{0x01})
			So(err, ShouldBeNil)
			done, ok := waitForState(ctx, svc, sess.ID, repository.StateDone)
			So(ok, ShouldBeTrue)
			So(done.PlaybackToken, ShouldNotBeEmpty)

			So(svc.StartRecording(ctx, sess.ID), ShouldBeNil)

			Convey("Then the results reset and the old payload is revoked", func() {
				got, err := svc.GetSession(ctx, sess.ID)
				So(err, ShouldBeNil)
				So(got.State, ShouldEqual, repository.StateIdle)
				So(got.Results, ShouldBeEmpty)
				So(got.PlaybackToken, ShouldBeEmpty)

				_, err = svc.Playback(ctx, done.PlaybackToken)
				So(errors.Is(err, playback.ErrNotFound), ShouldBeTrue)
			})

			So(svc.AbortRecording(ctx, sess.ID), ShouldBeNil)
		})

		Convey("When aborting a recording", func() {
			So(svc.StartRecording(ctx, sess.ID), ShouldBeNil)
			So(svc.AppendChunk(ctx, sess.ID, []byte{0x01}), ShouldBeNil)
			So(svc.AbortRecording(ctx, sess.ID), ShouldBeNil)

			Convey("Then the capture resource should be released", func() {
				So(svc.Recording(sess.ID), ShouldBeFalse)

				got, err := svc.GetSession(ctx, sess.ID)
				So(err, ShouldBeNil)
				So(got.State, ShouldEqual, repository.StateIdle)
			})
		})

		Convey("When starting twice", func() {
			So(svc.StartRecording(ctx, sess.ID), ShouldBeNil)
			err := svc.StartRecording(ctx, sess.ID)

			Convey("Then the second start should be rejected", func() {
				So(errors.Is(err, capture.ErrAlreadyRecording), ShouldBeTrue)
			})

			So(svc.AbortRecording(ctx, sess.ID), ShouldBeNil)
		})

		Convey("When stopping without a recording", func() {
			_, err := svc.StopRecording(ctx, sess.ID, "rec-req-2")

			Convey("Then it should report no recording", func() {
				So(errors.Is(err, capture.ErrNotRecording), ShouldBeTrue)
			})
		})
	})

	Convey("Given a started service with capture disabled", t, func() {
		ctx := context.Background()
		svc := service.New(
			service.WithWorkerCount(1),
			service.WithAnalysisLatency(0),
			service.WithCaptureEnabled(false),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		sess, err := svc.CreateSession(ctx)
		So(err, ShouldBeNil)

		Convey("When starting a recording", func() {
			err := svc.StartRecording(ctx, sess.ID)

			Convey("Then it should be denied with the permission message", func() {
				So(errors.Is(err, capture.ErrCaptureDenied), ShouldBeTrue)

				got, gerr := svc.GetSession(ctx, sess.ID)
				So(gerr, ShouldBeNil)
				So(got.ErrorMessage, ShouldEqual, "Microphone access was denied. Check permissions and try again.")
			})
		})
	})
}

func TestService_GetStats(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithWorkerCount(2), service.WithAnalysisLatency(0))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When fetching stats", func() {
			_, err := svc.CreateSession(ctx)
			So(err, ShouldBeNil)

			stats := svc.GetStats()

			Convey("Then they should reflect the running service", func() {
				So(stats["started"], ShouldBeTrue)
				So(stats["workerCount"], ShouldEqual, 2)
				So(stats["sessionCount"], ShouldEqual, 1)
				So(stats, ShouldContainKey, "queueLength")
				So(stats, ShouldContainKey, "playbackTokens")
				So(stats, ShouldContainKey, "dedupeEntries")
			})
		})
	})
}

func TestService_Labels(t *testing.T) {
	Convey("Given a service", t, func() {
		svc := service.New()

		Convey("When listing labels", func() {
			profiles := svc.Labels()

			Convey("Then every emotion should carry a profile", func() {
				So(profiles, ShouldHaveLength, emotion.Count())
				for _, p := range profiles {
					So(p.Label.Valid(), ShouldBeTrue)
					So(p.Color, ShouldNotBeEmpty)
					So(p.Cue, ShouldNotBeEmpty)
					So(p.Suggestions, ShouldNotBeEmpty)
				}
			})
		})
	})
}
