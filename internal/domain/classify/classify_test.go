package classify

import (
	"context"
	"testing"
	"time"

	"github.com/calmcare/moodlens/internal/domain/clip"
	"github.com/calmcare/moodlens/internal/domain/emotion"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBaseScores(t *testing.T) {
	Convey("Given the deterministic base score table", t, func() {
		Convey("When computing scores for a seed", func() {
			scores := BaseScores(9) // len("clip5.wav")

			Convey("Then each label gets its seeded base in canonical order", func() {
				So(scores, ShouldHaveLength, emotion.Count())
				So(scores[0].Label, ShouldEqual, emotion.Calm)
				So(scores[0].Score, ShouldAlmostEqual, 0.32)
				So(scores[1].Label, ShouldEqual, emotion.Stressed)
				So(scores[1].Score, ShouldAlmostEqual, 0.32)
				So(scores[2].Label, ShouldEqual, emotion.Excited)
				So(scores[2].Score, ShouldAlmostEqual, 0.31)
				So(scores[3].Label, ShouldEqual, emotion.Neutral)
				So(scores[3].Score, ShouldAlmostEqual, 0.15)
			})
		})

		Convey("When computing scores for the same seed twice", func() {
			Convey("Then the results should be identical", func() {
				So(BaseScores(13), ShouldResemble, BaseScores(13))
			})
		})

		Convey("When the seed modulus cycles", func() {
			Convey("Then seeds three apart should score the same", func() {
				So(BaseScores(5), ShouldResemble, BaseScores(8))
			})
		})
	})
}

func TestMockClassifier(t *testing.T) {
	Convey("Given a mock classifier with no jitter", t, func() {
		c := NewMockClassifier(WithLatency(0), WithJitter(0))
		ctx := context.Background()

		Convey("When classifying a named clip", func() {
			scores, err := c.Classify(ctx, clip.Handle{Name: "clip5.wav", MIME: "audio/wav"})

			Convey("Then the scores should match the seeded bases exactly", func() {
				So(err, ShouldBeNil)
				So(scores, ShouldResemble, BaseScores(9))
			})
		})

		Convey("When classifying an anonymous clip", func() {
			scores, err := c.Classify(ctx, clip.Handle{MIME: "audio/wav"})

			Convey("Then the fallback seed should drive the scores", func() {
				So(err, ShouldBeNil)
				So(scores, ShouldResemble, BaseScores(len(clip.FallbackName)))
			})
		})
	})

	Convey("Given a mock classifier with jitter and a floor", t, func() {
		const jitter = 0.06
		const floor = 0.05
		c := NewMockClassifier(WithLatency(0), WithJitter(jitter), WithScoreFloor(floor))
		ctx := context.Background()
		h := clip.Handle{Name: "walk.m4a", MIME: "audio/mp4"}
		bases := BaseScores(h.Seed())

		Convey("When classifying repeatedly", func() {
			Convey("Then every score should stay inside the jitter band above the floor", func() {
				for i := 0; i < 50; i++ {
					scores, err := c.Classify(ctx, h)
					So(err, ShouldBeNil)
					So(scores, ShouldHaveLength, emotion.Count())

					for j, s := range scores {
						So(s.Label, ShouldEqual, bases[j].Label)
						So(s.Score, ShouldBeGreaterThanOrEqualTo, floor)
						So(s.Score, ShouldBeLessThanOrEqualTo, bases[j].Score+jitter)
						So(s.Score, ShouldBeGreaterThanOrEqualTo, bases[j].Score-jitter)
					}
				}
			})
		})
	})

	Convey("Given a classifier with simulated latency", t, func() {
		c := NewMockClassifier(WithLatency(5 * time.Second))

		Convey("When the context is cancelled mid-inference", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()

			start := time.Now()
			_, err := c.Classify(ctx, clip.Handle{Name: "slow.wav"})

			Convey("Then classification should abort promptly with an error", func() {
				So(err, ShouldNotBeNil)
				So(time.Since(start), ShouldBeLessThan, time.Second)
			})
		})

		Convey("When the context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := c.Classify(ctx, clip.Handle{Name: "slow.wav"})

			Convey("Then classification should not run at all", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})

	Convey("Given classifier options with out-of-range values", t, func() {
		Convey("When negative latency or jitter is supplied", func() {
			c := NewMockClassifier(
				WithLatency(-time.Second),
				WithJitter(-0.5),
				WithScoreFloor(-1),
				WithRandSource(nil),
			)

			Convey("Then the defaults should remain in effect", func() {
				So(c.latency, ShouldEqual, defaultLatency)
				So(c.jitter, ShouldEqual, defaultJitter)
				So(c.floor, ShouldEqual, defaultFloor)
				So(c.rng, ShouldNotBeNil)
			})
		})
	})
}
