package clock

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestClock(t *testing.T) {
	Convey("Given the clock package", t, func() {
		Convey("System clock", func() {
			before := time.Now()
			now := System().Now()

			Convey("It should report the wall time", func() {
				So(now, ShouldHappenOnOrAfter, before)
			})
		})

		Convey("Fake clock", func() {
			start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
			fake := NewFake(start)

			Convey("It should start at the given time", func() {
				So(fake.Now(), ShouldEqual, start)
			})

			Convey("Advance should move time forward", func() {
				got := fake.Advance(90 * time.Minute)
				So(got, ShouldEqual, start.Add(90*time.Minute))
				So(fake.Now(), ShouldEqual, got)
			})

			Convey("Set should replace the current time", func() {
				later := start.Add(24 * time.Hour)
				fake.Set(later)
				So(fake.Now(), ShouldEqual, later)
			})
		})
	})
}
