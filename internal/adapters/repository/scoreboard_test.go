package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestScoreboard(t *testing.T) {
	Convey("Given an empty scoreboard", t, func() {
		ctx := context.Background()
		b := NewScoreboard(WithName("naxess"))

		So(b.Count(ctx), ShouldEqual, 0)
		_, err := b.TopN(ctx, 0)
		So(errors.Is(err, ErrInvalidLimit), ShouldBeTrue)
		_, err = b.Rank(ctx, 1)
		So(errors.Is(err, ErrNotFound), ShouldBeTrue)

		Convey("When scores are set", func() {
			b.Set(ctx, 1, 5.61)
			b.Set(ctx, 2, 7.2)
			b.Set(ctx, 3, 5.61)
			b.Set(ctx, 4, -0.5)

			Convey("Then TopN orders by score with ties sharing a rank", func() {
				top, err := b.TopN(ctx, 10)
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 4)
				So(top[0].UserID, ShouldEqual, 2)
				So(top[0].Rank, ShouldEqual, 1)
				So(top[1].UserID, ShouldEqual, 1)
				So(top[2].UserID, ShouldEqual, 3)
				So(top[1].Rank, ShouldEqual, 2)
				So(top[2].Rank, ShouldEqual, 2)
				So(top[3].Rank, ShouldEqual, 4)
			})

			Convey("And Rank agrees with TopN", func() {
				e, err := b.Rank(ctx, 3)
				So(err, ShouldBeNil)
				So(e.Rank, ShouldEqual, 2)
				So(e.Score, ShouldEqual, 5.61)
			})

			Convey("And lowering a score moves the moderator down", func() {
				b.Set(ctx, 2, 1)
				e, err := b.Rank(ctx, 2)
				So(err, ShouldBeNil)
				So(e.Rank, ShouldEqual, 3)
				So(b.Count(ctx), ShouldEqual, 4)
			})

			Convey("And removal drops the moderator", func() {
				So(b.Remove(ctx, 4), ShouldBeTrue)
				So(b.Remove(ctx, 4), ShouldBeFalse)
				So(b.Count(ctx), ShouldEqual, 3)
			})
		})
	})
}

func TestScoreboardMatchesSort(t *testing.T) {
	Convey("Given many random updates", t, func() {
		ctx := context.Background()
		b := NewScoreboard()
		rng := rand.New(rand.NewSource(7))
		want := map[int64]float64{}
		for i := 0; i < 2000; i++ {
			id := int64(rng.Intn(300))
			score := float64(rng.Intn(2000)-500) / 100
			b.Set(ctx, id, score)
			want[id] = score
		}

		type kv struct {
			id    int64
			score float64
		}
		var sorted []kv
		for id, s := range want {
			sorted = append(sorted, kv{id, s})
		}
		sort.Slice(sorted, func(i, j int) bool {
			if sorted[i].score != sorted[j].score {
				return sorted[i].score > sorted[j].score
			}
			return sorted[i].id < sorted[j].id
		})

		top, err := b.TopN(ctx, len(sorted))
		So(err, ShouldBeNil)
		So(len(top), ShouldEqual, len(sorted))
		for i := range sorted {
			So(top[i].UserID, ShouldEqual, sorted[i].id)
			So(top[i].Score, ShouldEqual, sorted[i].score)
			e, err := b.Rank(ctx, sorted[i].id)
			So(err, ShouldBeNil)
			So(e.Rank, ShouldEqual, top[i].Rank)
		}
	})
}

func TestScoreboardConcurrent(t *testing.T) {
	Convey("Given concurrent writers", t, func() {
		ctx := context.Background()
		b := NewScoreboard(WithPrecision(2))
		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					b.Set(ctx, int64(w*100+i), float64(i))
				}
			}(w)
		}
		wg.Wait()
		So(b.Count(ctx), ShouldEqual, 800)
		top, err := b.TopN(ctx, 8)
		So(err, ShouldBeNil)
		So(fmt.Sprint(top[0].Score), ShouldEqual, "99")
		So(top[7].Rank, ShouldEqual, 1)
	})
}
