package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/bnstats/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2020, 11, 3, 12, 0, 0, 0, time.UTC)

// storeContract exercises behaviour every Store implementation shares.
func storeContract(t *testing.T, name string, open func(t *testing.T) Store) {
	Convey("Given a "+name, t, func() {
		ctx := context.Background()
		s := open(t)
		Reset(func() { _ = s.Close() })

		Convey("Users round trip and missing ids are ErrNotFound", func() {
			u := model.User{ID: 10, Username: "bn", Modes: []model.Mode{model.ModeStandard, model.ModeTaiko}, IsBN: true, LastUpdated: t0}
			So(s.UpsertUser(ctx, u), ShouldBeNil)
			So(s.UpdateFavor(ctx, 10, model.Favor{GenreFavor: []string{"Anime"}, AvgLength: 150}), ShouldBeNil)

			got, err := s.User(ctx, 10)
			So(err, ShouldBeNil)
			So(got.Username, ShouldEqual, "bn")
			So(got.Modes, ShouldResemble, u.Modes)
			So(got.IsBN, ShouldBeTrue)
			So(got.Favor.GenreFavor, ShouldResemble, []string{"Anime"})

			Convey("And a roster upsert keeps the cached favor", func() {
				u.Username = "renamed"
				So(s.UpsertUser(ctx, u), ShouldBeNil)
				got, err := s.User(ctx, 10)
				So(err, ShouldBeNil)
				So(got.Username, ShouldEqual, "renamed")
				So(got.Favor.AvgLength, ShouldEqual, 150)
			})

			_, err = s.User(ctx, 99)
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			So(errors.Is(s.UpdateFavor(ctx, 99, model.Favor{}), ErrNotFound), ShouldBeTrue)
		})

		Convey("Beatmaps are replaced per set", func() {
			maps := []model.Beatmap{
				{BeatmapsetID: 1, BeatmapID: 11, Status: model.StatusRanked, HitLength: 100, Mode: model.ModeTaiko, DifficultyRating: 3.2},
				{BeatmapsetID: 1, BeatmapID: 12, Status: model.StatusRanked, HitLength: 110, Mode: model.ModeTaiko, DifficultyRating: 4.5},
			}
			So(s.ReplaceBeatmaps(ctx, 1, maps), ShouldBeNil)
			got, err := s.Beatmaps(ctx, 1)
			So(err, ShouldBeNil)
			So(len(got), ShouldEqual, 2)
			So(got[0].Mode, ShouldEqual, model.ModeTaiko)
			So(got[1].Status, ShouldEqual, model.StatusRanked)

			So(s.ReplaceBeatmaps(ctx, 1, nil), ShouldBeNil)
			got, err = s.Beatmaps(ctx, 1)
			So(err, ShouldBeNil)
			So(got, ShouldBeEmpty)
		})

		Convey("Nominations upsert on (set, user)", func() {
			n := model.Nomination{BeatmapsetID: 5, UserID: 10, ArtistTitle: "A - T", CreatorID: 77, CreatorName: "m", Timestamp: t0}
			first, created, err := s.UpsertNomination(ctx, n)
			So(err, ShouldBeNil)
			So(created, ShouldBeTrue)
			So(first.ID, ShouldBeGreaterThan, 0)

			So(s.SaveNominationScore(ctx, first.ID, model.CalculatorNaxess, model.ScoreComponents{TotalScore: 1.25}), ShouldBeNil)

			n.AsModes = []model.Mode{model.ModeMania}
			n.ArtistTitle = "A - T2"
			second, created, err := s.UpsertNomination(ctx, n)
			So(err, ShouldBeNil)
			So(created, ShouldBeFalse)
			So(second.ID, ShouldEqual, first.ID)

			got, err := s.Nomination(ctx, 5, 10)
			So(err, ShouldBeNil)
			So(got.AsModes, ShouldResemble, []model.Mode{model.ModeMania})
			So(got.ArtistTitle, ShouldEqual, "A - T2")
			So(got.Timestamp.Equal(t0), ShouldBeTrue)
			So(got.Scores[model.CalculatorNaxess].TotalScore, ShouldEqual, 1.25)

			So(s.FlagAmbiguous(ctx, got.ID), ShouldBeNil)
			got, _ = s.Nomination(ctx, 5, 10)
			So(got.AmbiguousMode, ShouldBeTrue)

			_, err = s.Nomination(ctx, 5, 11)
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})

		Convey("Nomination windows", func() {
			for i, u := range []int64{1, 2, 3} {
				_, _, err := s.UpsertNomination(ctx, model.Nomination{
					BeatmapsetID: 8, UserID: u, CreatorID: 50, Timestamp: t0.Add(time.Duration(i) * time.Hour),
				})
				So(err, ShouldBeNil)
			}
			_, _, err := s.UpsertNomination(ctx, model.Nomination{BeatmapsetID: 9, UserID: 1, CreatorID: 50, Timestamp: t0.Add(5 * time.Hour)})
			So(err, ShouldBeNil)

			before, err := s.NominationsBefore(ctx, 8, t0.Add(2*time.Hour))
			So(err, ShouldBeNil)
			So(len(before), ShouldEqual, 2)
			So(before[0].UserID, ShouldEqual, 2)
			So(before[1].UserID, ShouldEqual, 1)

			mine, err := s.UserNominations(ctx, 1, t0)
			So(err, ShouldBeNil)
			So(len(mine), ShouldEqual, 2)
			So(mine[0].BeatmapsetID, ShouldEqual, 8)

			byCreator, err := s.CreatorNominations(ctx, 50, t0.Add(time.Hour), t0.Add(5*time.Hour))
			So(err, ShouldBeNil)
			So(len(byCreator), ShouldEqual, 2)
		})

		Convey("Resets upsert on (set, user, timestamp) and link affected once", func() {
			r := model.Reset{ID: "r-1", BeatmapsetID: 5, UserID: 3, Timestamp: t0, Type: model.ResetDisqualify, Obviousness: 1}
			stored, created, err := s.UpsertReset(ctx, r)
			So(err, ShouldBeNil)
			So(created, ShouldBeTrue)
			So(stored.ID, ShouldEqual, "r-1")

			added, err := s.AddAffected(ctx, "r-1", 10)
			So(err, ShouldBeNil)
			So(added, ShouldBeTrue)
			added, err = s.AddAffected(ctx, "r-1", 10)
			So(err, ShouldBeNil)
			So(added, ShouldBeFalse)

			r.ID = "ignored"
			r.Severity = 2
			stored, created, err = s.UpsertReset(ctx, r)
			So(err, ShouldBeNil)
			So(created, ShouldBeFalse)
			So(stored.ID, ShouldEqual, "r-1")
			So(stored.Total(), ShouldEqual, 3)
			So(stored.Affected, ShouldResemble, []int64{10})

			affecting, err := s.ResetsAffecting(ctx, 10, 5)
			So(err, ShouldBeNil)
			So(len(affecting), ShouldEqual, 1)
			none, err := s.ResetsAffecting(ctx, 11, 5)
			So(err, ShouldBeNil)
			So(none, ShouldBeEmpty)

			all, err := s.Resets(ctx, 5)
			So(err, ShouldBeNil)
			So(len(all), ShouldEqual, 1)

			_, err = s.AddAffected(ctx, "missing", 1)
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})

		Convey("A known reset id with a drifted timestamp updates the stored row", func() {
			r := model.Reset{ID: "x", BeatmapsetID: 6, UserID: 4, Timestamp: t0, Type: model.ResetPop}
			_, created, err := s.UpsertReset(ctx, r)
			So(err, ShouldBeNil)
			So(created, ShouldBeTrue)
			_, err = s.AddAffected(ctx, "x", 10)
			So(err, ShouldBeNil)

			r.Timestamp = t0.Add(500 * time.Millisecond)
			r.Obviousness = 2
			stored, created, err := s.UpsertReset(ctx, r)
			So(err, ShouldBeNil)
			So(created, ShouldBeFalse)
			So(stored.ID, ShouldEqual, "x")
			So(stored.Timestamp.Equal(t0), ShouldBeTrue)
			So(stored.Obviousness, ShouldEqual, 2)
			So(stored.Affected, ShouldResemble, []int64{10})

			all, err := s.Resets(ctx, 6)
			So(err, ShouldBeNil)
			So(len(all), ShouldEqual, 1)
			So(all[0].Affected, ShouldResemble, []int64{10})
		})
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, "memory store", func(*testing.T) Store { return NewMemoryStore() })
}

func TestSQLStoreSQLite(t *testing.T) {
	storeContract(t, "sqlite store", func(t *testing.T) Store {
		s, err := OpenSQL(context.Background(), "sqlite", ":memory:")
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		return s
	})
}

func TestOpenSQLUnsupportedDriver(t *testing.T) {
	Convey("Given an unknown driver", t, func() {
		_, err := OpenSQL(context.Background(), "oracle", "")
		So(errors.Is(err, ErrUnsupportedDriver), ShouldBeTrue)
	})
}
