package osuapi_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/bnstats/internal/adapters/osuapi"
	"github.com/okian/bnstats/internal/adapters/upstream"
	"github.com/okian/bnstats/internal/domain/model"
	"github.com/okian/bnstats/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const setBody = `[
  {"beatmapset_id":"1209473","beatmap_id":"2519312","approved":"1","total_length":"143","hit_length":"139",
   "mode":"1","version":"Oni","artist":"Artist","title":"Title","creator":"mapper","creator_id":"500",
   "genre_id":"3","language_id":"3","difficultyrating":"4.81","last_update":"2020-10-26 17:21:45"},
  {"beatmapset_id":"1209473","beatmap_id":"2519313","approved":"1","total_length":"143","hit_length":"120",
   "mode":"1","version":"Muzukashii","artist":"Artist","title":"Title","creator":"mapper","creator_id":"500",
   "genre_id":"3","language_id":"3","difficultyrating":"3.1","last_update":"2020-10-26 17:21:45"}
]`

func TestBeatmaps(t *testing.T) {
	Convey("Given the osu! API", t, func() {
		var gotQuery string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.RawQuery
			switch r.URL.Query().Get("s") {
			case "1209473":
				_, _ = w.Write([]byte(setBody))
			case "404":
				_, _ = w.Write([]byte(`[]`))
			default:
				_, _ = w.Write([]byte(`oops`))
			}
		}))
		defer srv.Close()

		c := osuapi.New("testing", osuapi.WithBaseURL(srv.URL+"/"),
			osuapi.WithUpstreamOptions(upstream.WithAttempts(1), upstream.WithLogger(logger.NewNop())))
		ctx := context.Background()

		Convey("When a set is fetched", func() {
			maps, err := c.Beatmaps(ctx, 1209473)

			Convey("Then string-encoded fields are decoded", func() {
				So(err, ShouldBeNil)
				So(gotQuery, ShouldEqual, "k=testing&s=1209473")
				So(len(maps), ShouldEqual, 2)
				b := maps[0]
				So(b.BeatmapsetID, ShouldEqual, 1209473)
				So(b.Status, ShouldEqual, model.StatusRanked)
				So(b.Mode, ShouldEqual, model.ModeTaiko)
				So(b.HitLength, ShouldEqual, 139)
				So(b.CreatorID, ShouldEqual, 500)
				So(b.Genre, ShouldEqual, model.GenreAnime)
				So(b.Language, ShouldEqual, model.LanguageJapanese)
				So(b.DifficultyRating, ShouldEqual, 4.81)
				So(b.LastUpdate.Equal(time.Date(2020, 10, 26, 17, 21, 45, 0, time.UTC)), ShouldBeTrue)
			})
		})

		Convey("When the set was deleted", func() {
			maps, err := c.Beatmaps(ctx, 404)

			Convey("Then the result is empty", func() {
				So(err, ShouldBeNil)
				So(len(maps), ShouldEqual, 0)
			})
		})

		Convey("When the API answers garbage", func() {
			_, err := c.Beatmaps(ctx, 1)

			Convey("Then the source is unavailable", func() {
				So(errors.Is(err, upstream.ErrSourceUnavailable), ShouldBeTrue)
			})
		})
	})
}
