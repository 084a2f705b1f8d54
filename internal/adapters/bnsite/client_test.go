package bnsite_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/bnstats/internal/adapters/bnsite"
	"github.com/okian/bnstats/internal/adapters/upstream"
	"github.com/okian/bnstats/internal/domain/model"
	"github.com/okian/bnstats/internal/domain/reconcile"
	"github.com/okian/bnstats/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const activityBody = `{
  "uniqueNominations": [
    {"beatmapsetId": 1, "userId": 10, "artistTitle": "A - T", "creatorId": 500, "creatorName": "m",
     "timestamp": "2021-03-01T12:00:00.000Z", "modes": ["osu"]}
  ],
  "nominationsDisqualified": [
    {"_id": "r1", "beatmapsetId": 2, "userId": 40, "timestamp": "2021-03-02T12:00:00.000Z",
     "obviousness": null, "severity": 2, "type": "disqualify"}
  ],
  "nominationsPopped": [],
  "disqualifications": [],
  "pops": [
    {"_id": "r2", "beatmapsetId": 3, "userId": 10, "timestamp": "2021-03-03T12:00:00.000Z",
     "obviousness": 1, "severity": 0, "type": ""}
  ]
}`

func quiet() bnsite.Option {
	return bnsite.WithUpstreamOptions(upstream.WithAttempts(1), upstream.WithLogger(logger.NewNop()))
}

func TestSiteClient(t *testing.T) {
	Convey("Given a BN site serving roster and activity", t, func() {
		var gotQuery, gotCookie string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie("connect.sid"); err == nil {
				gotCookie = c.Value
			}
			switch r.URL.Path {
			case "/users/relevantInfo":
				_, _ = w.Write([]byte(`{"users":[{"_id":"m1","osuId":10,"username":"bn","modes":["osu","taiko"],"isBn":true}]}`))
			case "/users/activity":
				gotQuery = r.URL.RawQuery
				_, _ = w.Write([]byte(activityBody))
			default:
				http.NotFound(w, r)
			}
		}))
		defer srv.Close()

		now := time.UnixMilli(1614600000000)
		c := bnsite.New(bnsite.WithSiteURL(srv.URL), bnsite.WithSession("cookie"),
			bnsite.WithClock(func() time.Time { return now }), quiet())
		ctx := context.Background()

		Convey("When the roster is listed", func() {
			members, err := c.Members(ctx)

			Convey("Then members carry their site id and modes", func() {
				So(err, ShouldBeNil)
				So(len(members), ShouldEqual, 1)
				So(members[0].ID, ShouldEqual, 10)
				So(members[0].SiteID, ShouldEqual, "m1")
				So(members[0].Modes, ShouldResemble, []string{"osu", "taiko"})
				So(members[0].IsBN, ShouldBeTrue)
				So(gotCookie, ShouldEqual, "cookie")
			})
		})

		Convey("When activity is fetched", func() {
			user := model.User{ID: 10, SiteID: "m1", Modes: []model.Mode{model.ModeStandard, model.ModeCatch}}
			events, err := c.Activity(ctx, user, 90)

			Convey("Then the query identifies the moderator", func() {
				So(err, ShouldBeNil)
				So(gotQuery, ShouldContainSubstring, "osuId=10")
				So(gotQuery, ShouldContainSubstring, "mongoId=m1")
				So(gotQuery, ShouldContainSubstring, "modes=osu%2Ccatch")
				So(gotQuery, ShouldContainSubstring, "deadline=1614600000000")
				So(gotQuery, ShouldContainSubstring, "days=90")
			})

			Convey("Then events are classified", func() {
				So(len(events), ShouldEqual, 3)
				So(events[0].Kind, ShouldEqual, reconcile.KindNomination)
				So(events[0].Modes, ShouldResemble, []string{"osu"})
				So(events[0].Timestamp.Equal(time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)), ShouldBeTrue)

				So(events[1].Kind, ShouldEqual, reconcile.KindResetReceived)
				So(events[1].ModeratorID, ShouldEqual, 10)
				So(events[1].ID, ShouldEqual, "r1")
				So(events[1].Obviousness, ShouldBeNil)
				So(*events[1].Severity, ShouldEqual, 2)
				So(events[1].ResetType, ShouldEqual, model.ResetDisqualify)

				So(events[2].Kind, ShouldEqual, reconcile.KindResetPerformed)
				So(events[2].ResetType, ShouldEqual, model.ResetPop)
			})
		})
	})

	Convey("Given a BN site answering with a login page", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>please log in</html>"))
		}))
		defer srv.Close()
		c := bnsite.New(bnsite.WithSiteURL(srv.URL), quiet())

		_, err := c.Members(context.Background())
		So(errors.Is(err, upstream.ErrSourceUnavailable), ShouldBeTrue)

		_, err = c.Activity(context.Background(), model.User{ID: 1}, 90)
		So(errors.Is(err, upstream.ErrSourceUnavailable), ShouldBeTrue)
	})
}

func TestInteropClient(t *testing.T) {
	Convey("Given the interop API", t, func() {
		var gotUser, gotSecret, gotPath string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUser, gotSecret, gotPath = r.Header.Get("username"), r.Header.Get("secret"), r.URL.Path
			switch r.URL.Path {
			case "/users/all":
				_, _ = w.Write([]byte(`[{"osuId":20,"username":"nat","modes":["none"],"groups":["nat"]}]`))
			default:
				_, _ = w.Write([]byte(`{"uniqueNominations":[],"nominationsDisqualified":[],"nominationsPopped":[],"disqualifications":[],"pops":[]}`))
			}
		}))
		defer srv.Close()
		c := bnsite.New(bnsite.WithInterop(srv.URL, "bot", "s3cret"), quiet())
		ctx := context.Background()

		Convey("When the roster is listed", func() {
			members, err := c.Members(ctx)

			Convey("Then credentials are sent as headers and groups are read", func() {
				So(err, ShouldBeNil)
				So(gotUser, ShouldEqual, "bot")
				So(gotSecret, ShouldEqual, "s3cret")
				So(members[0].IsNAT, ShouldBeTrue)
				So(members[0].Modes, ShouldResemble, []string{"none"})
			})
		})

		Convey("When activity is fetched", func() {
			events, err := c.Activity(ctx, model.User{ID: 20}, 30)

			Convey("Then the interop path is used", func() {
				So(err, ShouldBeNil)
				So(len(events), ShouldEqual, 0)
				So(gotPath, ShouldEqual, "/nominationResets/20/30/")
			})
		})
	})
}
