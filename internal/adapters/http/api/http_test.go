package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/bnstats/internal/adapters/http/api"
	repository "github.com/okian/bnstats/internal/adapters/repository"
	"github.com/okian/bnstats/internal/domain/model"
	"github.com/okian/bnstats/internal/domain/reconcile"
	"github.com/okian/bnstats/internal/domain/scoring"
	"github.com/okian/bnstats/internal/domain/types"
	"github.com/okian/bnstats/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const testKey = "s3cret"

// mockDependencies implements api.Dependencies.
type mockDependencies struct {
	ingested   [][]reconcile.Event
	ingestErr  error
	boards     map[string][]types.Entry
	lastLimit  int
	lastDays   int
	lastMode   *model.Mode
	lastCalc   string
	scoreValue float64
}

func (m *mockDependencies) Ingest(_ context.Context, events []reconcile.Event) error {
	m.ingested = append(m.ingested, events)
	return m.ingestErr
}

func (m *mockDependencies) TopN(_ context.Context, calculator string, n int) ([]types.Entry, error) {
	board, ok := m.boards[calculator]
	if !ok {
		return nil, fmt.Errorf("%q: %w", calculator, scoring.ErrUnknownCalculator)
	}
	m.lastLimit = n
	if n > len(board) {
		return board, nil
	}
	return board[:n], nil
}

func (m *mockDependencies) Rank(_ context.Context, calculator string, userID int64) (types.Entry, error) {
	board, ok := m.boards[calculator]
	if !ok {
		return types.Entry{}, fmt.Errorf("%q: %w", calculator, scoring.ErrUnknownCalculator)
	}
	for _, e := range board {
		if e.UserID == userID {
			return e, nil
		}
	}
	return types.Entry{}, fmt.Errorf("user %d: %w", userID, repository.ErrNotFound)
}

func (m *mockDependencies) UserScore(_ context.Context, calculator string, userID int64, days int, mode *model.Mode) (types.ScoreView, error) {
	if _, ok := m.boards[calculator]; !ok {
		return types.ScoreView{}, fmt.Errorf("%q: %w", calculator, scoring.ErrUnknownCalculator)
	}
	m.lastCalc, m.lastDays, m.lastMode = calculator, days, mode
	view := types.ScoreView{UserID: userID, Calculator: calculator, Days: days, Score: m.scoreValue}
	if mode != nil {
		view.Mode = mode.String()
	}
	return view, nil
}

func (m *mockDependencies) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true}
}

func newDeps() *mockDependencies {
	return &mockDependencies{
		boards: map[string][]types.Entry{
			"naxess": {
				{Rank: 1, UserID: 20, Score: 3.2},
				{Rank: 2, UserID: 10, Score: 1.44},
				{Rank: 2, UserID: 30, Score: 1.44},
			},
			"ren": {},
		},
		scoreValue: 2.5,
	}
}

func serve(h http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func newHandler(deps *mockDependencies) http.Handler {
	return api.NewServer(deps,
		api.WithAiessKey(testKey),
		api.WithMaxLimit(50),
		api.WithLogger(logger.NewNop()),
	).Routes()
}

func TestServer_Routes(t *testing.T) {
	Convey("Given the API router", t, func() {
		h := newHandler(newDeps())

		Convey("Then health answers ok", func() {
			w := serve(h, http.MethodGet, "/healthz", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"ok"`)
		})

		Convey("Then metrics are exposed", func() {
			_ = serve(h, http.MethodGet, "/healthz", "", nil)
			w := serve(h, http.MethodGet, "/metrics", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "bnstats_")
		})

		Convey("Then stats are served as JSON", func() {
			w := serve(h, http.MethodGet, "/stats", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
		})

		Convey("Then unknown paths and wrong methods are rejected", func() {
			So(serve(h, http.MethodGet, "/unknown", "", nil).Code, ShouldEqual, http.StatusNotFound)
			So(serve(h, http.MethodPost, "/leaderboard", "", nil).Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestAiessWebhook(t *testing.T) {
	nominate := `{"type":"nominate","events":[{"beatmapsetId":1,"userId":10,"creatorId":500,"timestamp":"2020-11-01 10:00:00","modes":["osu"]}]}`

	Convey("Given the aiess webhook", t, func() {
		deps := newDeps()
		h := newHandler(deps)
		auth := map[string]string{"Authorization": testKey}

		Convey("When the key is wrong or missing", func() {
			w := serve(h, http.MethodPost, "/qat/aiess", nominate, map[string]string{"Authorization": "nope"})
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
			So(w.Body.String(), ShouldContainSubstring, "Unauthorized.")

			w = serve(h, http.MethodPost, "/qat/aiess", nominate, nil)
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
			So(deps.ingested, ShouldBeEmpty)
		})

		Convey("When the payload type is unknown", func() {
			w := serve(h, http.MethodPost, "/qat/aiess", `{"type":"beatmap","events":[]}`, auth)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "Invalid type.")
		})

		Convey("When the body is not JSON", func() {
			w := serve(h, http.MethodPost, "/qat/aiess", `garbage`, auth)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the push is valid", func() {
			w := serve(h, http.MethodPost, "/qat/aiess", nominate, auth)

			Convey("Then the events are ingested", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body struct {
					Status  int    `json:"status"`
					Message string `json:"message"`
				}
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body.Status, ShouldEqual, 200)
				So(body.Message, ShouldEqual, "OK")
				So(len(deps.ingested), ShouldEqual, 1)
				So(deps.ingested[0][0].Kind, ShouldEqual, reconcile.KindNomination)
				So(deps.ingested[0][0].UserID, ShouldEqual, 10)
			})
		})

		Convey("When the moderator is unknown", func() {
			deps.ingestErr = fmt.Errorf("%w: 10", reconcile.ErrModeratorNotFound)
			w := serve(h, http.MethodPost, "/qat/aiess", nominate, auth)

			Convey("Then the roster lag message is returned", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				var body struct {
					Status   int      `json:"status"`
					Messages []string `json:"messages"`
				}
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body.Status, ShouldEqual, 500)
				So(body.Messages, ShouldResemble, []string{"Cannot find user in database, maybe pishi site is falling behind?"})
			})
		})
	})

	Convey("Given a webhook without a configured key", t, func() {
		h := api.NewServer(newDeps(), api.WithLogger(logger.NewNop())).Routes()
		w := serve(h, http.MethodPost, "/qat/aiess", nominate, map[string]string{"Authorization": ""})
		So(w.Code, ShouldEqual, http.StatusUnauthorized)
	})
}

func TestLeaderboard(t *testing.T) {
	Convey("Given the leaderboard endpoint", t, func() {
		deps := newDeps()
		h := newHandler(deps)

		Convey("Then the default calculator and limit apply", func() {
			w := serve(h, http.MethodGet, "/leaderboard", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			var entries []types.Entry
			So(json.Unmarshal(w.Body.Bytes(), &entries), ShouldBeNil)
			So(len(entries), ShouldEqual, 3)
			So(entries[1].Rank, ShouldEqual, entries[2].Rank)
			So(deps.lastLimit, ShouldEqual, 10)
		})

		Convey("Then a limit truncates the board", func() {
			w := serve(h, http.MethodGet, "/leaderboard?calculator=naxess&limit=1", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			var entries []types.Entry
			So(json.Unmarshal(w.Body.Bytes(), &entries), ShouldBeNil)
			So(len(entries), ShouldEqual, 1)
			So(entries[0].UserID, ShouldEqual, 20)
		})

		Convey("Then bad limits are rejected", func() {
			So(serve(h, http.MethodGet, "/leaderboard?limit=0", "", nil).Code, ShouldEqual, http.StatusBadRequest)
			So(serve(h, http.MethodGet, "/leaderboard?limit=abc", "", nil).Code, ShouldEqual, http.StatusBadRequest)
			w := serve(h, http.MethodGet, "/leaderboard?limit=51", "", nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "limit_exceeded")
		})

		Convey("Then an unknown calculator is a bad request", func() {
			w := serve(h, http.MethodGet, "/leaderboard?calculator=elo", "", nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "unknown_calculator")
		})
	})
}

func TestUserEndpoints(t *testing.T) {
	Convey("Given the user endpoints", t, func() {
		deps := newDeps()
		h := newHandler(deps)

		Convey("Then rank returns the board entry", func() {
			w := serve(h, http.MethodGet, "/users/10/rank", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			var e types.Entry
			So(json.Unmarshal(w.Body.Bytes(), &e), ShouldBeNil)
			So(e.Rank, ShouldEqual, 2)
			So(e.Score, ShouldEqual, 1.44)
		})

		Convey("Then an unranked moderator is not found", func() {
			So(serve(h, http.MethodGet, "/users/99/rank", "", nil).Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then a malformed id is rejected", func() {
			So(serve(h, http.MethodGet, "/users/abc/rank", "", nil).Code, ShouldEqual, http.StatusBadRequest)
			So(serve(h, http.MethodGet, "/users/-1/score", "", nil).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then score passes days and mode through", func() {
			w := serve(h, http.MethodGet, "/users/10/score?calculator=ren&days=30&mode=fruits", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			var view types.ScoreView
			So(json.Unmarshal(w.Body.Bytes(), &view), ShouldBeNil)
			So(view.Calculator, ShouldEqual, "ren")
			So(view.Days, ShouldEqual, 30)
			So(view.Mode, ShouldEqual, "catch")
			So(view.Score, ShouldEqual, 2.5)
			So(*deps.lastMode, ShouldEqual, model.ModeCatch)
		})

		Convey("Then score defaults leave days to the service", func() {
			w := serve(h, http.MethodGet, "/users/10/score", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.lastCalc, ShouldEqual, "naxess")
			So(deps.lastDays, ShouldEqual, 0)
			So(deps.lastMode, ShouldBeNil)
		})

		Convey("Then bad score parameters are rejected", func() {
			So(serve(h, http.MethodGet, "/users/10/score?days=0", "", nil).Code, ShouldEqual, http.StatusBadRequest)
			So(serve(h, http.MethodGet, "/users/10/score?mode=piano", "", nil).Code, ShouldEqual, http.StatusBadRequest)
			So(serve(h, http.MethodGet, "/users/10/score?calculator=elo", "", nil).Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}
