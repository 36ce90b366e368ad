package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/posture/internal/adapters/repository"
	service "github.com/okian/posture/internal/app"
	"github.com/okian/posture/internal/config"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/internal/domain/ranking"
	"github.com/okian/posture/internal/domain/types"
	"github.com/smartystreets/goconvey/convey"
)

// seedStore writes a config file pointing at a fresh sqlite database and
// fills it with records.
func seedStore(t *testing.T, recs ...model.TransitionRecord) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "posture.db")

	ctx := context.Background()
	st, err := repository.Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	for _, rec := range recs {
		if err := st.Insert(ctx, rec); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	cfgPath := filepath.Join(dir, "config.yaml")
	body := "log_level: error\nstorage:\n  driver: sqlite\n  path: " + dbPath + "\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func record(user, session string, status model.PostureStatus, d time.Duration) model.TransitionRecord {
	return model.TransitionRecord{
		SessionID: session,
		User:      user,
		EnteredAt: time.Unix(1_700_000_000, 0),
		Status:    status,
		Duration:  d,
	}
}

func execute(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestOfflineCommands(t *testing.T) {
	convey.Convey("Given a store with two users", t, func() {
		cfgPath := seedStore(t,
			record("alice", "s1", model.StatusGood, 8*time.Second),
			record("alice", "s1", model.StatusSlouch, 2*time.Second),
			record("bob", "s2", model.StatusGood, 5*time.Second),
			record("bob", "s2", model.StatusSlouch, 5*time.Second),
		)

		convey.Convey("When the leaderboard is printed", func() {
			out, err := execute("--config", cfgPath, "leaderboard", "--limit", "5")

			convey.Convey("Then users appear best first", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "80.00%")
				convey.So(out, convey.ShouldContainSubstring, "50.00%")
				convey.So(strings.Index(out, "alice"), convey.ShouldBeLessThan, strings.Index(out, "bob"))
			})
		})

		convey.Convey("When a report is printed for bob", func() {
			out, err := execute("--config", cfgPath, "report", "--user", "bob")

			convey.Convey("Then it carries ratio and rank", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "bob")
				convey.So(out, convey.ShouldContainSubstring, "50.00%")
				convey.So(out, convey.ShouldContainSubstring, "2 of 2")
				convey.So(out, convey.ShouldNotContainSubstring, "Session Good Posture Ratio")
			})
		})

		convey.Convey("When a report is printed for an unknown user", func() {
			out, err := execute("--config", cfgPath, "report", "--user", "carol")

			convey.Convey("Then the missing data is explained", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "No data for current user.")
			})
		})

		convey.Convey("When the limit is not positive", func() {
			_, err := execute("--config", cfgPath, "leaderboard", "--limit", "0")

			convey.Convey("Then the command fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When no user is given for a report", func() {
			_, err := execute("--config", cfgPath, "report")

			convey.Convey("Then the command fails with ErrNoUser", func() {
				convey.So(err, convey.ShouldEqual, service.ErrNoUser)
			})
		})
	})

	convey.Convey("Given an empty store", t, func() {
		cfgPath := seedStore(t)

		convey.Convey("When a report is requested", func() {
			out, err := execute("--config", cfgPath, "report", "--user", "alice")

			convey.Convey("Then no data is reported", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "No data available for report.")
			})
		})

		convey.Convey("When the leaderboard is requested", func() {
			out, err := execute("--config", cfgPath, "leaderboard")

			convey.Convey("Then it says there is nothing to show", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "No data available for report.")
			})
		})
	})

	convey.Convey("Given a config file that does not exist", t, func() {
		_, err := execute("--config", filepath.Join(t.TempDir(), "missing.yaml"), "leaderboard")

		convey.Convey("Then loading fails", func() {
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "failed to load config")
		})
	})
}

func TestPrinting(t *testing.T) {
	convey.Convey("Given a report with a live session", t, func() {
		r := ranking.Report{
			User:       "alice",
			Session:    ranking.SessionSummary{ID: "abc", Ratio: 0.4},
			Ratio:      0.6,
			Rank:       1,
			TotalUsers: 3,
			Percentile: 100,
		}

		convey.Convey("When it is printed", func() {
			var buf bytes.Buffer
			printReport(&buf, r)

			convey.Convey("Then both ratios and the rank appear", func() {
				out := buf.String()
				convey.So(out, convey.ShouldContainSubstring, "--- Report ---")
				convey.So(out, convey.ShouldContainSubstring, "Session Good Posture Ratio")
				convey.So(out, convey.ShouldContainSubstring, "40.00%")
				convey.So(out, convey.ShouldContainSubstring, "60.00%")
				convey.So(out, convey.ShouldContainSubstring, "1 of 3")
				convey.So(out, convey.ShouldContainSubstring, "100.00%")
			})
		})
	})

	convey.Convey("Given leaderboard entries", t, func() {
		entries := []types.Entry{
			{Rank: 1, User: "alice", Ratio: 0.9, Percentile: 100},
			{Rank: 2, User: "bob", Ratio: 0.25, Percentile: 50},
		}
		var buf bytes.Buffer
		printLeaderboard(&buf, entries)

		convey.So(buf.String(), convey.ShouldContainSubstring, "alice")
		convey.So(buf.String(), convey.ShouldContainSubstring, "90.00%")
		convey.So(buf.String(), convey.ShouldContainSubstring, "percentile 50.00")
	})

	convey.Convey("Given report errors", t, func() {
		convey.So(reportErrorText(ranking.ErrNoData), convey.ShouldEqual, "No data available for report.")
		convey.So(reportErrorText(ranking.ErrUserNotFound), convey.ShouldEqual, "No data for current user.")
		convey.So(reportErrorText(service.ErrStopped), convey.ShouldStartWith, "Report unavailable: ")
	})
}

func TestHTTPServer(t *testing.T) {
	convey.Convey("Given a config and an idle service", t, func() {
		cfg := config.New(context.Background())
		cfg.Addr = ":0"
		cfg.Storage.Driver = config.DriverMemory
		svc := service.New(service.WithConfig(cfg), service.WithUser("alice"))
		defer svc.Stop()

		convey.Convey("When the HTTP server is built", func() {
			srv := newHTTPServer(context.Background(), cfg, svc)

			convey.Convey("Then it carries the configured address and timeouts", func() {
				convey.So(srv.Addr, convey.ShouldEqual, ":0")
				convey.So(srv.ReadTimeout, convey.ShouldEqual, readTimeout)
				convey.So(srv.WriteTimeout, convey.ShouldEqual, writeTimeout)
				convey.So(srv.ReadHeaderTimeout, convey.ShouldEqual, readHeaderTimeout)
				convey.So(srv.Handler, convey.ShouldNotBeNil)
			})

			convey.Convey("And it serves the API docs next to the API", func() {
				for _, path := range []string{"/openapi.yaml", "/status"} {
					w := httptest.NewRecorder()
					srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
					convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				}
			})
		})

		convey.Convey("When service metrics are refreshed before Start", func() {
			convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
		})
	})
}
