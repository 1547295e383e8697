package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/smartystreets/goconvey/convey"
)

const cliRoster = `patients:
  - patient_id: P001
    name: Jane Doe
    is_active: true
  - patient_id: P002
    is_active: true
`

const runStateKey = "vitalstream:simulation:running"

// cliEnv points configuration at mr and a static roster.
func cliEnv(t *testing.T, mr *miniredis.Miniredis) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	if err := os.WriteFile(path, []byte(cliRoster), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VITALSTREAM_CONFIG", "")
	t.Setenv("VITALSTREAM_REDIS_ADDR", mr.Addr())
	t.Setenv("VITALSTREAM_STREAM_BACKEND", "log")
	t.Setenv("VITALSTREAM_ROSTER_BACKEND", "static")
	t.Setenv("VITALSTREAM_STATIC_ROSTER_FILE", path)
	t.Setenv("VITALSTREAM_SUBJECT_DELAY_MS", "1")
	t.Setenv("VITALSTREAM_CYCLE_DELAY_MS", "1")
}

func execute(ctx context.Context, args ...string) (string, error) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestStoreCommands(t *testing.T) {
	Convey("Given a shared run-state store", t, func() {
		mr := miniredis.RunT(t)
		cliEnv(t, mr)
		ctx := context.Background()

		Convey("When status is asked with no flag written", func() {
			out, err := execute(ctx, "status")

			Convey("Then it should report not running", func() {
				So(err, ShouldBeNil)
				var body map[string]bool
				So(json.Unmarshal([]byte(out), &body), ShouldBeNil)
				So(body["running"], ShouldBeFalse)
			})
		})

		Convey("When another process has set the flag", func() {
			So(mr.Set(runStateKey, "1"), ShouldBeNil)

			out, err := execute(ctx, "status")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, `"running": true`)

			Convey("Then stop should clear it", func() {
				_, err := execute(ctx, "stop")
				So(err, ShouldBeNil)
				v, err := mr.Get(runStateKey)
				So(err, ShouldBeNil)
				So(v, ShouldEqual, "0")
			})
		})

		Convey("When start is asked without a control API", func() {
			_, err := execute(ctx, "start")

			Convey("Then it should point at run", func() {
				So(errors.Is(err, errNeedURL), ShouldBeTrue)
			})
		})

		Convey("When redis is gone", func() {
			mr.Close()
			_, err := execute(ctx, "status", "--timeout", "200ms")

			Convey("Then status should fail", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestRunCommand(t *testing.T) {
	Convey("Given a foreground run", t, func() {
		mr := miniredis.RunT(t)
		cliEnv(t, mr)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		type result struct {
			out string
			err error
		}
		done := make(chan result, 1)
		go func() {
			out, err := execute(ctx, "run", "--log-level", "error")
			done <- result{out, err}
		}()

		running := false
		for i := 0; i < 200 && !running; i++ {
			v, _ := mr.Get(runStateKey)
			running = v == "1"
			time.Sleep(5 * time.Millisecond)
		}
		So(running, ShouldBeTrue)

		Convey("When another process clears the flag", func() {
			So(mr.Set(runStateKey, "0"), ShouldBeNil)

			Convey("Then run should exit and print the run summary", func() {
				var res result
				select {
				case res = <-done:
				case <-time.After(5 * time.Second):
					t.Fatal("run did not return")
				}
				So(res.err, ShouldBeNil)

				var stats map[string]interface{}
				So(json.Unmarshal([]byte(res.out), &stats), ShouldBeNil)
				So(stats["subjects"], ShouldEqual, float64(2))
				So(stats["state"], ShouldEqual, "stopped")
				So(stats["stop_reason"], ShouldEqual, "stop requested")
			})
		})
	})
}

func TestAPICommands(t *testing.T) {
	Convey("Given a control API", t, func() {
		mr := miniredis.RunT(t)
		cliEnv(t, mr)

		var hits []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits = append(hits, r.Method+" "+r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			switch r.URL.Path {
			case "/simulation/start":
				w.WriteHeader(http.StatusConflict)
				_, _ = w.Write([]byte(`{"code":"already_running","message":"simulation already running"}`))
			case "/simulation/stop":
				w.WriteHeader(http.StatusAccepted)
				_, _ = w.Write([]byte(`{"status":"stopping"}`))
			default:
				_, _ = w.Write([]byte(`{"enabled":true,"running":true,"local":true}`))
			}
		}))
		defer srv.Close()
		ctx := context.Background()

		Convey("When stop and status go through the API", func() {
			stopOut, stopErr := execute(ctx, "stop", "--url", srv.URL)
			statusOut, statusErr := execute(ctx, "status", "--url", srv.URL)

			Convey("Then the API responses should be printed", func() {
				So(stopErr, ShouldBeNil)
				So(stopOut, ShouldContainSubstring, "stopping")
				So(statusErr, ShouldBeNil)
				So(statusOut, ShouldContainSubstring, `"running":true`)
				So(hits, ShouldResemble, []string{"POST /simulation/stop", "GET /simulation/status"})
			})

			Convey("And the local store should be untouched", func() {
				So(mr.Exists(runStateKey), ShouldBeFalse)
			})
		})

		Convey("When the API refuses a start", func() {
			out, err := execute(ctx, "start", "--url", srv.URL)

			Convey("Then the error body should be shown and the command fail", func() {
				So(errors.Is(err, errRequest), ShouldBeTrue)
				So(out, ShouldContainSubstring, "already_running")
			})
		})
	})
}
