package commands

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/mmrunner/api"
	"github.com/kbukum/mmrunner/client"
	"github.com/kbukum/mmrunner/display"
	"github.com/kbukum/mmrunner/logger"
	"github.com/kbukum/mmrunner/process"
	"github.com/kbukum/mmrunner/server"
	"github.com/kbukum/mmrunner/sse"
)

func startAPI(t *testing.T, argv []string) *client.Client {
	t.Helper()
	ctx := context.Background()

	events := sse.NewComponent(api.BasePath + "/events")
	events.Hub().SetLogger(logger.Nop())
	if err := events.Start(ctx); err != nil {
		t.Fatal(err)
	}
	d := display.New(process.Command{Argv: argv},
		display.WithLogger(logger.Nop()),
		display.WithPublisher(events.Publisher()),
		display.WithRunnerOptions(process.WithLogger(logger.Nop())),
	)

	var cfg server.Config
	cfg.ApplyDefaults()
	gin.SetMode(gin.TestMode)
	s := server.New(cfg, logger.Nop())
	s.ApplyMiddleware()
	api.NewHandler(d, events.Handler(sse.WithSnapshot(func() any { return d.Snapshot() })), api.WithLogger(logger.Nop())).
		Register(s, ServiceName, nil)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		d.Cancel()
		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_, _ = d.Wait(wctx)
		_ = events.Stop(ctx)
		srv.Close()
	})

	c, err := client.New(srv.URL, client.WithLogger(logger.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestWatch_Run(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		wantOut  string
		wantCode int
	}{
		{"success", "echo fetching; echo installed", "fetching\ninstalled\n", 0},
		{"failure", "echo broken; exit 5", "broken\n", 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := startAPI(t, []string{"/bin/sh", "-c", tc.script})
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			var out bytes.Buffer
			code, err := watch(ctx, c, &watchOptions{run: true}, &out)
			if err != nil {
				t.Fatalf("watch: %v", err)
			}
			if code != tc.wantCode || out.String() != tc.wantOut {
				t.Errorf("got code %d output %q, want %d %q", code, out.String(), tc.wantCode, tc.wantOut)
			}
		})
	}
}

func TestWatch_ContextCancelled(t *testing.T) {
	c := startAPI(t, []string{"/bin/true"})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	// Nothing runs, so only cancellation ends the watch.
	code, err := watch(ctx, c, &watchOptions{}, &bytes.Buffer{})
	if err != nil || code != 130 {
		t.Errorf("got %d, %v; want 130", code, err)
	}
}

func TestFinishedCode(t *testing.T) {
	zero, three, unknown := 0, 3, process.ExitCodeUnknown
	tests := []struct {
		name string
		ev   display.Event
		want int
	}{
		{"success", display.Event{ExitCode: &zero}, 0},
		{"failure", display.Event{ExitCode: &three}, 3},
		{"signal", display.Event{ExitCode: &unknown}, 1},
		{"cancelled", display.Event{ExitCode: &unknown, Cancelled: true}, 130},
		{"missing", display.Event{}, 1},
	}
	for _, tc := range tests {
		if got := finishedCode(&tc.ev); got != tc.want {
			t.Errorf("%s: finishedCode() = %d, want %d", tc.name, got, tc.want)
		}
	}
}
