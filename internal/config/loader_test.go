package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/steplens/steplens/internal/config"
)

// scrubEnv clears service variables so sibling test branches cannot
// leak into each other.
func scrubEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, "STEPLENS_") {
			t.Setenv(name, "") // register restore on test end
			os.Unsetenv(name)
		}
	}
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	Convey("Given a clean environment", t, func() {
		scrubEnv(t)

		Convey("When loading with nothing set", func() {
			cfg, err := config.Load(ctx)

			Convey("Then defaults apply", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":9090")
				So(cfg.LogLevel, ShouldEqual, "info")
				So(cfg.DefaultWindowDays, ShouldEqual, 30)
				So(cfg.MaterializeQueueSize, ShouldEqual, 1024)
				So(cfg.MaxSegments, ShouldEqual, 50)
			})
		})

		Convey("When environment variables are set", func() {
			t.Setenv("STEPLENS_ADDR", ":8080")
			t.Setenv("STEPLENS_DATABASE_DSN", "postgres://localhost/steplens")
			t.Setenv("STEPLENS_DEFAULT_WINDOW_DAYS", "7")
			cfg, err := config.Load(ctx)

			Convey("Then they override defaults", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":8080")
				So(cfg.DatabaseDSN, ShouldEqual, "postgres://localhost/steplens")
				So(cfg.DefaultWindowDays, ShouldEqual, 7)
				So(cfg.MaxSegments, ShouldEqual, 50)
			})
		})

		Convey("When a YAML file is referenced", func() {
			path := filepath.Join(t.TempDir(), "config.yaml")
			So(os.WriteFile(path, []byte("addr: \":7070\"\nmax_segments: 10\n"), 0o600), ShouldBeNil)
			t.Setenv("STEPLENS_CONFIG", path)
			cfg, err := config.Load(ctx)

			Convey("Then the file layers over defaults", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":7070")
				So(cfg.MaxSegments, ShouldEqual, 10)
			})

			Convey("Then env still beats the file", func() {
				t.Setenv("STEPLENS_ADDR", ":6060")
				cfg, err := config.Load(ctx)
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":6060")
			})
		})

		Convey("When the referenced file does not exist", func() {
			t.Setenv("STEPLENS_CONFIG", "/does/not/exist.yaml")
			_, err := config.Load(ctx)
			So(errors.Is(err, config.ErrLoadConfig), ShouldBeTrue)
		})

		Convey("When a value fails validation", func() {
			t.Setenv("STEPLENS_MAX_SEGMENTS", "0")
			_, err := config.Load(ctx)
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}
