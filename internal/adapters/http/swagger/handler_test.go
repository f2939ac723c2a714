package swagger_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/steplens/steplens/internal/adapters/http/swagger"
)

func TestRegister(t *testing.T) {
	Convey("Given the docs routes", t, func() {
		mux := http.NewServeMux()
		swagger.Register(context.Background(), mux)
		ts := httptest.NewServer(mux)
		defer ts.Close()

		get := func(path string) (*http.Response, string) {
			resp, err := http.Get(ts.URL + path)
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			So(err, ShouldBeNil)
			return resp, string(body)
		}

		Convey("When fetching the docs page", func() {
			resp, body := get("/api-docs")

			Convey("Then it serves the ReDoc shell", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(resp.Header.Get("Content-Type"), ShouldStartWith, "text/html")
				So(body, ShouldContainSubstring, "redoc")
				So(body, ShouldContainSubstring, "/openapi.yaml")
			})
		})

		Convey("When fetching the spec", func() {
			resp, body := get("/openapi.yaml")

			Convey("Then the embedded document covers the API surface", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(resp.Header.Get("Content-Type"), ShouldStartWith, "application/yaml")
				for _, path := range []string{
					"/api/events",
					"/api/funnels/{funnel}/analysis",
					"/api/funnels/{funnel}/cohorts",
					"/api/funnels/{funnel}/segments",
					"/api/funnels/{funnel}/metrics",
					"/api/materialize",
				} {
					So(body, ShouldContainSubstring, path)
				}
			})
		})

		Convey("When registering on a nil mux", func() {
			So(func() { swagger.Register(context.Background(), nil) }, ShouldPanic)
		})
	})
}
