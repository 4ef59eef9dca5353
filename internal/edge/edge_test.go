package edge

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/streamforge/live/internal/domain"
	"github.com/streamforge/live/internal/ids"
	"github.com/streamforge/live/internal/metastore"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	return New(Config{}, deps, slog.Default())
}

func doRequest(srv *Server, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleMasterPlaylist_Live(t *testing.T) {
	deps := newTestDeps()
	room, org, conn := ids.New(), ids.New(), ids.New()
	mustPut(t, metastore.PutActiveConnection(context.Background(), deps.Meta, room.String(), metastore.ActiveConnection{
		ConnectionID: conn.String(), OrganizationID: org.String(),
	}))
	mustPut(t, metastore.PutMasterManifest(context.Background(), deps.Meta, &domain.MasterManifest{
		ConnectionID: conn,
		Renditions:   []domain.RenditionRef{{Rendition: domain.RenditionHd, Timescale: 90000}},
	}))

	srv := newTestServer(t, deps)
	rec := doRequest(srv, http.MethodGet, "/"+org.String()+"/"+room.String()+"/master.m3u8", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "hd.m3u8") {
		t.Fatalf("expected hd rendition in master playlist: %s", rec.Body.String())
	}
}

func TestHandleMasterPlaylist_UnknownRoomReturns404(t *testing.T) {
	deps := newTestDeps()
	srv := newTestServer(t, deps)
	rec := doRequest(srv, http.MethodGet, "/"+ids.New().String()+"/"+ids.New().String()+"/master.m3u8", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleMasterPlaylist_FinishedRoomNoRecordingReturns410(t *testing.T) {
	deps := newTestDeps()
	room, org, conn := ids.New(), ids.New(), ids.New()
	mustPut(t, metastore.PutActiveConnection(context.Background(), deps.Meta, room.String(), metastore.ActiveConnection{
		ConnectionID: conn.String(), OrganizationID: org.String(),
	}))
	mustPut(t, metastore.ClearActiveConnection(context.Background(), deps.Meta, room.String()))
	mustPut(t, metastore.PutMasterManifest(context.Background(), deps.Meta, &domain.MasterManifest{ConnectionID: conn, Finished: true}))

	srv := newTestServer(t, deps)
	rec := doRequest(srv, http.MethodGet, "/"+org.String()+"/"+room.String()+"/master.m3u8", nil)
	if rec.Code != http.StatusGone {
		t.Fatalf("status = %d, want 410", rec.Code)
	}
}

func TestHandleInit_LiveServesBytesWithCacheHeaders(t *testing.T) {
	deps := newTestDeps()
	room, org, conn := ids.New(), ids.New(), ids.New()
	mustPut(t, metastore.PutActiveConnection(context.Background(), deps.Meta, room.String(), metastore.ActiveConnection{
		ConnectionID: conn.String(), OrganizationID: org.String(),
	}))
	mustPut(t, metastore.PutMasterManifest(context.Background(), deps.Meta, &domain.MasterManifest{ConnectionID: conn}))

	initKey := domain.InitObjectKey(conn, domain.RenditionHd)
	if err := deps.Media.Write(context.Background(), initKey, []byte("ftypmoov"), "video/mp4"); err != nil {
		t.Fatalf("Write init: %v", err)
	}

	srv := newTestServer(t, deps)
	rec := doRequest(srv, http.MethodGet, "/"+org.String()+"/"+room.String()+"/hd/init.mp4", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "ftypmoov" {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if rec.Header().Get("Cache-Control") == "" {
		t.Fatalf("expected Cache-Control header")
	}
}

func TestHandlePart_RangeRequest(t *testing.T) {
	deps := newTestDeps()
	room, org, conn := ids.New(), ids.New(), ids.New()
	mustPut(t, metastore.PutActiveConnection(context.Background(), deps.Meta, room.String(), metastore.ActiveConnection{
		ConnectionID: conn.String(), OrganizationID: org.String(),
	}))
	mustPut(t, metastore.PutMasterManifest(context.Background(), deps.Meta, &domain.MasterManifest{ConnectionID: conn}))

	partKey := domain.PartObjectKey(conn, domain.RenditionHd, 3)
	if err := deps.Media.Write(context.Background(), partKey, []byte("0123456789"), "video/iso.segment"); err != nil {
		t.Fatalf("Write part: %v", err)
	}

	srv := newTestServer(t, deps)
	rec := doRequest(srv, http.MethodGet, "/"+org.String()+"/"+room.String()+"/hd/3.m4s", map[string]string{
		"Range": "bytes=2-5",
	})

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "2345" {
		t.Fatalf("body = %q, want %q", rec.Body.String(), "2345")
	}
	if rec.Header().Get("Content-Range") != "bytes 2-5/10" {
		t.Fatalf("Content-Range = %q", rec.Header().Get("Content-Range"))
	}
}

func TestHandlePart_UnknownRenditionReturns400(t *testing.T) {
	deps := newTestDeps()
	room, org, conn := ids.New(), ids.New(), ids.New()
	mustPut(t, metastore.PutActiveConnection(context.Background(), deps.Meta, room.String(), metastore.ActiveConnection{
		ConnectionID: conn.String(), OrganizationID: org.String(),
	}))
	mustPut(t, metastore.PutMasterManifest(context.Background(), deps.Meta, &domain.MasterManifest{ConnectionID: conn}))

	srv := newTestServer(t, deps)
	rec := doRequest(srv, http.MethodGet, "/"+org.String()+"/"+room.String()+"/bogus/3.m4s", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func mustPut(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
}
