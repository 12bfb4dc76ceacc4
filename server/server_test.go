package server

import (
	"bytes"
	"encoding/json"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/TFMV/echoes/ingest"
	"github.com/TFMV/echoes/models"
	"github.com/TFMV/echoes/render"
	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, maxSessions int) (*Server, *httptest.Server) {
	t.Helper()
	s := New(&Config{
		FrameInterval: 5 * time.Millisecond,
		MaxSessions:   maxSessions,
		Viewport:      models.Viewport{Width: 400, Height: 300},
		PixelRatio:    1,
		Style:         ingest.DefaultPalette().Style(),
	}, ingest.OfflineProvider{})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestIndexAndHealth(t *testing.T) {
	_, ts := newTestServer(t, 0)

	resp := get(t, ts.URL+"/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body bytes.Buffer
	body.ReadFrom(resp.Body)
	if !strings.Contains(body.String(), "<canvas") {
		t.Error("index page should contain a canvas")
	}

	if resp := get(t, ts.URL+"/missing"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	if resp := get(t, ts.URL+"/health"); resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from /health, got %d", resp.StatusCode)
	}
}

func TestAPIConcept(t *testing.T) {
	_, ts := newTestServer(t, 0)

	resp := get(t, ts.URL+"/api/concept?concept=freedom")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var file ingest.ConceptFile
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		t.Fatal(err)
	}
	if file.Concept != "Freedom" || len(file.Evolution) != 3 {
		t.Errorf("unexpected concept %q with %d snapshots", file.Concept, len(file.Evolution))
	}

	if resp := get(t, ts.URL+"/api/concept"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without a concept, got %d", resp.StatusCode)
	}
}

func TestAPISnapshot(t *testing.T) {
	_, ts := newTestServer(t, 0)

	tests := []struct {
		query string
		want  int
	}{
		{"&key=2023", 2020},
		{"&key=1960", 1940}, // equidistant, smaller key wins
		{"&key=1975", 1980},
		{"&key=1800", 1940},
		{"", 2020},
	}
	for _, tt := range tests {
		resp := get(t, ts.URL+"/api/snapshot?concept=Freedom"+tt.query)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%q: expected 200, got %d", tt.query, resp.StatusCode)
		}
		var out SnapshotResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		if out.Key != tt.want || out.Snapshot.Key != tt.want {
			t.Errorf("%q: expected key %d, got %d", tt.query, tt.want, out.Key)
		}
		if len(out.Keys) != 3 {
			t.Errorf("expected 3 keys, got %v", out.Keys)
		}
	}

	if resp := get(t, ts.URL+"/api/snapshot?concept=freedom&key=abc"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad key, got %d", resp.StatusCode)
	}
}

func TestFrame(t *testing.T) {
	_, ts := newTestServer(t, 0)

	resp := get(t, ts.URL+"/frame?concept=freedom&steps=20")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %q", ct)
	}
	if key := resp.Header.Get("X-Echoes-Key"); key != "2020" {
		t.Errorf("expected latest key, got %q", key)
	}
	cfg, err := png.DecodeConfig(resp.Body)
	if err != nil {
		t.Fatalf("invalid png: %v", err)
	}
	if cfg.Width != 400 || cfg.Height != 300 {
		t.Errorf("expected 400x300, got %dx%d", cfg.Width, cfg.Height)
	}

	resp = get(t, ts.URL+"/frame?concept=freedom&format=json&key=1985&width=500&height=500")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var frame render.FrameJSON
	if err := json.NewDecoder(resp.Body).Decode(&frame); err != nil {
		t.Fatal(err)
	}
	if frame.Key != 1980 || len(frame.Nodes) != 6 || frame.Tick != 50 {
		t.Errorf("unexpected frame key=%d nodes=%d tick=%d", frame.Key, len(frame.Nodes), frame.Tick)
	}
	for _, n := range frame.Nodes {
		if n.X < n.Size || n.X > 500-n.Size || n.Y < n.Size || n.Y > 500-n.Size {
			t.Errorf("node %s at (%v,%v) outside bounds", n.ID, n.X, n.Y)
		}
	}

	for _, query := range []string{"format=webgl", "steps=-1", "width=0", "seed=x"} {
		if resp := get(t, ts.URL+"/frame?concept=freedom&"+query); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", query, resp.StatusCode)
		}
	}
}

func TestUpload(t *testing.T) {
	_, ts := newTestServer(t, 0)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("dataFile", "liberty.csv")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("year,source,target,strength\n1900,liberty,law,0.5\n1950,liberty,speech,0.7\n"))
	mw.Close()

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := client.Post(ts.URL+"/upload", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/?concept=liberty" {
		t.Errorf("unexpected redirect %q", loc)
	}

	// The uploaded concept is served instead of the offline template
	snap := get(t, ts.URL+"/api/snapshot?concept=liberty&key=1949")
	var out SnapshotResponse
	if err := json.NewDecoder(snap.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Key != 1950 || len(out.Keys) != 2 {
		t.Errorf("expected uploaded timeline, got key %d keys %v", out.Key, out.Keys)
	}

	if resp := get(t, ts.URL+"/upload"); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %d", resp.StatusCode)
	}
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until match accepts one
func readUntil(t *testing.T, conn *websocket.Conn, what string, match func(ServerMessage) bool) ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", what, err)
		}
		if match(msg) {
			return msg
		}
	}
}

func frameWhere(fn func(*render.FrameJSON) bool) func(ServerMessage) bool {
	return func(msg ServerMessage) bool {
		return msg.Type == "frame" && fn(msg.Frame)
	}
}

func TestWebSocketSession(t *testing.T) {
	s, ts := newTestServer(t, 0)
	conn := dial(t, ts, "concept=freedom&key=1940")

	hello := readUntil(t, conn, "hello", func(m ServerMessage) bool { return m.Type == "hello" })
	if hello.Session == "" || hello.Concept != "Freedom" || len(hello.Keys) != 3 {
		t.Errorf("unexpected hello %+v", hello)
	}

	// Let the layout settle a little so the target stays under the pointer
	msg := readUntil(t, conn, "settled frame", frameWhere(func(f *render.FrameJSON) bool { return f.Key == 1940 && f.Tick >= 30 }))
	if len(msg.Frame.Nodes) != 5 {
		t.Fatalf("expected 5 nodes in 1940, got %d", len(msg.Frame.Nodes))
	}

	// Point at the main node and wait for the hover to show up
	var target render.NodeJSON
	for _, n := range msg.Frame.Nodes {
		if n.ID == "freedom" {
			target = n
		}
	}
	conn.WriteJSON(ClientMessage{Type: "pointer", X: target.X, Y: target.Y})
	readUntil(t, conn, "hover", frameWhere(func(f *render.FrameJSON) bool { return f.Hover == "freedom" }))

	conn.WriteJSON(ClientMessage{Type: "leave"})
	readUntil(t, conn, "hover cleared", frameWhere(func(f *render.FrameJSON) bool { return f.Hover == "" }))

	// Time travel keeps the loop running on the new snapshot
	conn.WriteJSON(ClientMessage{Type: "year", Key: 2023})
	msg = readUntil(t, conn, "2020 frame", frameWhere(func(f *render.FrameJSON) bool { return f.Key == 2020 }))
	if len(msg.Frame.Nodes) != 7 {
		t.Errorf("expected 7 nodes in 2020, got %d", len(msg.Frame.Nodes))
	}

	conn.WriteJSON(ClientMessage{Type: "resize", Width: 600, Height: 200})
	readUntil(t, conn, "resized frame", frameWhere(func(f *render.FrameJSON) bool { return f.Width == 600 && f.Height == 200 }))

	conn.WriteJSON(ClientMessage{Type: "bogus"})
	errMsg := readUntil(t, conn, "error", func(m ServerMessage) bool { return m.Type == "error" })
	if !strings.Contains(errMsg.Error, "bogus") {
		t.Errorf("unexpected error %q", errMsg.Error)
	}

	if s.Sessions() != 1 {
		t.Errorf("expected 1 session, got %d", s.Sessions())
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.Sessions() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session was not cleaned up")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestReplaceSwitchesSessions(t *testing.T) {
	s, ts := newTestServer(t, 0)
	conn := dial(t, ts, "concept=freedom")
	readUntil(t, conn, "first frame", func(m ServerMessage) bool { return m.Type == "frame" })

	s.Replace(singleKeyConcept(1600))

	msg := readUntil(t, conn, "replaced frame", frameWhere(func(f *render.FrameJSON) bool { return f.Key == 1600 }))
	if len(msg.Frame.Nodes) != 1 {
		t.Errorf("expected the replaced snapshot, got %d nodes", len(msg.Frame.Nodes))
	}
}

func singleKeyConcept(key int) *models.Concept {
	snapshot := models.NewSnapshot(key)
	snapshot.AddNode(models.NewNode("freedom", "Freedom"))
	return &models.Concept{Name: "Freedom", Timeline: models.NewTimeline(snapshot)}
}

func TestReplaceWhileSessionsOpen(t *testing.T) {
	s, ts := newTestServer(t, 0)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				// Leave room for ticks between restarts
				s.Replace(singleKeyConcept(1700))
				time.Sleep(20 * time.Millisecond)
			}
		}
	}()

	var conns []*websocket.Conn
	for i := 0; i < 20; i++ {
		conn := dial(t, ts, "concept=freedom")
		readUntil(t, conn, "first frame", func(m ServerMessage) bool { return m.Type == "frame" })
		conns = append(conns, conn)
	}
	close(stop)
	<-done

	s.Replace(singleKeyConcept(1600))
	for i, conn := range conns {
		msg := readUntil(t, conn, "final frame", frameWhere(func(f *render.FrameJSON) bool { return f.Key == 1600 }))
		if len(msg.Frame.Nodes) != 1 {
			t.Errorf("session %d: expected the final snapshot, got %d nodes", i, len(msg.Frame.Nodes))
		}
	}
}

func TestMaxSessions(t *testing.T) {
	_, ts := newTestServer(t, 1)
	conn := dial(t, ts, "concept=circle")
	readUntil(t, conn, "hello", func(m ServerMessage) bool { return m.Type == "hello" })

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?concept=circle"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected second session to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %v", resp)
	}
}
