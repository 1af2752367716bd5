package routes

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"docrelay/models"
	"docrelay/storage"
	"docrelay/utils"
)

func newTestHandler(t *testing.T, opts Options) (*Handler, *storage.Store) {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "storage"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return NewHandler(store, opts), store
}

// multipartBody builds a body with one file part named filename.
func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if err := mw.WriteField("comment", "leading form field"); err != nil {
		t.Fatalf("WriteField failed: %v", err)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	fw.Write(content)
	if err := mw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return body, mw.FormDataContentType()
}

func upload(t *testing.T, client *http.Client, baseURL, filename string, content []byte) models.UploadResponse {
	t.Helper()
	body, contentType := multipartBody(t, filename, content)
	resp, err := client.Post(baseURL+"/upload", contentType, body)
	if err != nil {
		t.Fatalf("Upload request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		t.Fatalf("Upload of %q returned %d: %s", filename, resp.StatusCode, msg)
	}
	var out models.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode upload response: %v", err)
	}
	return out
}

func download(t *testing.T, client *http.Client, fileURL string) []byte {
	t.Helper()
	resp, err := client.Get(fileURL)
	if err != nil {
		t.Fatalf("Download request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Download of %s returned %d", fileURL, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read download: %v", err)
	}
	if resp.ContentLength != int64(len(data)) {
		t.Errorf("Content-Length %d does not match body length %d", resp.ContentLength, len(data))
	}
	return data
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	h, _ := newTestHandler(t, Options{})
	ts := httptest.NewServer(h)
	defer ts.Close()

	random := make([]byte, 64<<10)
	rand.Read(random)

	cases := map[string][]byte{
		"empty.txt":        {},
		"plain.txt":        []byte("hello world"),
		"trailing.txt":     []byte("ends with whitespace \r\n\r\n  \n"),
		"boundary.bin":     []byte("--xyz\r\n\r\n--" + "boundary--\r\nContent-Disposition: form-data; filename=\"x\"\r\n"),
		"invalid-utf8.bin": {0xff, 0xfe, 0x00, 0xc3, 0x28, '\r', '\n'},
		"random.bin":       random,
		"with space ü.pdf": []byte("%PDF-1.7"),
	}

	for name, content := range cases {
		resp := upload(t, ts.Client(), ts.URL, name, content)
		if resp.Filename != name {
			t.Errorf("Expected filename %q, got %q", name, resp.Filename)
		}
		if !strings.HasPrefix(resp.FileURL, ts.URL+"/files/") {
			t.Errorf("Unexpected file URL %s", resp.FileURL)
		}
		got := download(t, ts.Client(), resp.FileURL)
		if !bytes.Equal(got, content) {
			t.Errorf("Round trip of %q changed content: %d bytes in, %d bytes out", name, len(content), len(got))
		}
	}
}

func TestUploadUsesConfiguredPublicURL(t *testing.T) {
	h, _ := newTestHandler(t, Options{PublicURL: "http://storage.internal:8000/"})
	body, contentType := multipartBody(t, "a b.docx", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.UploadResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.FileURL != "http://storage.internal:8000/files/a%20b.docx" {
		t.Errorf("Unexpected file URL %s", resp.FileURL)
	}
}

func TestUploadStripsDirectoryComponents(t *testing.T) {
	h, store := newTestHandler(t, Options{})

	for name, want := range map[string]string{
		"../../evil.txt":   "evil.txt",
		"sub/dir/name.txt": "name.txt",
		`..\..\win.txt`:    "win.txt",
	} {
		body, contentType := multipartBody(t, name, []byte("payload"))
		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Upload of %q returned %d: %s", name, rec.Code, rec.Body.String())
		}
		var resp models.UploadResponse
		json.NewDecoder(rec.Body).Decode(&resp)
		if resp.Filename != want {
			t.Errorf("Upload of %q stored as %q, want %q", name, resp.Filename, want)
		}
		if _, err := os.Stat(filepath.Join(store.Root(), want)); err != nil {
			t.Errorf("Expected %s inside storage root: %v", want, err)
		}
	}

	if _, err := os.Stat(filepath.Join(filepath.Dir(store.Root()), "evil.txt")); !os.IsNotExist(err) {
		t.Error("Upload escaped the storage root")
	}
}

func TestUploadRejectsMalformedRequests(t *testing.T) {
	h, _ := newTestHandler(t, Options{})

	noFile := &bytes.Buffer{}
	mw := multipart.NewWriter(noFile)
	mw.WriteField("file", "not a file part")
	mw.Close()

	emptyName := &bytes.Buffer{}
	ew := multipart.NewWriter(emptyName)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="   "`)
	pw, _ := ew.CreatePart(hdr)
	pw.Write([]byte("data"))
	ew.Close()

	truncated, truncatedType := multipartBody(t, "cut.txt", []byte("some content"))
	truncatedBody := truncated.Bytes()[:truncated.Len()-20]

	cases := []struct {
		name        string
		contentType string
		body        []byte
		want        int
	}{
		{"json content type", "application/json", []byte(`{}`), http.StatusUnsupportedMediaType},
		{"missing content type", "", []byte("raw"), http.StatusUnsupportedMediaType},
		{"missing boundary", "multipart/form-data", []byte("--x\r\n"), http.StatusBadRequest},
		{"no file part", mw.FormDataContentType(), noFile.Bytes(), http.StatusBadRequest},
		{"blank filename", ew.FormDataContentType(), emptyName.Bytes(), http.StatusBadRequest},
		{"truncated body", truncatedType, truncatedBody, http.StatusBadRequest},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader(tc.body))
		if tc.contentType != "" {
			req.Header.Set("Content-Type", tc.contentType)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != tc.want {
			t.Errorf("%s: expected %d, got %d (%s)", tc.name, tc.want, rec.Code, rec.Body.String())
			continue
		}
		var errResp models.ErrorResponse
		if err := json.NewDecoder(rec.Body).Decode(&errResp); err != nil || errResp.Error == "" {
			t.Errorf("%s: expected JSON error body, got %q", tc.name, rec.Body.String())
		}
	}
}

func TestUploadSizeLimit(t *testing.T) {
	h, store := newTestHandler(t, Options{MaxUploadBytes: 1024})
	body, contentType := multipartBody(t, "big.bin", bytes.Repeat([]byte("a"), 4096))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "big.bin")); !os.IsNotExist(err) {
		t.Error("Oversized upload must not be stored")
	}
}

func TestUploadAuthentication(t *testing.T) {
	secret := "sidecar-upload-secret-32-bytes-min"
	h, _ := newTestHandler(t, Options{UploadSecret: []byte(secret)})

	send := func(authorization string) int {
		body, contentType := multipartBody(t, "report.docx", []byte("doc"))
		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.Header.Set("Content-Type", contentType)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(""); code != http.StatusUnauthorized {
		t.Errorf("Missing token: expected 401, got %d", code)
	}
	if code := send("Token abc"); code != http.StatusUnauthorized {
		t.Errorf("Wrong scheme: expected 401, got %d", code)
	}

	other, err := utils.CreateUploadToken("other.docx", secret, time.Minute)
	if err != nil {
		t.Fatalf("CreateUploadToken failed: %v", err)
	}
	if code := send("Bearer " + other); code != http.StatusUnauthorized {
		t.Errorf("Token for another file: expected 401, got %d", code)
	}

	valid, err := utils.CreateUploadToken("report.docx", secret, time.Minute)
	if err != nil {
		t.Fatalf("CreateUploadToken failed: %v", err)
	}
	if code := send("Bearer " + valid); code != http.StatusOK {
		t.Errorf("Valid token: expected 200, got %d", code)
	}
}

func TestDownloadRejectsTraversal(t *testing.T) {
	base := t.TempDir()
	roots := []string{
		filepath.Join(base, "store"),
		filepath.Join(base, "nested", "deeper", "store"),
	}
	if err := os.WriteFile(filepath.Join(base, "passwd"), []byte("root:x:0:0"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	targets := []string{
		"/files/..%2f..%2fetc%2fpasswd",
		"/files/..%2Fpasswd",
		"/files/../../etc/passwd",
		"/files/../passwd",
		"/files/..",
		"/files/%2e%2e%2fpasswd",
		"/files/..%5cpasswd",
		"/files/sub%2fpasswd",
		"/files/%2fetc%2fpasswd",
	}

	for _, root := range roots {
		store, err := storage.NewStore(root)
		if err != nil {
			t.Fatalf("NewStore failed: %v", err)
		}
		h := NewHandler(store, Options{})

		for _, target := range targets {
			req := httptest.NewRequest(http.MethodGet, target, nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusForbidden {
				t.Errorf("GET %s (root %s): expected 403, got %d", target, root, rec.Code)
			}
			if strings.Contains(rec.Body.String(), "root:x") {
				t.Errorf("GET %s leaked a file outside the storage root", target)
			}
		}
	}
}

func TestDownloadNotFoundAndHeaders(t *testing.T) {
	h, store := newTestHandler(t, Options{})
	if _, err := store.Save("report.pdf", strings.NewReader("%PDF-1.4 body")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/missing.pdf", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/report.pdf", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Expected application/pdf, got %s", ct)
	}
	if cl := rec.Header().Get("Content-Length"); cl != "13" {
		t.Errorf("Expected Content-Length 13, got %s", cl)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/files/report.pdf", nil))
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Errorf("HEAD: expected 200 with empty body, got %d with %d bytes", rec.Code, rec.Body.Len())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/files/report.pdf", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE: expected 405, got %d", rec.Code)
	}
}

func TestConcurrentUploadsDoNotInterfere(t *testing.T) {
	h, _ := newTestHandler(t, Options{})
	ts := httptest.NewServer(h)
	defer ts.Close()

	const n = 24
	contents := make([][]byte, n)
	urls := make([]string, n)
	for i := range contents {
		contents[i] = bytes.Repeat([]byte{byte(i)}, 8<<10+i)
	}

	bodies := make([]*bytes.Buffer, n)
	contentTypes := make([]string, n)
	for i := range contents {
		bodies[i], contentTypes[i] = multipartBody(t, fmt.Sprintf("file-%02d.bin", i), contents[i])
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := ts.Client().Post(ts.URL+"/upload", contentTypes[i], bodies[i])
			if err != nil {
				t.Errorf("Upload %d failed: %v", i, err)
				return
			}
			defer resp.Body.Close()
			var out models.UploadResponse
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				t.Errorf("Upload %d: bad response: %v", i, err)
				return
			}
			urls[i] = out.FileURL
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if urls[i] == "" {
			continue
		}
		if got := download(t, ts.Client(), urls[i]); !bytes.Equal(got, contents[i]) {
			t.Errorf("File %d corrupted: %d bytes, want %d", i, len(got), len(contents[i]))
		}
	}
}

func TestHealthAndInfo(t *testing.T) {
	h, store := newTestHandler(t, Options{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var health HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if rec.Code != http.StatusOK || health.Status != "healthy" || health.Version != Version() {
		t.Errorf("Unexpected health response %d %+v", rec.Code, health)
	}
	if health.UptimeSeconds < 0 || health.StartedAt.After(time.Now()) {
		t.Errorf("Unexpected uptime in %+v", health)
	}

	later := healthAt(processStart.Add(90*time.Minute + 500*time.Millisecond))
	if later.UptimeSeconds != 5400 {
		t.Errorf("Expected 5400s uptime, got %d", later.UptimeSeconds)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	var info models.InfoResponse
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("Failed to decode info: %v", err)
	}
	if info.Name != ServiceName || info.Status != "running" || info.StoragePath != store.Root() || info.Version == "" {
		t.Errorf("Unexpected info response %+v", info)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	var ver VersionResponse
	if err := json.NewDecoder(rec.Body).Decode(&ver); err != nil {
		t.Fatalf("Failed to decode version: %v", err)
	}
	if ver.Version != Version() || !strings.HasPrefix(ver.GoVersion, "go") {
		t.Errorf("Unexpected version response %+v", ver)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown route, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/upload", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET /upload, got %d", rec.Code)
	}
}
