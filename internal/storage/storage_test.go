package storage

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"genstudio/internal/domain"
	"genstudio/internal/providers"
)

func TestCleanKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"generated/a/b.png", "generated/a/b.png", false},
		{"/generated//a/./b.png", "generated/a/b.png", false},
		{`uploads\x\y.png`, "uploads/x/y.png", false},
		{"../etc/passwd", "", true},
		{"a/../../b", "", true},
		{"   ", "", true},
	}
	for _, tc := range tests {
		got, err := CleanKey(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("CleanKey(%q) expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("CleanKey(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestFileStorePutOverwrites(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	for _, body := range []string{"first", "second"} {
		ref, err := store.Put(ctx, "generated/o/j/output.txt", []byte(body), "text/plain")
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		if ref != "generated/o/j/output.txt" {
			t.Fatalf("ref = %q", ref)
		}
	}
	f, err := store.Open("generated/o/j/output.txt")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "second" {
		t.Fatalf("content = %q", data)
	}
	if _, err := store.Open("missing.txt"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing object error = %v", err)
	}
}

func TestFileStoreDelete(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	ref, err := store.Put(ctx, "generated/o/j/output.txt", []byte("x"), "text/plain")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Open(ref); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("deleted object error = %v", err)
	}
	if err := store.Delete(ctx, ref); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if err := store.Delete(ctx, "../escape.txt"); err == nil {
		t.Fatalf("Delete accepted a key outside the root")
	}
}

func newSignedServer(t *testing.T) (*FileStore, *LocalSigner, *httptest.Server) {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	signer, err := NewLocalSigner(srv.URL+"/static", []byte("0123456789abcdef0123"))
	if err != nil {
		t.Fatalf("NewLocalSigner: %v", err)
	}
	mux.Handle("/static/", &FileHandler{Store: store, Signer: signer, Prefix: "/static/"})
	return store, signer, srv
}

func TestSignedURLRoundTrip(t *testing.T) {
	store, signer, _ := newSignedServer(t)
	ctx := context.Background()
	ref, _ := store.Put(ctx, "generated/o/j/output.png", []byte("pixels"), "image/png")

	signed, err := signer.Sign(ctx, ref, SignOptions{
		Expiry:    time.Hour,
		Download:  true,
		Transform: &Transform{Width: 256, Quality: 80, Format: "webp", Resize: "cover"},
	})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	resp, err := http.Get(signed)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "pixels" {
		t.Fatalf("status=%d body=%q", resp.StatusCode, body)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Disposition"), "attachment") {
		t.Fatalf("Content-Disposition = %q", resp.Header.Get("Content-Disposition"))
	}
}

func TestSignedURLRejectsTamperingAndExpiry(t *testing.T) {
	store, signer, _ := newSignedServer(t)
	ctx := context.Background()
	ref, _ := store.Put(ctx, "a.png", []byte("x"), "image/png")

	signed, _ := signer.Sign(ctx, ref, SignOptions{Expiry: time.Hour, Transform: &Transform{Width: 100}})
	u, _ := url.Parse(signed)
	q := u.Query()
	q.Set("w", "2000")
	u.RawQuery = q.Encode()
	resp, err := http.Get(u.String())
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("tampered status = %d", resp.StatusCode)
	}

	signer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _ := signer.Sign(ctx, ref, SignOptions{Expiry: time.Hour})
	signer.now = time.Now
	resp, err = http.Get(expired)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusGone {
		t.Fatalf("expired status = %d", resp.StatusCode)
	}
}

func TestSignIsDeterministicForFixedClock(t *testing.T) {
	signer, err := NewLocalSigner("https://media.test/static", []byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewLocalSigner: %v", err)
	}
	fixed := time.Unix(1_700_000_000, 0)
	signer.now = func() time.Time { return fixed }
	opts := SignOptions{Expiry: time.Hour, Transform: &Transform{Width: 10, Height: 20, Quality: 75, Format: "avif", Resize: "contain"}}
	a, _ := signer.Sign(context.Background(), "x/y.png", opts)
	b, _ := signer.Sign(context.Background(), "x/y.png", opts)
	if a != b {
		t.Fatalf("signatures differ:\n%s\n%s", a, b)
	}
	if !strings.Contains(a, "fit=contain") || !strings.Contains(a, "fm=avif") {
		t.Fatalf("missing transform params: %s", a)
	}
}

type memStore struct {
	objects map[string][]byte
	types   map[string]string
}

func (m *memStore) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	if m.objects == nil {
		m.objects = map[string][]byte{}
		m.types = map[string]string{}
	}
	m.objects[key] = data
	m.types[key] = contentType
	return key, nil
}

func (m *memStore) Delete(_ context.Context, ref string) error {
	delete(m.objects, ref)
	delete(m.types, ref)
	return nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestImporterInlineImage(t *testing.T) {
	store := &memStore{}
	im := NewImporter(store, nil)
	got, err := im.Import(context.Background(), "owner-1", "job-1", domain.MediaKindImage, &providers.Output{Data: pngBytes(t, 40, 30)})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if got.StorageRef != "generated/owner-1/job-1/output.png" {
		t.Fatalf("ref = %q", got.StorageRef)
	}
	if got.Metadata.MIME != "image/png" || got.Metadata.Width != 40 || got.Metadata.Height != 30 {
		t.Fatalf("metadata = %+v", got.Metadata)
	}
	if got.ThumbnailRef != "" {
		t.Fatalf("unexpected thumbnail %q", got.ThumbnailRef)
	}
}

func TestImporterDiscardRemovesObjects(t *testing.T) {
	store := &memStore{}
	im := NewImporter(store, nil)
	got, err := im.Import(context.Background(), "owner-1", "job-1", domain.MediaKindImage, &providers.Output{Data: pngBytes(t, 8, 8)})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if err := im.Discard(context.Background(), got.StorageRef, got.ThumbnailRef); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if len(store.objects) != 0 {
		t.Fatalf("objects left after discard: %v", store.objects)
	}
}

func TestImporterDownloadsVideoAndThumbnail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/out.mp4":
			w.Header().Set("Content-Type", "video/mp4")
			_, _ = w.Write([]byte("movie"))
		case "/thumb.jpg":
			w.Header().Set("Content-Type", "image/jpeg; charset=binary")
			_, _ = w.Write([]byte("jpeg"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store := &memStore{}
	im := NewImporter(store, srv.Client())
	got, err := im.Import(context.Background(), "o", "j", domain.MediaKindVideo, &providers.Output{
		URL:             srv.URL + "/out.mp4",
		DurationSeconds: 5,
		ThumbnailURL:    srv.URL + "/thumb.jpg",
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if got.StorageRef != "generated/o/j/output.mp4" || got.ThumbnailRef != "generated/o/j/thumbnail.jpg" {
		t.Fatalf("refs = %q, %q", got.StorageRef, got.ThumbnailRef)
	}
	if string(store.objects[got.StorageRef]) != "movie" || got.Metadata.DurationSeconds != 5 {
		t.Fatalf("unexpected import: %+v", got)
	}

	_, err = im.Import(context.Background(), "o", "j2", domain.MediaKindVideo, &providers.Output{URL: srv.URL + "/gone.mp4"})
	if domain.KindOf(err) != domain.KindUpstreamUnavailable {
		t.Fatalf("download failure kind = %q", domain.KindOf(err))
	}
}

type fakeS3 struct {
	put     *s3.PutObjectInput
	deleted *s3.DeleteObjectInput
	presign *s3.GetObjectInput
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = in
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = in
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) PresignGetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.presign = in
	return &v4.PresignedHTTPRequest{URL: "https://bucket.s3.test/" + aws.ToString(in.Key) + "?X-Amz-Signature=abc"}, nil
}

func TestS3StorePutAndSign(t *testing.T) {
	fake := &fakeS3{}
	store := &S3Store{bucket: "media", client: fake, presign: fake}
	ref, err := store.Put(context.Background(), "/generated/o/j/output.png", []byte("x"), "image/png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ref != "generated/o/j/output.png" || aws.ToString(fake.put.ContentType) != "image/png" {
		t.Fatalf("put = %q %+v", ref, fake.put)
	}
	signed, err := store.Sign(context.Background(), ref, SignOptions{Expiry: time.Hour, Download: true})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !strings.Contains(signed, "X-Amz-Signature") {
		t.Fatalf("signed = %q", signed)
	}
	if !strings.HasPrefix(aws.ToString(fake.presign.ResponseContentDisposition), "attachment") {
		t.Fatalf("disposition = %v", fake.presign.ResponseContentDisposition)
	}
	if err := store.Delete(context.Background(), ref); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if aws.ToString(fake.deleted.Bucket) != "media" || aws.ToString(fake.deleted.Key) != ref {
		t.Fatalf("delete = %+v", fake.deleted)
	}
}
