package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"genstudio/internal/domain"
)

var (
	// ErrSignatureInvalid means the URL was tampered with or signed by another key.
	ErrSignatureInvalid = errors.New("storage: invalid signature")
	// ErrSignatureExpired means the URL is past its expiry.
	ErrSignatureExpired = errors.New("storage: url expired")
)

// LocalSigner issues HMAC-signed URLs served by FileHandler.
type LocalSigner struct {
	baseURL string
	key     []byte
	now     func() time.Time
}

// NewLocalSigner signs URLs under baseURL (for example
// "http://localhost:8080/static") with key.
func NewLocalSigner(baseURL string, key []byte) (*LocalSigner, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("storage: signer base url is required")
	}
	if len(key) < 16 {
		return nil, errors.New("storage: signing key must be at least 16 bytes")
	}
	return &LocalSigner{baseURL: baseURL, key: key, now: time.Now}, nil
}

// Sign returns a URL valid until now+opts.Expiry.
func (s *LocalSigner) Sign(_ context.Context, ref string, opts SignOptions) (string, error) {
	cleanKey, err := CleanKey(ref)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	if opts.Transform != nil {
		q = opts.Transform.Values()
	}
	if opts.Download {
		q.Set("dl", "1")
	}
	q.Set("exp", strconv.FormatInt(s.now().Add(opts.Expiry).Unix(), 10))
	q.Set("sig", s.signature(cleanKey, q))
	return s.baseURL + "/" + escapePath(cleanKey) + "?" + q.Encode(), nil
}

// Verify checks the signature and expiry of a request for key.
func (s *LocalSigner) Verify(key string, query url.Values) error {
	got := query.Get("sig")
	if got == "" {
		return ErrSignatureInvalid
	}
	want := s.signature(key, query)
	if !hmac.Equal([]byte(got), []byte(want)) {
		return ErrSignatureInvalid
	}
	exp, err := strconv.ParseInt(query.Get("exp"), 10, 64)
	if err != nil {
		return ErrSignatureInvalid
	}
	if !s.now().Before(time.Unix(exp, 0)) {
		return ErrSignatureExpired
	}
	return nil
}

// signature covers the key and every query parameter except sig.
func (s *LocalSigner) signature(key string, query url.Values) string {
	signed := url.Values{}
	for k, v := range query {
		if k != "sig" {
			signed[k] = v
		}
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(key))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(signed.Encode()))
	return hex.EncodeToString(mac.Sum(nil))
}

func escapePath(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// FileHandler serves FileStore objects behind LocalSigner URLs. Transform
// parameters are covered by the signature but not applied.
type FileHandler struct {
	Store  *FileStore
	Signer *LocalSigner
	// Prefix is stripped from the request path to recover the key.
	Prefix string
}

func (h *FileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	key, err := CleanKey(strings.TrimPrefix(r.URL.Path, h.Prefix))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	switch err := h.Signer.Verify(key, r.URL.Query()); {
	case errors.Is(err, ErrSignatureExpired):
		http.Error(w, "link expired", http.StatusGone)
		return
	case err != nil:
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	f, err := h.Store.Open(key)
	if errors.Is(err, domain.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=300")
	if r.URL.Query().Get("dl") == "1" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(key)))
	}
	http.ServeContent(w, r, path.Base(key), info.ModTime(), f)
}
