package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"genstudio/internal/domain"
	"genstudio/internal/infra"
	"genstudio/internal/materializer"
	"genstudio/internal/providers/queue"
	"genstudio/internal/providers/synthetic"
)

func devConfig(t *testing.T) *infra.Config {
	t.Helper()
	return &infra.Config{
		AppEnv:            "development",
		Port:              "8080",
		JWTSecret:         "secret",
		StorageDriver:     infra.StorageLocal,
		StoragePath:       t.TempDir(),
		StorageBaseURL:    "http://localhost:8080/static",
		StorageSigningKey: "0123456789abcdef0123",
		PollInterval:      5 * time.Millisecond,
		JobTimeout:        time.Minute,
		PollRetryBackoff:  time.Millisecond,
		ProviderTimeout:   time.Second,
		DeliveryURLTTL:    time.Hour,
	}
}

func TestBuildDevelopmentRuntimeRunsJobs(t *testing.T) {
	rt, err := Build(context.Background(), devConfig(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(rt.Close)

	if rt.Static == nil {
		t.Fatalf("local driver should serve static objects")
	}
	if err := rt.RunRelay(context.Background()); err != nil {
		t.Fatalf("RunRelay without redis: %v", err)
	}

	job, err := rt.Orchestrator.Submit(context.Background(), domain.GenerationRequest{
		OwnerID:        "owner-1",
		ModelID:        rt.Resolver.ModelsFor(domain.TextToImage)[0].ID,
		GenerationType: domain.TextToImage,
		Prompt:         "a red kite",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := rt.Jobs.GetByID(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.Status == domain.JobStatusCompleted {
			asset, err := rt.Assets.GetByID(context.Background(), got.OutputAssetID)
			if err != nil {
				t.Fatalf("output asset: %v", err)
			}
			url := rt.Materializer.ForAsset(context.Background(), asset, materializer.AssetRequest{})
			if url == nil {
				t.Fatalf("no delivery url for %+v", asset)
			}
			rec := httptest.NewRecorder()
			rt.Static.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, strings.TrimPrefix(url.URL, "http://localhost:8080"), nil))
			if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
				t.Fatalf("static fetch = %d (%d bytes)", rec.Code, rec.Body.Len())
			}
			return
		}
		if got.Status.Terminal() || time.Now().After(deadline) {
			t.Fatalf("job ended as %s (%+v)", got.Status, got.Error)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBuildProviderSelection(t *testing.T) {
	cfg := devConfig(t)
	p, err := buildProvider(cfg, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildProvider: %v", err)
	}
	if _, ok := p.(*synthetic.Provider); !ok {
		t.Fatalf("provider = %T, want synthetic", p)
	}

	cfg.ProviderBaseURL = "https://gateway.example.com"
	cfg.ProviderAPIKey = "key"
	p, err = buildProvider(cfg, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildProvider: %v", err)
	}
	if _, ok := p.(*queue.Client); !ok {
		t.Fatalf("provider = %T, want queue client", p)
	}
}

func TestLoadCatalogReportsPath(t *testing.T) {
	_, err := loadCatalog("/nonexistent/models.yaml")
	if err == nil || !strings.Contains(err.Error(), "/nonexistent/models.yaml") {
		t.Fatalf("err = %v", err)
	}
}
