package memory

import (
	"context"
	"errors"
	"testing"

	"genstudio/internal/domain"
)

func TestAssetDeleteKeepsLinkedAssets(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	jobs, assets := store.Jobs(), store.Assets()

	for _, id := range []string{"job-linked", "job-orphan"} {
		if err := jobs.Create(ctx, &domain.GenerationJob{ID: id, Status: domain.JobStatusProcessing}); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}
	linked, err := assets.CreateForJob(ctx, "job-linked", domain.NewAsset{OwnerID: "o", Type: domain.MediaKindImage})
	if err != nil {
		t.Fatalf("CreateForJob: %v", err)
	}
	orphan, err := assets.CreateForJob(ctx, "job-orphan", domain.NewAsset{OwnerID: "o", Type: domain.MediaKindImage})
	if err != nil {
		t.Fatalf("CreateForJob: %v", err)
	}
	if err := jobs.Update(ctx, &domain.GenerationJob{ID: "job-linked", Status: domain.JobStatusCompleted, OutputAssetID: linked.ID}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	unlinked, err := assets.ListUnlinked(ctx, 0)
	if err != nil {
		t.Fatalf("ListUnlinked: %v", err)
	}
	if len(unlinked) != 1 || unlinked[0].ID != orphan.ID {
		t.Fatalf("unlinked = %+v, want only %s", unlinked, orphan.ID)
	}

	if err := assets.Delete(ctx, linked.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("delete of linked asset: got %v, want ErrNotFound", err)
	}
	if err := assets.Delete(ctx, orphan.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := assets.GetBySourceGeneration(ctx, "job-orphan"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("deleted asset still found by job: %v", err)
	}
	if err := assets.Delete(ctx, orphan.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete: got %v, want ErrNotFound", err)
	}
}
