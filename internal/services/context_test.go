package services_test

import (
	"context"
	"testing"

	"renderforge/internal/services"
)

func TestContextCarriesJobAnnotations(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, 42)
	ctx = services.WithStage(ctx, "encoding")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("job id = %d, %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "encoding" {
		t.Fatalf("stage = %q, %v", stage, ok)
	}
}

func TestEmptyStageIsNotStored(t *testing.T) {
	ctx := services.WithStage(context.Background(), "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("empty stage must not be retrievable")
	}
}

func TestMissingAnnotations(t *testing.T) {
	ctx := context.Background()
	if _, ok := services.JobIDFromContext(ctx); ok {
		t.Fatal("unexpected job id")
	}
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("unexpected stage")
	}
}
